package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// GenericErrorMessage is shown when a failed response carries nothing readable.
const GenericErrorMessage = "Something went wrong. Please try again."

// ErrUnauthorized matches any *Error with status 401.
var ErrUnauthorized = errors.New("unauthorized")

// Error is a non-2xx API response. Message is always safe to show to a user.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Is reports 401 responses as ErrUnauthorized.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newError builds an *Error from a failed response body. The JSON envelope is
// preferred, then the text of an HTML error page, then GenericErrorMessage.
func newError(statusCode int, contentType string, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode, Message: GenericErrorMessage}

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		if msg := strings.TrimSpace(envelope.Error.Message); msg != "" {
			apiErr.Message = msg
		}
		return apiErr
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "text/html" {
		if msg := htmlErrorMessage(body); msg != "" {
			apiErr.Message = msg
		}
	}

	return apiErr
}

// htmlErrorMessage pulls the message out of an error page served by a proxy
// or the web frontend instead of the API.
func htmlErrorMessage(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	for _, selector := range []string{".error", ".alert", "title"} {
		text := strings.Join(strings.Fields(doc.Find(selector).First().Text()), " ")
		if text != "" {
			return text
		}
	}

	return ""
}
