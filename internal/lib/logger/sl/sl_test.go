package sl_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/oeee-cafe/oeee-client/internal/lib/logger/sl"
	"github.com/stretchr/testify/assert"
)

func TestErr(t *testing.T) {
	t.Parallel()

	var logBuf bytes.Buffer // buffer for log capturing
	testLogger := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{}))

	errAttr := sl.Err(assert.AnError)
	testLogger.Warn("expected result:", errAttr)

	assert.Contains(t, logBuf.String(), assert.AnError.Error())
}

func TestErr_Nil(t *testing.T) {
	t.Parallel()

	attr := sl.Err(nil)

	assert.Equal(t, "error", attr.Key)
	assert.Empty(t, attr.Value.String())
}

func TestCookie(t *testing.T) {
	t.Parallel()

	var logBuf bytes.Buffer
	testLogger := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{}))

	testLogger.Info("stored", sl.Cookie("sid", "oeee.cafe"))

	loggedOutput := logBuf.String()
	assert.Contains(t, loggedOutput, "cookie.name=sid")
	assert.Contains(t, loggedOutput, "cookie.host=oeee.cafe")
}
