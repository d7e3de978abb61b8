package cookies

import (
	"strconv"
	"strings"
	"time"

	"github.com/oeee-cafe/oeee-client/internal/models"
)

// A record is seven fields: name, value, domain, path, maxAge, secure, version.
// Records of one origin are joined with recordDelimiter. Neither delimiter is
// escaped, so they are chosen to be unlikely inside cookie names and values.
const (
	fieldDelimiter  = "#;#"
	recordDelimiter = "#|#"
	fieldCount      = 7
)

// encodeRecords serializes records with maxAge rewritten as the seconds left at now.
func encodeRecords(records []models.CookieRecord, now time.Time) string {
	encoded := make([]string, 0, len(records))
	for _, rec := range records {
		encoded = append(encoded, encodeRecord(rec, now))
	}

	return strings.Join(encoded, recordDelimiter)
}

func encodeRecord(rec models.CookieRecord, now time.Time) string {
	return strings.Join([]string{
		rec.Name,
		rec.Value,
		rec.Domain,
		rec.Path,
		strconv.FormatInt(rec.RemainingSeconds(now), 10),
		strconv.FormatBool(rec.Secure),
		strconv.Itoa(rec.Version),
	}, fieldDelimiter)
}

// decodeRecords parses one origin entry. Records that do not parse are
// skipped and counted; they never fail the whole entry.
func decodeRecords(raw string, storedAt time.Time) ([]models.CookieRecord, int) {
	if raw == "" {
		return nil, 0
	}

	var (
		records []models.CookieRecord
		skipped int
	)

	for _, part := range strings.Split(raw, recordDelimiter) {
		rec, ok := decodeRecord(part, storedAt)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	return records, skipped
}

func decodeRecord(raw string, storedAt time.Time) (models.CookieRecord, bool) {
	fields := strings.Split(raw, fieldDelimiter)
	if len(fields) != fieldCount || fields[0] == "" {
		return models.CookieRecord{}, false
	}

	maxAge, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return models.CookieRecord{}, false
	}
	secure, err := strconv.ParseBool(fields[5])
	if err != nil {
		return models.CookieRecord{}, false
	}
	version, err := strconv.Atoi(fields[6])
	if err != nil {
		return models.CookieRecord{}, false
	}

	return models.CookieRecord{
		Name:          fields[0],
		Value:         fields[1],
		Domain:        fields[2],
		Path:          fields[3],
		MaxAgeSeconds: maxAge,
		Secure:        secure,
		Version:       version,
		StoredAt:      storedAt,
	}, true
}
