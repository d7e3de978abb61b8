package sl

import (
	"log/slog"
)

// Err creates a slog.Attr with the given error. A nil error is logged as an empty string.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}

	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Cookie describes a cookie by name and host only; values never reach the log.
func Cookie(name, host string) slog.Attr {
	return slog.Group("cookie",
		slog.String("name", name),
		slog.String("host", host),
	)
}
