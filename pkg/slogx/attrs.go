package slogx

import (
	"fmt"
	"log/slog"
	"net/url"
)

const (
	// KeyLoggerName is the key for the logger name attribute.
	KeyLoggerName = "logger"
	// KeyError is the key for error attributes.
	KeyError = "error"
)

// Error returns a slog.Attr with key "error" holding the error message.
// A nil error yields an empty message.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// Stringer creates a slog.Attr with the string form of value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

// URL creates a slog.Attr for an address. A nil address is logged as an empty string.
func URL(key string, u *url.URL) slog.Attr {
	if u == nil {
		return slog.String(key, "")
	}
	return slog.String(key, u.String())
}

// LoggerName returns an attribute naming the component that logs.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// Recovered turns a value recovered from a panic into an attribute.
func Recovered(r any) slog.Attr {
	if err, ok := r.(error); ok {
		return Error(err)
	}
	return slog.String("panic", fmt.Sprint(r))
}
