// Package sl holds slog helpers shared across packages.
package sl

import "log/slog"

// Err returns an slog attribute with key "error" and the error text.
//
//	log.Error("failed to save payment", sl.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}
