package errors

import (
	"errors"
	"log/slog"
	"sort"
)

// Log logs err with logger. If err is a StructuredError, its cause and
// metadata are rendered as fields, sorted by key.
func Log(logger *slog.Logger, err error) {
	var serr *StructuredError
	if !errors.As(err, &serr) {
		logger.Error(err.Error())
		return
	}

	args := make([]any, 0, len(serr.metadata)*2+2)

	cause := serr.metadata["cause"]
	if serr.cause != nil {
		cause = serr.cause
	}
	if cause != nil {
		args = append(args, "cause", cause)
	}

	keys := make([]string, 0, len(serr.metadata))
	for k := range serr.metadata {
		if k != "cause" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		args = append(args, k, serr.metadata[k])
	}

	logger.Error(serr.Error(), args...)
}
