package redis

import (
	"context"
	"errors"
	"strings"

	"github.com/fluxgate/fluxgate/backends"
)

// connErrorStrings contains string patterns used to identify connectivity-related
// errors in Redis connections. These patterns distinguish temporary connectivity
// issues (which the resilience layer may retry) from other types of errors, like
// invalid commands or malformed script replies.
//
// Redis operational errors like "NOSCRIPT" or "WRONGTYPE" are intentionally
// excluded as they must not be retried blindly.
//
// The patterns are matched against the lowercase version of error messages using
// string containment.
var connErrorStrings = []string{
	"connection refused",
	"connection timeout",
	"connection reset",
	"network is unreachable",
	"no such host",
	"timeout",
	"i/o timeout",
	"broken pipe",
	"connection pool exhausted",
	"loading the dataset in memory",
	"clusterdown",
}

// classify marks connectivity failures as retryable for the resilience layer.
// Caller-initiated cancellation is never retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isConnError(err) {
		return backends.MarkRetryable(err)
	}
	return err
}

func isConnError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range connErrorStrings {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
