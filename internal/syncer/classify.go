package syncer

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sony/gobreaker"

	"github.com/gridpulse/energy-sync/internal/provider"
)

// FailureKind is the stable failure code recorded in results and in the
// sync log's error field.
type FailureKind string

const (
	// FailureNone marks a successful result
	FailureNone FailureKind = ""
	// FailureAuth is a provider 401/403; the credential's cached token is
	// evicted so the next run refreshes it. Not retried within the run.
	FailureAuth FailureKind = "authentication"
	// FailureRateLimited is a provider 429; expected and recoverable, so
	// it is logged at warning severity.
	FailureRateLimited FailureKind = "rate_limited"
	// FailureNetwork covers timeouts, refused connections, open circuit
	// breakers and other provider-side errors. Retried on the next tick.
	FailureNetwork FailureKind = "network"
	// FailureParse means the provider response shape changed
	FailureParse FailureKind = "parse"
	// FailureStorage is a database failure during the run
	FailureStorage FailureKind = "storage"
	// FailureCritical is a storage failure while opening the log entry;
	// the run aborts before any fetch.
	FailureCritical FailureKind = "critical"
	// FailureOverlap means another sync for the same entity is already in
	// progress within the guard window.
	FailureOverlap FailureKind = "overlap"
)

// ClassifyFetchError maps an adapter error onto the failure taxonomy and a
// stable message for the sync log.
func ClassifyFetchError(err error) (FailureKind, string) {
	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.IsAuthStatus():
			return FailureAuth, fmt.Sprintf("authentication rejected by provider: %v", err)
		case statusErr.IsRateLimited():
			return FailureRateLimited, fmt.Sprintf("provider rate limit hit: %v", err)
		default:
			return FailureNetwork, fmt.Sprintf("provider request failed: %v", err)
		}
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return FailureNetwork, fmt.Sprintf("provider circuit open: %v", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureNetwork, fmt.Sprintf("provider request timed out: %v", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureNetwork, fmt.Sprintf("network error reaching provider: %v", err)
	}

	return FailureNetwork, fmt.Sprintf("fetch failed: %v", err)
}
