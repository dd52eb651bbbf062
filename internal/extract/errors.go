package extract

import (
	"errors"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrRateLimited marks an extraction failure caused by throttling or quota
// exhaustion on the model endpoint. Callers may retry these with backoff;
// every other extraction error is terminal for the item.
var ErrRateLimited = errors.New("extraction rate limited")

// IsRateLimit reports whether err represents a throttling/quota condition.
// Vertex AI surfaces these as gRPC ResourceExhausted or HTTP 429 depending on
// the transport, so both are checked, plus the sentinel for callers that
// classify upstream.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return true
	}

	// Last resort: some layers flatten the original error into a message.
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
