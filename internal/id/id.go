package id

import (
	"time"

	"github.com/google/uuid"
)

// BucketPrefix starts every rate-limit bucket key.
const BucketPrefix = "ratelimit_"

// bucketLayout is an ISO-8601 timestamp truncated to the minute.
const bucketLayout = "2006-01-02T15:04"

// FormatBucketKey returns the rate-limit key for the minute containing t,
// like "ratelimit_2025-01-15T09:30". t is converted to UTC first.
func FormatBucketKey(t time.Time) string {
	return BucketPrefix + t.UTC().Format(bucketLayout)
}

// NewRequestID returns a time-ordered request identifier.
func NewRequestID() string {
	return uuid.Must(uuid.NewV7()).String()
}
