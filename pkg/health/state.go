// Package health tracks how the portal has been answering the proxy.
// Outcomes of upstream calls are recorded in Redis so that every proxy
// instance shares one view, which the readiness probe reports.
package health

import (
	"time"
)

// Redis keys for upstream health state storage.
const (
	RedisKeyConsecutiveFailures = "dkhp:upstream:consecutive_failures"
	RedisKeyLastSuccess         = "dkhp:upstream:last_success"
	RedisKeyLastFailure         = "dkhp:upstream:last_failure"
	RedisKeyLastStatus          = "dkhp:upstream:last_status"
	RedisKeyLastEndpoint        = "dkhp:upstream:last_endpoint"
)

// FailureThreshold is the number of consecutive failed upstream calls
// after which the portal is reported as degraded.
const FailureThreshold = 5

// State is the shared view of upstream health.
type State struct {
	// ConsecutiveFailures counts failed calls since the last call the portal answered.
	ConsecutiveFailures int `json:"consecutive_failures"`

	LastSuccess time.Time `json:"last_success"`
	LastFailure time.Time `json:"last_failure"`

	// LastStatus is the HTTP status of the most recent call, 0 when it never got a response.
	LastStatus int `json:"last_status"`

	// LastEndpoint is the portal endpoint of the most recent call.
	LastEndpoint string `json:"last_endpoint,omitempty"`

	Healthy bool `json:"healthy"`
}

// UpdateHealth recomputes Healthy from ConsecutiveFailures.
func (s *State) UpdateHealth() {
	s.Healthy = s.ConsecutiveFailures < FailureThreshold
}

