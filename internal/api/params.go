package api

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	paramPeriodID = "period_id"
	// legacy name used by the /api routes
	paramDotID = "dot_id"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// periodID extracts a positive numeric period id from period_id or dot_id.
func periodID(r *http.Request) (int64, bool) {
	query := r.URL.Query()
	raw := strings.TrimSpace(query.Get(paramPeriodID))
	if raw == "" {
		raw = strings.TrimSpace(query.Get(paramDotID))
	}
	if raw == "" {
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
