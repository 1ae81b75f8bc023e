package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/dkhp-proxy/pkg/portal"
)

// Response is the envelope of every JSON answer of the proxy.
// Exactly one of Data, Message or Token is set on success; Error is set on failure.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
}

const msgInternal = "Internal server error"

// writeJSONCode writes the JSON representation of value using the given HTTP status code.
func writeJSONCode(rw http.ResponseWriter, code int, value any) {
	val, err := json.Marshal(value)
	if err != nil {
		code = http.StatusInternalServerError
		val = []byte(`{"success":false,"error":"Internal server error"}`)
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(code)
	rw.Write(val)
}

func writeData(rw http.ResponseWriter, data any) {
	writeJSONCode(rw, http.StatusOK, &Response{Success: true, Data: data})
}

func writeMessage(rw http.ResponseWriter, message string) {
	writeJSONCode(rw, http.StatusOK, &Response{Success: true, Message: message})
}

func writeError(rw http.ResponseWriter, code int, message string) {
	writeJSONCode(rw, code, &Response{Success: false, Error: message})
}

// writeUpstreamError maps a failed portal call onto the proxy response.
// Transport failures answer networkStatus.
func writeUpstreamError(rw http.ResponseWriter, r *http.Request, err error, networkStatus int) {
	var upErr *portal.UpstreamError
	if !errors.As(err, &upErr) {
		hlog.FromRequest(r).Error().Err(err).Msg("Request failed")
		writeError(rw, http.StatusInternalServerError, msgInternal)
		return
	}

	status := upErr.HTTPStatus(networkStatus)
	event := hlog.FromRequest(r).Warn()
	if status >= 500 {
		event = hlog.FromRequest(r).Error()
	}
	event.Err(err).
		Str("error_class", string(upErr.ErrorClass)).
		Int("status", status).
		Msg("Upstream call failed")

	writeError(rw, status, upErr.Message)
}
