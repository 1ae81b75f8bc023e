package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/dkhp-proxy/pkg/portal"
)

const (
	msgCredentialsRequired = "Username and password are required"
	msgInvalidCredentials  = "Invalid credentials"
	msgAuthFailed          = "Authentication failed. Please try again later."
	msgInvalidPeriodID     = "Invalid or missing period_id parameter"
	msgBodyRequired        = "Request body is required"
	msgInvalidBody         = "Request body is not valid JSON"
	msgClassIDsRequired    = "class_ids must be a non-empty array"
	msgRegIDRequired       = "Registration ID is required"
	msgCancelled           = "Registration cancelled successfully"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	ClassIDs []int64 `json:"class_ids"`
}

// decodeBody reads a JSON request body into target. It returns the error message to answer with.
func decodeBody(r *http.Request, target any) (string, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return msgBodyRequired, false
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(target); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "Request body too large", false
		}
		if errors.Is(err, io.EOF) {
			return msgBodyRequired, false
		}
		return msgInvalidBody, false
	}
	return "", true
}

// EndpointLogin handles 'POST /login' with {username, password}.
func (s *Service) EndpointLogin(rw http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if msg, ok := decodeBody(r, &req); !ok {
		writeError(rw, http.StatusBadRequest, msg)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(rw, http.StatusBadRequest, msgCredentialsRequired)
		return
	}

	token, err := s.Portal.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, portal.ErrInvalidCredentials) {
			writeError(rw, http.StatusUnauthorized, msgInvalidCredentials)
			return
		}

		status := http.StatusInternalServerError
		var upErr *portal.UpstreamError
		if errors.As(err, &upErr) {
			switch upErr.ErrorClass {
			case portal.ErrorClassNetwork:
				status = http.StatusServiceUnavailable
			case portal.ErrorClassMalformed:
				status = http.StatusBadGateway
			}
		}
		hlog.FromRequest(r).Error().Err(err).Int("status", status).Msg("Login failed")
		writeError(rw, status, msgAuthFailed)
		return
	}

	writeJSONCode(rw, http.StatusOK, &Response{Success: true, Token: token})
}

// EndpointPeriods handles 'GET /periods'.
func (s *Service) EndpointPeriods(rw http.ResponseWriter, r *http.Request) {
	periods, err := s.Portal.Periods(r.Context(), tokenFrom(r.Context()))
	if err != nil {
		writeUpstreamError(rw, r, err, http.StatusInternalServerError)
		return
	}
	writeData(rw, periods)
}

// EndpointAggregated handles 'GET /aggregated?period_id={number}'.
func (s *Service) EndpointAggregated(rw http.ResponseWriter, r *http.Request) {
	id, ok := periodID(r)
	if !ok {
		writeError(rw, http.StatusBadRequest, msgInvalidPeriodID)
		return
	}

	records, err := s.Aggregator.Collect(r.Context(), tokenFrom(r.Context()), id)
	if err != nil {
		writeUpstreamError(rw, r, err, http.StatusInternalServerError)
		return
	}
	writeData(rw, records)
}

// EndpointRegistrations handles 'GET /registrations?period_id={number}'.
func (s *Service) EndpointRegistrations(rw http.ResponseWriter, r *http.Request) {
	id, ok := periodID(r)
	if !ok {
		writeError(rw, http.StatusBadRequest, msgInvalidPeriodID)
		return
	}

	regs, err := s.Portal.Registrations(r.Context(), tokenFrom(r.Context()), id)
	if err != nil {
		writeUpstreamError(rw, r, err, http.StatusInternalServerError)
		return
	}
	writeData(rw, regs)
}

// EndpointRegister handles 'POST /registrations' with {class_ids: [number]}.
// The answer maps every distinct class id to its own outcome.
func (s *Service) EndpointRegister(rw http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if msg, ok := decodeBody(r, &req); !ok {
		if msg == msgInvalidBody {
			msg = msgClassIDsRequired
		}
		writeError(rw, http.StatusBadRequest, msg)
		return
	}
	if len(req.ClassIDs) == 0 {
		writeError(rw, http.StatusBadRequest, msgClassIDsRequired)
		return
	}

	outcomes := s.Registrar.RegisterAll(r.Context(), tokenFrom(r.Context()), req.ClassIDs)
	writeData(rw, outcomes)
}

// EndpointCancel handles 'DELETE /registrations/{regId}'.
func (s *Service) EndpointCancel(rw http.ResponseWriter, r *http.Request) {
	regID := strings.TrimSpace(chi.URLParam(r, "regId"))
	if regID == "" {
		writeError(rw, http.StatusBadRequest, msgRegIDRequired)
		return
	}

	if err := s.Portal.CancelRegistration(r.Context(), tokenFrom(r.Context()), regID); err != nil {
		writeUpstreamError(rw, r, err, http.StatusInternalServerError)
		return
	}
	writeMessage(rw, msgCancelled)
}

// EndpointCancelMissingID handles 'DELETE /registrations' without an id.
func (s *Service) EndpointCancelMissingID(rw http.ResponseWriter, _ *http.Request) {
	writeError(rw, http.StatusBadRequest, msgRegIDRequired)
}

// EndpointHealth handles 'GET /health'.
func (s *Service) EndpointHealth(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte("OK"))
}

// EndpointReady handles 'GET /ready'. Without a health store the proxy is always ready.
func (s *Service) EndpointReady(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.Health != nil {
		if err := s.Health.Check(r.Context()); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("Readiness check failed")
			rw.WriteHeader(http.StatusServiceUnavailable)
			rw.Write([]byte("NOT READY"))
			return
		}
	}
	rw.WriteHeader(http.StatusOK)
	rw.Write([]byte("OK"))
}
