package batch

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/dkhp-proxy/pkg/portal"
)

var registrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dkhp_registrations_total",
	Help: "Class registration attempts by outcome",
}, []string{"outcome"})

// Enroller is the portal surface the registrar needs. *portal.Client implements it.
type Enroller interface {
	Register(ctx context.Context, token string, classID int64) (*portal.Envelope, error)
}

// Outcome is the result of registering one class.
type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Registrar registers a learner in several classes at once.
type Registrar struct {
	enroller Enroller
	limit    int
	logger   zerolog.Logger
}

// NewRegistrar creates a registrar. limit bounds concurrent register calls; <= 0 means unbounded.
func NewRegistrar(enroller Enroller, limit int) *Registrar {
	return &Registrar{
		enroller: enroller,
		limit:    limit,
		logger:   log.With().Str("component", "registrar").Logger(),
	}
}

// RegisterAll submits one registration per distinct class id and returns the outcome of each.
// It never fails as a whole; upstream errors become unsuccessful outcomes.
func (r *Registrar) RegisterAll(ctx context.Context, token string, classIDs []int64) map[int64]Outcome {
	ids := make([]int64, 0, len(classIDs))
	seen := make(map[int64]struct{}, len(classIDs))
	for _, id := range classIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	outcomes := make([]Outcome, len(ids))

	var g errgroup.Group
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}
	for i, id := range ids {
		g.Go(func() error {
			outcomes[i] = r.registerOne(ctx, token, id)
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[int64]Outcome, len(ids))
	for i, id := range ids {
		results[id] = outcomes[i]
	}
	return results
}

func (r *Registrar) registerOne(ctx context.Context, token string, classID int64) Outcome {
	env, err := r.enroller.Register(ctx, token, classID)
	if err != nil {
		registrationsTotal.WithLabelValues("error").Inc()
		r.logger.Warn().Err(err).Int64("class_id", classID).Msg("Registration request failed")
		message := "Registration failed"
		var upErr *portal.UpstreamError
		if errors.As(err, &upErr) && upErr.Message != "" {
			message = upErr.Message
		}
		return Outcome{Success: false, Message: message}
	}

	if !env.Success {
		registrationsTotal.WithLabelValues("rejected").Inc()
		message := env.Message
		if message == "" {
			message = "Registration failed"
		}
		r.logger.Info().Int64("class_id", classID).Str("message", message).Msg("Registration rejected by portal")
		return Outcome{Success: false, Message: message}
	}

	registrationsTotal.WithLabelValues("success").Inc()
	message := env.Message
	if message == "" {
		message = "Registration successful"
	}
	return Outcome{Success: true, Message: message}
}
