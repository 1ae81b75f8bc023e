package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/dkhp-proxy/pkg/portal"
)

// DefaultChunkSize bounds the number of subjects fetched at the same time.
const DefaultChunkSize = 5

// Degradation stages reported in metrics and logs.
const (
	stageClasses   = "classes"
	stageSchedules = "schedules"
)

var (
	aggregateWavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dkhp_aggregate_waves_total",
		Help: "Total number of subject waves processed by the aggregator",
	})

	aggregateDegradedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dkhp_aggregate_degraded_total",
		Help: "Sub-fetches that failed and were replaced by an empty result, by stage",
	}, []string{"stage"})

	aggregateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dkhp_aggregate_duration_seconds",
		Help:    "Duration of a full aggregation in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	})

	aggregateRecords = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dkhp_aggregate_records",
		Help:    "Number of records produced per aggregation",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)

// Fetcher is the portal surface the aggregator needs. *portal.Client implements it.
type Fetcher interface {
	Subjects(ctx context.Context, token string, periodID int64) ([]portal.Subject, error)
	Classes(ctx context.Context, token string, periodID int64, subjectCode string) ([]portal.Class, error)
	ClassSchedules(ctx context.Context, token string, classID int64) ([]portal.Schedule, error)
}

// Config holds aggregator configuration.
type Config struct {
	// ChunkSize is the number of subjects processed concurrently per wave.
	ChunkSize int
}

// DefaultConfig returns the configuration matching the portal's tolerated load.
func DefaultConfig() Config {
	return Config{ChunkSize: DefaultChunkSize}
}

// Record is one (subject, class) pair with the class schedules.
type Record struct {
	Subject   portal.Subject    `json:"subject"`
	Class     portal.Class      `json:"class"`
	Schedules []portal.Schedule `json:"schedules"`
}

// Aggregator builds the joined subject/class/schedule view of a period.
type Aggregator struct {
	fetcher Fetcher
	config  Config
	logger  zerolog.Logger
}

// NewAggregator creates a new aggregator.
func NewAggregator(fetcher Fetcher, config Config) *Aggregator {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}

	return &Aggregator{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "aggregator").Logger(),
	}
}

// Collect returns every (subject, class) record of the period.
// The subject listing is the only hard dependency; its error is returned unchanged.
// After that, failures degrade to empty sub-results and Collect only returns
// an error if ctx is done between waves.
func (a *Aggregator) Collect(ctx context.Context, token string, periodID int64) ([]Record, error) {
	start := time.Now()

	subjects, err := a.fetcher.Subjects(ctx, token, periodID)
	if err != nil {
		return nil, err
	}

	chunkSize := a.config.ChunkSize
	waves := (len(subjects) + chunkSize - 1) / chunkSize

	a.logger.Debug().
		Int64("period_id", periodID).
		Int("subjects", len(subjects)).
		Int("waves", waves).
		Msg("Starting aggregation")

	records := make([]Record, 0, len(subjects))
	degraded := 0

	for wave := 0; wave < waves; wave++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("aggregation interrupted after %d/%d waves: %w", wave, waves, err)
		}

		lo := wave * chunkSize
		hi := min(lo+chunkSize, len(subjects))
		chunk := subjects[lo:hi]

		// Each subject writes only to its own slot.
		perSubject := make([]subjectResult, len(chunk))

		var g errgroup.Group
		for i := range chunk {
			g.Go(func() error {
				perSubject[i] = a.collectSubject(ctx, token, periodID, chunk[i])
				return nil
			})
		}
		_ = g.Wait()
		aggregateWavesTotal.Inc()

		for _, res := range perSubject {
			records = append(records, res.records...)
			degraded += res.degraded
		}
	}

	aggregateDuration.Observe(time.Since(start).Seconds())
	aggregateRecords.Observe(float64(len(records)))

	a.logger.Info().
		Int64("period_id", periodID).
		Int("subjects", len(subjects)).
		Int("records", len(records)).
		Int("degraded", degraded).
		Dur("duration", time.Since(start)).
		Msg("Aggregation complete")

	return records, nil
}

type subjectResult struct {
	records  []Record
	degraded int
}

// collectSubject fetches the classes of one subject and the schedules of each class.
func (a *Aggregator) collectSubject(ctx context.Context, token string, periodID int64, subject portal.Subject) subjectResult {
	classes, err := a.fetcher.Classes(ctx, token, periodID, subject.Code)
	if err != nil {
		aggregateDegradedTotal.WithLabelValues(stageClasses).Inc()
		a.logger.Warn().
			Err(err).
			Str("subject", subject.Code).
			Msg("Failed to fetch classes for subject")
		return subjectResult{degraded: 1}
	}

	records := make([]Record, len(classes))
	failed := make([]bool, len(classes))

	var g errgroup.Group
	for i := range classes {
		g.Go(func() error {
			schedules, err := a.fetcher.ClassSchedules(ctx, token, classes[i].ID)
			if err != nil {
				schedules = nil
				failed[i] = true
				aggregateDegradedTotal.WithLabelValues(stageSchedules).Inc()
				a.logger.Warn().
					Err(err).
					Str("subject", subject.Code).
					Int64("class_id", classes[i].ID).
					Msg("Failed to fetch details for class")
			}
			if schedules == nil {
				schedules = []portal.Schedule{}
			}
			records[i] = Record{
				Subject:   subject,
				Class:     classes[i],
				Schedules: schedules,
			}
			return nil
		})
	}
	_ = g.Wait()

	res := subjectResult{records: records}
	for _, f := range failed {
		if f {
			res.degraded++
		}
	}
	return res
}
