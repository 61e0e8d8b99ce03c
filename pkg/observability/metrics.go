package observability

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aretw0/anima/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "anima"

// Metrics holds the Prometheus collectors fed by lifecycle hooks.
type Metrics struct {
	stepDuration       *prometheus.HistogramVec
	stepFailures       *prometheus.CounterVec
	decisions          *prometheus.CounterVec
	branches           *prometheus.CounterVec
	perceptions        *prometheus.CounterVec
	perceptionDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of cognitive steps, including stream consumption",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"soul", "kind"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "step_failures_total",
			Help:      "Total number of failed cognitive steps by error class",
		}, []string{"soul", "kind", "reason"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decisions_total",
			Help:      "Total number of decisions by chosen label",
		}, []string{"soul", "process", "choice"}),
		branches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "branches_total",
			Help:      "Total number of tail calls into subprocesses",
		}, []string{"soul", "to"}),
		perceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "perceptions_total",
			Help:      "Total number of perceptions by outcome",
		}, []string{"soul", "outcome"}),
		perceptionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "perception_duration_seconds",
			Help:      "Duration of whole perceptions",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"soul"}),
	}

	for _, c := range []prometheus.Collector{m.stepDuration, m.stepFailures, m.decisions, m.branches, m.perceptions, m.perceptionDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks recording into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepFinish: func(_ context.Context, e *domain.StepEvent) {
			m.stepDuration.WithLabelValues(e.Soul, e.Kind).Observe(e.Duration.Seconds())
			if e.Err != nil {
				m.stepFailures.WithLabelValues(e.Soul, e.Kind, Reason(e.Err)).Inc()
			}
		},
		OnDecision: func(_ context.Context, e *domain.DecisionEvent) {
			m.decisions.WithLabelValues(e.Soul, e.Process, e.Choice).Inc()
		},
		OnBranch: func(_ context.Context, e *domain.BranchEvent) {
			m.branches.WithLabelValues(e.Soul, e.To).Inc()
		},
		OnPerception: func(_ context.Context, e *domain.PerceptionEvent) {
			outcome := "ok"
			switch {
			case e.Fallback:
				outcome = "fallback"
			case e.Err != nil:
				outcome = Reason(e.Err)
			}
			m.perceptions.WithLabelValues(e.Soul, outcome).Inc()
			m.perceptionDuration.WithLabelValues(e.Soul).Observe(e.Duration.Seconds())
		},
	}
}

// Reason classifies an error into a low-cardinality label.
func Reason(err error) string {
	var (
		valErr  *domain.ValidationError
		procErr *domain.ProcessorError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrBusy):
		return "busy"
	case errors.As(err, &valErr):
		return "validation"
	case errors.Is(err, domain.ErrStreamAbandoned):
		return "abandoned"
	case errors.As(err, &procErr):
		return "processor"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "other"
	}
}

// LoggingHooks writes every lifecycle event to logger.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepStart: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step_start", "soul", e.Soul, "step", e.Step, "kind", e.Kind, "model", e.Model)
		},
		OnStepFinish: func(ctx context.Context, e *domain.StepEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "step_failed", "soul", e.Soul, "step", e.Step, "duration", e.Duration, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "step_finish", "soul", e.Soul, "step", e.Step, "duration", e.Duration, "streamed", e.Streamed)
		},
		OnDecision: func(ctx context.Context, e *domain.DecisionEvent) {
			logger.InfoContext(ctx, "decision", "soul", e.Soul, "process", e.Process, "choice", e.Choice)
		},
		OnBranch: func(ctx context.Context, e *domain.BranchEvent) {
			logger.InfoContext(ctx, "branch", "soul", e.Soul, "from", e.From, "to", e.To, "label", e.Label)
		},
		OnPerception: func(ctx context.Context, e *domain.PerceptionEvent) {
			logger.InfoContext(ctx, "perception", "soul", e.Soul, "duration", e.Duration, "fallback", e.Fallback, "outcome", Reason(e.Err))
		},
	}
}
