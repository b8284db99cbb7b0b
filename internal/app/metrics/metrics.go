// Package metrics counts lifecycle outcomes so degraded and failed calls
// are visible to monitoring.
package metrics

import (
	"errors"

	"github.com/ghaditya/spotify-group-session/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is nil-safe: a nil *Recorder records nothing.
type Recorder struct {
	ops      *prometheus.CounterVec
	degraded *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "group_session",
			Name:      "operations_total",
			Help:      "Lifecycle operations by outcome class.",
		}, []string{"op", "outcome"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "group_session",
			Name:      "degraded_total",
			Help:      "Operations that succeeded with a failed side effect.",
		}, []string{"op", "reason"}),
	}
	reg.MustRegister(r.ops, r.degraded)
	return r
}

func (r *Recorder) Observe(op string, err error) {
	if r == nil {
		return
	}
	r.ops.WithLabelValues(op, Outcome(err)).Inc()
}

func (r *Recorder) Degraded(op, reason string) {
	if r == nil {
		return
	}
	r.degraded.WithLabelValues(op, reason).Inc()
}

// Outcome is the label value for err's outcome class.
func Outcome(err error) string {
	switch k := domain.Kind(err); {
	case k == nil:
		return "ok"
	case errors.Is(k, domain.ErrValidation):
		return "validation"
	case errors.Is(k, domain.ErrAuth):
		return "auth"
	case errors.Is(k, domain.ErrConflict):
		return "conflict"
	case errors.Is(k, domain.ErrNotFound):
		return "not_found"
	case errors.Is(k, domain.ErrUnimplemented):
		return "unimplemented"
	default:
		return "store"
	}
}
