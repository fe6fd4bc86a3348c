package metrics

import "github.com/prometheus/client_golang/prometheus"

// Answer cycle metrics. Injected into the orchestrator as a struct so tests
// can use an unregistered instance.
type Answer struct {
	Attempts   prometheus.Histogram
	Rejections *prometheus.CounterVec
	Outcomes   *prometheus.CounterVec
}

// NewAnswer creates answer cycle collectors (unregistered).
func NewAnswer() *Answer {
	return &Answer{
		Attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_attempts",
			Help:      "Generation attempts per answer cycle",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_rejections_total",
			Help:      "Candidate answers rejected by the citation validator",
		}, []string{"reason"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answer_outcomes_total",
			Help:      "Answer cycles by terminal outcome",
		}, []string{"outcome"}),
	}
}

// Register registers the collectors with reg.
func (a *Answer) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{a.Attempts, a.Rejections, a.Outcomes} {
		if err := reg.Register(c); err != nil {
			return err //nolint:wrapcheck // registry error is descriptive
		}
	}
	return nil
}
