// Package monitoring records per-transition metrics: prometheus vectors
// for scraping plus a last-seen snapshot per (policy, resource) pair.
package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/catherinevee/policyguard/internal/logger"
)

// Action is the controller transition a metric describes.
type Action string

const (
	ActionViolationDetected    Action = "violation_detected"
	ActionViolationWarning     Action = "violation_warning"
	ActionRemediation          Action = "remediation"
	ActionImmediateRemediation Action = "immediate_remediation"
)

// Status qualifies the transition outcome.
type Status string

const (
	StatusPending Status = "pending"
	StatusWarning Status = "warning"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Metric is one recorded measurement.
type Metric struct {
	PolicyID   string    `json:"policy_id"`
	ResourceID string    `json:"resource_id"`
	Action     Action    `json:"action"`
	Status     Status    `json:"status"`
	Duration   float64   `json:"duration_seconds"`
	Timestamp  time.Time `json:"timestamp"`
}

// Recorder is the metric sink. Safe for concurrent use.
type Recorder struct {
	actions   *prometheus.CounterVec
	durations *prometheus.HistogramVec
	tickFails *prometheus.CounterVec
	log       logger.Logger

	mu   sync.RWMutex
	last map[string]Metric
}

// NewRecorder creates a recorder registered against reg. A nil registerer
// gets a private registry, which keeps tests independent.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Recorder{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policyguard_actions_total",
			Help: "Policy transitions by action and status.",
		}, []string{"policy_id", "action", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "policyguard_remediation_duration_seconds",
			Help:    "Time spent applying remediation actions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"policy_id", "action"}),
		tickFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policyguard_evaluation_failures_total",
			Help: "Policy evaluation ticks that failed.",
		}, []string{"policy_id"}),
		log:  logger.New("monitoring"),
		last: make(map[string]Metric),
	}

	reg.MustRegister(r.actions, r.durations, r.tickFails)
	return r
}

// Record stores a measurement.
func (r *Recorder) Record(m Metric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	r.actions.WithLabelValues(m.PolicyID, string(m.Action), string(m.Status)).Inc()
	if m.Action == ActionRemediation || m.Action == ActionImmediateRemediation {
		r.durations.WithLabelValues(m.PolicyID, string(m.Action)).Observe(m.Duration)
	}

	r.mu.Lock()
	r.last[m.PolicyID+":"+m.ResourceID] = m
	r.mu.Unlock()

	r.log.Info("Recorded metric",
		logger.String("policy_id", m.PolicyID),
		logger.String("resource_id", m.ResourceID),
		logger.String("action", string(m.Action)),
		logger.String("status", string(m.Status)),
		logger.Float64("duration_seconds", m.Duration))
}

// EvaluationFailed counts a failed evaluation tick for a policy.
func (r *Recorder) EvaluationFailed(policyID string) {
	r.tickFails.WithLabelValues(policyID).Inc()
}

// Snapshot returns the last metric recorded per (policy, resource) pair.
func (r *Recorder) Snapshot() map[string]Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Metric, len(r.last))
	for k, v := range r.last {
		out[k] = v
	}
	return out
}
