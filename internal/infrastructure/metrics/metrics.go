// Package metrics exposes the Prometheus series of the leveling engine.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/alem-hub/levelup/internal/domain/shared"
)

const namespace = "levelup"

var (
	// awardsTotal counts award attempts.
	// Labels: activity (text, voice), outcome (granted, disabled, cooling_down, race_lost, error)
	awardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "award",
		Name:      "attempts_total",
		Help:      "Award attempts by activity and outcome",
	}, []string{"activity", "outcome"})

	xpGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "award",
		Name:      "xp_granted_total",
		Help:      "XP written by committed awards",
	}, []string{"activity"})

	awardLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "award",
		Name:      "duration_seconds",
		Help:      "Time from dispatch to the award outcome",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"activity"})

	levelUps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "progression",
		Name:      "level_ups_total",
		Help:      "Level increases observed by the reactor",
	})

	// platformFailures counts failed Discord calls.
	// Labels: op (GrantRole, SendMessage, RolesHeld, ...)
	platformFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "platform",
		Name:      "failures_total",
		Help:      "Failed platform actions by operation",
	}, []string{"op"})

	// recalcRuns counts full recalculations.
	// Labels: status (success, error)
	recalcRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recalc",
		Name:      "runs_total",
		Help:      "Full level recalculations by status",
	}, []string{"status"})

	recalcRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recalc",
		Name:      "records_total",
		Help:      "Records visited by recalculation, by result",
	}, []string{"result"})

	eventHandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "handler_duration_seconds",
		Help:      "Event handler execution time",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type", "status"})

	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job executions by job and status",
	}, []string{"job", "status"})
)

// Award outcome labels.
const (
	OutcomeGranted     = "granted"
	OutcomeDisabled    = "disabled"
	OutcomeCoolingDown = "cooling_down"
	OutcomeRaceLost    = "race_lost"
	OutcomeError       = "error"
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordAward counts one award attempt. xp is added to the granted total
// only for OutcomeGranted.
func RecordAward(activity, outcome string, xp int, d time.Duration) {
	awardsTotal.WithLabelValues(activity, outcome).Inc()
	awardLatency.WithLabelValues(activity).Observe(d.Seconds())
	if outcome == OutcomeGranted && xp > 0 {
		xpGranted.WithLabelValues(activity).Add(float64(xp))
	}
}

// RecordLevelUp counts one level increase.
func RecordLevelUp() {
	levelUps.Inc()
}

// RecordPlatformFailure counts err against op when it is a platform failure.
func RecordPlatformFailure(op string, err error) {
	if err == nil {
		return
	}
	var de *shared.DomainError
	if errors.As(err, &de) && de.Op != "" {
		op = de.Op
	}
	platformFailures.WithLabelValues(op).Inc()
}

// RecordRecalculation counts one run and its per-record results.
func RecordRecalculation(updated, skipped int, err error) {
	recalcRuns.WithLabelValues(status(err)).Inc()
	recalcRecords.WithLabelValues("updated").Add(float64(updated))
	recalcRecords.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordJobRun counts one scheduler execution.
func RecordJobRun(job string, err error) {
	jobRuns.WithLabelValues(job, status(err)).Inc()
}

// EventBusObserver feeds event handler timings into Prometheus.
type EventBusObserver struct{}

// ObserveEventHandler implements messaging.HandlerObserver.
func (EventBusObserver) ObserveEventHandler(eventType string, d time.Duration, err error) {
	eventHandlerDuration.WithLabelValues(eventType, status(err)).Observe(d.Seconds())
}

// Recorder exposes the package functions as methods so the application layer
// can depend on a small interface instead of this package.
type Recorder struct{}

func (Recorder) RecordAward(activity, outcome string, xp int, d time.Duration) {
	RecordAward(activity, outcome, xp, d)
}

func (Recorder) RecordLevelUp() { RecordLevelUp() }

func (Recorder) RecordRecalculation(updated, skipped int, err error) {
	RecordRecalculation(updated, skipped, err)
}

func (Recorder) RecordJobRun(job string, err error) { RecordJobRun(job, err) }
