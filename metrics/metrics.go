package metrics

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "keeper"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "reconciliation_passes_total",
		Help:      "Count of completed reconciliation passes",
	}, []string{
		"run_id",
		"result",
	})

	passMatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "reconciliation_matched_total",
		Help:      "Count of report results merged into the ledger",
	}, []string{
		"run_id",
	})

	passMissedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "reconciliation_missed_total",
		Help:      "Count of report results with no ledger entry",
	}, []string{
		"run_id",
	})

	passDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "reconciliation_duration_seconds",
		Help:      "Duration of reconciliation passes",
	}, []string{
		"run_id",
	})

	correlationMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "correlation_misses_total",
		Help:      "Count of results or folders with no matching ledger entry",
	}, []string{
		"kind",
	})

	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "artifact_uploads_total",
		Help:      "Count of artifact folder uploads",
	}, []string{
		"result",
	})

	pushesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tracker_pushes_total",
		Help:      "Count of tracking-system pushes",
	}, []string{
		"result",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		slog.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

// RecordPass records the outcome counts of one reconciliation pass
func RecordPass(runID string, result string, matched int, missed int, duration time.Duration) {
	if Debug {
		slog.Debug("metric inc",
			"m", "reconciliation_passes_total",
			"run_id", runID,
			"result", result,
			"matched", matched,
			"missed", missed)
	}
	passesTotal.WithLabelValues(runID, result).Inc()
	passMatchedTotal.WithLabelValues(runID).Add(float64(matched))
	passMissedTotal.WithLabelValues(runID).Add(float64(missed))
	passDuration.WithLabelValues(runID).Set(duration.Seconds())
}

// RecordCorrelationMiss counts a result or folder that matched no ledger
// entry. kind is "result" or "folder".
func RecordCorrelationMiss(kind string) {
	correlationMissesTotal.WithLabelValues(kind).Inc()
}

// RecordUpload counts one artifact folder upload attempt
func RecordUpload(success bool) {
	uploadsTotal.WithLabelValues(resultLabel(success)).Inc()
}

// RecordPush counts one tracking-system push attempt
func RecordPush(success bool) {
	pushesTotal.WithLabelValues(resultLabel(success)).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
