package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Capture session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "listenai_active_sessions",
		Help: "Number of active recording sessions",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listenai_sessions_total",
		Help: "Total number of recording sessions started",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listenai_session_duration_seconds",
		Help:    "Duration of recording sessions in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	recognitionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenai_recognition_events_total",
		Help: "Recognition results received from the speech engine",
	}, []string{"kind"}) // kind: "partial" or "final"

	// Publish metrics
	publishRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listenai_publish_requests_total",
		Help: "Publish calls received by the sync publisher, before debouncing",
	})

	publishWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenai_publish_writes_total",
		Help: "Remote store writes performed by the sync publisher",
	}, []string{"status"})

	publishLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listenai_publish_latency_seconds",
		Help:    "Remote store write latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	connectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "listenai_connection_status",
		Help: "Publisher connection status (0=idle, 1=sending, 2=sent, 3=network_error, 4=server_error)",
	})

	// Store metrics
	storeWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenai_store_writes_total",
		Help: "Writes received by the remote store",
	}, []string{"result"})

	storeReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenai_store_reads_total",
		Help: "Fetches served by the remote store",
	}, []string{"result"})

	// Viewer metrics
	viewerPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenai_viewer_polls_total",
		Help: "Viewer fetch-and-render cycles",
	}, []string{"result"})

	blockChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenai_viewer_block_changes_total",
		Help: "Block reconciliation outcomes",
	}, []string{"kind"}) // kind: "appended", "replaced", "pruned", "reset"

	displayClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "listenai_display_clients",
		Help: "Connected teleprompter display clients",
	})

	// Translation metrics
	translationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenai_translation_requests_total",
		Help: "Translation API requests",
	}, []string{"status"})

	translationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "listenai_translation_latency_seconds",
		Help:    "Translation API latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenai_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "listenai_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "listenai_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// SessionMetrics tracks metrics for a single recording session
type SessionMetrics struct {
	sessionID string
	startTime time.Time
	mu        sync.Mutex
	ended     bool
}

// NewSessionMetrics creates a new metrics tracker for a recording session
func NewSessionMetrics(sessionID string) *SessionMetrics {
	return &SessionMetrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a session
func (m *SessionMetrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a session. Only the first call counts.
func (m *SessionMetrics) RecordSessionEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return
	}
	m.ended = true
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordRecognitionEvent counts a partial or final recognition result
func (m *SessionMetrics) RecordRecognitionEvent(final bool) {
	kind := "partial"
	if final {
		kind = "final"
	}
	recognitionEvents.WithLabelValues(kind).Inc()
}

// RecordError records an error
func (m *SessionMetrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordError records an error outside a session
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPublishRequest counts a publish call before debouncing
func RecordPublishRequest() {
	publishRequests.Inc()
}

// RecordPublishWrite records the outcome and latency of one remote write
func RecordPublishWrite(status string, latency time.Duration) {
	publishWrites.WithLabelValues(status).Inc()
	publishLatency.Observe(latency.Seconds())
}

// SetConnectionStatus updates the publisher connection status gauge
func SetConnectionStatus(status int) {
	connectionStatus.Set(float64(status))
}

// RecordStoreWrite records a write received by the store
func RecordStoreWrite(result string) {
	storeWrites.WithLabelValues(result).Inc()
}

// RecordStoreRead records a fetch served by the store
func RecordStoreRead(result string) {
	storeReads.WithLabelValues(result).Inc()
}

// RecordPoll records a viewer fetch cycle
func RecordPoll(result string) {
	viewerPolls.WithLabelValues(result).Inc()
}

// RecordBlockChange records a block reconciliation outcome
func RecordBlockChange(kind string) {
	blockChanges.WithLabelValues(kind).Inc()
}

// SetDisplayClients updates the connected display clients gauge
func SetDisplayClients(n int) {
	displayClients.Set(float64(n))
}

// RecordTranslation records a translation request
func RecordTranslation(success bool, latency time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	translationRequests.WithLabelValues(status).Inc()
	translationLatency.Observe(latency.Seconds())
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
