package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Messaging metrics
	messagesSentTotal    *prometheus.CounterVec
	messagesReadTotal    prometheus.Counter
	legacyReadsTotal     prometheus.Counter
	indexUpdateFailures  prometheus.Counter
	websocketConnections prometheus.Gauge

	// Agent metrics
	agentRepliesTotal     *prometheus.CounterVec
	escalationsTotal      *prometheus.CounterVec
	providerFallbackTotal *prometheus.CounterVec

	// Push notification metrics
	pushNotificationsTotal  *prometheus.CounterVec
	pushNotificationsFailed *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),
		messagesSentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "chat_messages_sent_total",
				Help:        "Total number of messages appended to conversations",
				ConstLabels: labels,
			},
			[]string{"sender_kind"},
		),
		messagesReadTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "chat_messages_marked_read_total",
				Help:        "Total number of messages transitioned to read",
				ConstLabels: labels,
			},
		),
		legacyReadsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "chat_legacy_schema_reads_total",
				Help:        "Reads served by the legacy message layout",
				ConstLabels: labels,
			},
		),
		indexUpdateFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name:        "chat_index_update_failures_total",
				Help:        "Denormalized index batch writes that failed after a durable message append",
				ConstLabels: labels,
			},
		),
		websocketConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name:        "chat_websocket_connections",
				Help:        "Active WebSocket connections",
				ConstLabels: labels,
			},
		),
		agentRepliesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "agent_replies_total",
				Help:        "Replies produced by the AI agent relay",
				ConstLabels: labels,
			},
			[]string{"source"}, // provider, fallback, escalation
		),
		escalationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "support_escalations_total",
				Help:        "Escalation decisions taken on the chat path",
				ConstLabels: labels,
			},
			[]string{"outcome"}, // created, duplicate
		),
		providerFallbackTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "agent_provider_fallbacks_total",
				Help:        "Completion-provider calls degraded to canned responses",
				ConstLabels: labels,
			},
			[]string{"reason"}, // timeout, error
		),
		pushNotificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_total",
				Help:        "Push notifications sent",
				ConstLabels: labels,
			},
			[]string{"type"},
		),
		pushNotificationsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_failed_total",
				Help:        "Push notifications that failed to send",
				ConstLabels: labels,
			},
			[]string{"type", "reason"},
		),
	}
}

// HTTP metric helpers

func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// Messaging metric helpers

func (m *Metrics) RecordMessageSent(senderKind string) {
	m.messagesSentTotal.WithLabelValues(senderKind).Inc()
}

func (m *Metrics) RecordMessagesRead(count int) {
	m.messagesReadTotal.Add(float64(count))
}

func (m *Metrics) RecordLegacyRead() {
	m.legacyReadsTotal.Inc()
}

func (m *Metrics) RecordIndexUpdateFailure() {
	m.indexUpdateFailures.Inc()
}

func (m *Metrics) SetWebSocketConnections(count int) {
	m.websocketConnections.Set(float64(count))
}

// Agent metric helpers

func (m *Metrics) RecordAgentReply(source string) {
	m.agentRepliesTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordEscalation(outcome string) {
	m.escalationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordProviderFallback(reason string) {
	m.providerFallbackTotal.WithLabelValues(reason).Inc()
}

// Push notification metric helpers

func (m *Metrics) RecordPushNotification(notifType string) {
	m.pushNotificationsTotal.WithLabelValues(notifType).Inc()
}

func (m *Metrics) RecordPushNotificationFailure(notifType, reason string) {
	m.pushNotificationsFailed.WithLabelValues(notifType, reason).Inc()
}
