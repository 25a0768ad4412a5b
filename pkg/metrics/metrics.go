package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 变更流收到的事件数
	ChangeEventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "changefeed_events_received_total",
			Help: "Change feed events delivered to subscribers",
		},
		[]string{"table"},
	)

	// 变更流监听连接重连次数
	ChangeFeedReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "changefeed_reconnects_total",
			Help: "Number of times the LISTEN connection was re-established",
		},
	)

	// 分类结果：notify / drop / lookup_failed / malformed
	ClassificationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_results_total",
			Help: "Change event classification outcomes",
		},
		[]string{"table", "result"},
	)

	// 应用内 toast 数
	ToastsPresented = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presenter_toasts_total",
			Help: "In-app toasts rendered",
		},
		[]string{"tag"},
	)

	// OS 推送结果：sent / skipped / failed / expired
	PushResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_notifications_total",
			Help: "OS-level push notification attempts by result",
		},
		[]string{"result"},
	)

	// 当前在线的会话数
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_sessions",
			Help: "Sessions with open change feed subscriptions",
		},
	)

	// AI 网关调用延迟（毫秒）
	AIGatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_gateway_call_latency_ms",
			Help:    "AI completion gateway call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"function", "status"},
	)

	// AI 响应解析走 fallback 的次数
	AIParseFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_parse_fallback_total",
			Help: "AI responses that could not be parsed and used a default structure",
		},
		[]string{"function"},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Queries slower than the configured threshold",
		},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

func IncChangeEvent(table string) {
	ChangeEventsReceived.WithLabelValues(table).Inc()
}

func IncClassification(table, result string) {
	ClassificationCount.WithLabelValues(table, result).Inc()
}

func IncToast(tag string) {
	ToastsPresented.WithLabelValues(tag).Inc()
}

func IncPush(result string) {
	PushResults.WithLabelValues(result).Inc()
}

// RecordAIGatewayLatency 记录 AI 网关调用延迟
func RecordAIGatewayLatency(function, status string, duration time.Duration) {
	AIGatewayLatency.WithLabelValues(function, status).Observe(float64(duration.Milliseconds()))
}

func IncAIParseFallback(function string) {
	AIParseFallbacks.WithLabelValues(function).Inc()
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}
