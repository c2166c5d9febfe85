package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aliasrelay/backend/internal/relay"
)

// Metrics 监控指标
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 中继指标
	RelayMessagesTotal   *prometheus.CounterVec
	RelayDuration        *prometheus.HistogramVec
	NotificationsTotal   *prometheus.CounterVec
	SMTPSessionsRejected prometheus.Counter

	// 错误指标
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标，所有指标注册在独立的注册表中
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aliasrelay_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aliasrelay_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		RelayMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aliasrelay_relay_messages_total",
				Help: "Messages handled by the relay engine",
			},
			[]string{"direction", "outcome", "code"},
		),

		RelayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aliasrelay_relay_duration_seconds",
				Help:    "Time spent handling one message",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"direction"},
		),

		NotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aliasrelay_notifications_total",
				Help: "Notifications sent or failed, by kind",
			},
			[]string{"kind", "status"},
		),

		SMTPSessionsRejected: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aliasrelay_smtp_sessions_rejected_total",
				Help: "SMTP sessions refused by the connection limiter",
			},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "aliasrelay_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// RecordRelay 记录一次中继处理结果
func (m *Metrics) RecordRelay(direction string, outcome relay.Outcome, code int, elapsed time.Duration) {
	m.RelayMessagesTotal.WithLabelValues(direction, string(outcome), strconv.Itoa(code)).Inc()
	m.RelayDuration.WithLabelValues(direction).Observe(elapsed.Seconds())
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordNotification 记录通知发送结果
func (m *Metrics) RecordNotification(kind string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.NotificationsTotal.WithLabelValues(kind, status).Inc()
}

// RecordSessionRejected 记录被限流拒绝的 SMTP 会话
func (m *Metrics) RecordSessionRejected() {
	m.SMTPSessionsRejected.Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// TrackActiveSessions 以 GaugeFunc 导出当前 SMTP 会话数
func (m *Metrics) TrackActiveSessions(current func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "aliasrelay_smtp_sessions_active",
			Help: "Number of open SMTP sessions",
		},
		func() float64 { return float64(current()) },
	))
}

// Registry 返回底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
