package observability

import (
	"net/http"
	"time"

	"github.com/annel0/demoparse/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ParserMetrics Prometheus-метрики разбора.
// Один набор на процесс; несколько парсеров пишут в одни счетчики.
// Все методы допускают nil-получатель, чтобы парсер работал без метрик.
type ParserMetrics struct {
	frames      *prometheus.CounterVec
	packets     *prometheus.CounterVec
	entities    *prometheus.CounterVec
	recoverable *prometheus.CounterVec
	ticks       prometheus.Counter
	bytes       prometheus.Counter
	active      prometheus.Gauge
	duration    prometheus.Histogram
}

// NewParserMetrics создаёт метрики и регистрирует их в reg.
// nil означает глобальный регистр Prometheus.
func NewParserMetrics(reg prometheus.Registerer) *ParserMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &ParserMetrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "demoparse",
			Name:      "frames_total",
			Help:      "Прочитанные кадры по типу.",
		}, []string{"kind"}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "demoparse",
			Name:      "packets_dispatched_total",
			Help:      "Сообщения, переданные наблюдателю.",
		}, []string{"packet"}),
		entities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "demoparse",
			Name:      "entity_events_total",
			Help:      "Уведомления жизненного цикла сущностей.",
		}, []string{"event"}),
		recoverable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "demoparse",
			Name:      "recoverable_errors_total",
			Help:      "Восстановимые ошибки, пропущенные при разборе.",
		}, []string{"kind"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "demoparse",
			Name:      "ticks_total",
			Help:      "Завершённые тики.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "demoparse",
			Name:      "bytes_total",
			Help:      "Разобранные байты демо-файлов.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "demoparse",
			Name:      "parses_active",
			Help:      "Текущее количество выполняющихся разборов.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "demoparse",
			Name:      "parse_duration_seconds",
			Help:      "Длительность полного разбора файла.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
	}
	reg.MustRegister(m.frames, m.packets, m.entities, m.recoverable, m.ticks, m.bytes, m.active, m.duration)
	return m
}

// Frame учитывает прочитанный кадр
func (m *ParserMetrics) Frame(kind string) {
	if m != nil {
		m.frames.WithLabelValues(kind).Inc()
	}
}

// Packet учитывает сообщение, переданное наблюдателю
func (m *ParserMetrics) Packet(name string) {
	if m != nil {
		m.packets.WithLabelValues(name).Inc()
	}
}

// EntityEvent учитывает уведомление о сущности
func (m *ParserMetrics) EntityEvent(event string) {
	if m != nil {
		m.entities.WithLabelValues(event).Inc()
	}
}

// Recoverable учитывает пропущенную восстановимую ошибку
func (m *ParserMetrics) Recoverable(kind string) {
	m.RecoverableN(kind, 1)
}

// RecoverableN учитывает n пропущенных ошибок одного вида
func (m *ParserMetrics) RecoverableN(kind string, n int) {
	if m != nil && n > 0 {
		m.recoverable.WithLabelValues(kind).Add(float64(n))
	}
}

// Tick учитывает завершённый тик
func (m *ParserMetrics) Tick() {
	if m != nil {
		m.ticks.Inc()
	}
}

// Started отмечает начало разбора; возвращённую функцию нужно вызвать по окончании
func (m *ParserMetrics) Started() func(bytes int64) {
	if m == nil {
		return func(int64) {}
	}
	start := time.Now()
	m.active.Inc()
	return func(bytes int64) {
		m.active.Dec()
		m.bytes.Add(float64(bytes))
		m.duration.Observe(time.Since(start).Seconds())
	}
}

// StartHTTP запускает HTTP-эндпоинт Prometheus на указанном адресе (например, ":2112").
// Метод неблокирующий: HTTP-сервер стартует в отдельной горутине.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logging.Info("📈 Prometheus /metrics доступен по адресу %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()
	return srv
}
