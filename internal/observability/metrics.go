package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/yungbote/tcm-knowledge-backend/internal/platform/envutil"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

// Metrics owns a private registry so tests and multiple binaries never
// collide on the global default registerer.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	scanRuns     *prometheus.CounterVec
	scanDuration prometheus.Histogram
	scanFiles    prometheus.Histogram

	importOutcomes *prometheus.CounterVec
	chunksInserted prometheus.Counter

	embedRequests *prometheus.CounterVec
	embedLatency  *prometheus.HistogramVec
	embedInputs   prometheus.Counter

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	queueDepth  *prometheus.GaugeVec

	queryLogs *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process-wide metrics, or nil when Init was skipped.
// Every method is nil-safe.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcm_http_requests_total",
			Help: "API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tcm_http_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "tcm_http_inflight_requests",
			Help: "In-flight API requests.",
		}),
		scanRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcm_knowledge_scan_total",
			Help: "Storage reconciliation scans by status.",
		}, []string{"status"}),
		scanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tcm_knowledge_scan_duration_seconds",
			Help:    "Storage reconciliation scan latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		scanFiles: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tcm_knowledge_scan_objects",
			Help:    "Files visited per scan.",
			Buckets: prometheus.ExponentialBuckets(10, 4, 6),
		}),
		importOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcm_knowledge_resync_results_total",
			Help: "Resync outcomes per file.",
		}, []string{"outcome"}),
		chunksInserted: f.NewCounter(prometheus.CounterOpts{
			Name: "tcm_knowledge_chunks_inserted_total",
			Help: "Knowledge chunks written by imports.",
		}),
		embedRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcm_embedding_requests_total",
			Help: "Embedding requests by model and status.",
		}, []string{"model", "status"}),
		embedLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tcm_embedding_request_duration_seconds",
			Help:    "Embedding request latency including retries.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"model"}),
		embedInputs: f.NewCounter(prometheus.CounterOpts{
			Name: "tcm_embedding_inputs_total",
			Help: "Texts sent for embedding.",
		}),
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcm_jobs_total",
			Help: "Job executions by type and final status.",
		}, []string{"job_type", "status"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tcm_job_duration_seconds",
			Help:    "Job execution time.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"job_type"}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tcm_job_queue_depth",
			Help: "Job runs by status.",
		}, []string{"status"}),
		queryLogs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tcm_query_logs_total",
			Help: "Recorded consultation queries by provenance class.",
		}, []string{"class"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// StartServer exposes /metrics on a dedicated listener until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil || addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && log != nil {
			log.Error("metrics server failed", "error", err, "addr", addr)
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

func (m *Metrics) ObserveScan(status string, files int, dur time.Duration) {
	if m == nil {
		return
	}
	m.scanRuns.WithLabelValues(status).Inc()
	m.scanDuration.Observe(dur.Seconds())
	m.scanFiles.Observe(float64(files))
}

func (m *Metrics) IncImportOutcome(outcome string) {
	if m != nil {
		m.importOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) AddChunksInserted(n int) {
	if m != nil && n > 0 {
		m.chunksInserted.Add(float64(n))
	}
}

func (m *Metrics) ObserveEmbedding(model, status string, inputs int, dur time.Duration) {
	if m == nil {
		return
	}
	m.embedRequests.WithLabelValues(model, status).Inc()
	m.embedLatency.WithLabelValues(model).Observe(dur.Seconds())
	if inputs > 0 {
		m.embedInputs.Add(float64(inputs))
	}
}

func (m *Metrics) ObserveJob(jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(jobType, status).Inc()
	m.jobDuration.WithLabelValues(jobType).Observe(dur.Seconds())
}

func (m *Metrics) IncQueryLog(class string) {
	if m != nil {
		m.queryLogs.WithLabelValues(class).Inc()
	}
}

// StartJobQueueCollector samples job_run counts by status on an interval.
func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := envutil.Duration("METRICS_SCRAPE_INTERVAL", 15*time.Second)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			m.sampleQueue(ctx, log, db)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (m *Metrics) sampleQueue(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := db.WithContext(ctx).
		Table("job_run").
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		if log != nil && ctx.Err() == nil {
			log.Debug("job queue sample failed", "error", err)
		}
		return
	}
	m.queueDepth.Reset()
	for _, r := range rows {
		m.queueDepth.WithLabelValues(r.Status).Set(float64(r.Count))
	}
}
