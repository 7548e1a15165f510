package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/tcm-knowledge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/tcm-knowledge-backend/internal/http/middleware"
	"github.com/yungbote/tcm-knowledge-backend/internal/observability"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler       *httpH.HealthHandler
	StorageAuditHandler *httpH.StorageAuditHandler
	QueryLogHandler     *httpH.QueryLogHandler
	SearchHandler       *httpH.SearchHandler
	JobHandler          *httpH.JobHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware == nil {
		return r
	}

	authed := api.Group("/")
	authed.Use(cfg.AuthMiddleware.RequireAuth())
	{
		if cfg.QueryLogHandler != nil {
			authed.POST("/knowledge/query-logs", cfg.QueryLogHandler.Record)
		}
		if cfg.SearchHandler != nil {
			authed.POST("/knowledge/search", cfg.SearchHandler.Search)
		}
	}

	admin := authed.Group("/")
	admin.Use(cfg.AuthMiddleware.RequireAdmin())
	{
		if cfg.QueryLogHandler != nil {
			admin.GET("/admin/knowledge/query-logs", cfg.QueryLogHandler.List)
			admin.GET("/admin/knowledge/audit-report", cfg.QueryLogHandler.Report)
		}
		if cfg.JobHandler != nil {
			admin.GET("/jobs/:id", cfg.JobHandler.GetJob)
			admin.POST("/jobs/:id/cancel", cfg.JobHandler.CancelJob)
			admin.POST("/jobs/:id/restart", cfg.JobHandler.RestartJob)
		}
	}

	// auth and role errors on this route are flat too, so FlatErrors runs first
	if cfg.StorageAuditHandler != nil {
		api.POST("/admin/knowledge/storage-audit",
			httpMW.FlatErrors(),
			cfg.AuthMiddleware.RequireAuth(),
			cfg.AuthMiddleware.RequireAdmin(),
			cfg.StorageAuditHandler.StorageAudit,
		)
	}
	return r
}
