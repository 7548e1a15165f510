package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/tcm-knowledge-backend/internal/http"
	httpH "github.com/yungbote/tcm-knowledge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/tcm-knowledge-backend/internal/http/middleware"
	"github.com/yungbote/tcm-knowledge-backend/internal/observability"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health       *httpH.HealthHandler
	StorageAudit *httpH.StorageAuditHandler
	QueryLog     *httpH.QueryLogHandler
	Search       *httpH.SearchHandler
	Job          *httpH.JobHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:       httpH.NewHealthHandler(db),
		StorageAudit: httpH.NewStorageAuditHandler(log, services.Scanner, services.Importer),
		QueryLog:     httpH.NewQueryLogHandler(services.QueryLogs),
		Search:       httpH.NewSearchHandler(services.Search),
		Job:          httpH.NewJobHandler(services.Jobs),
	}
}

func wireMiddleware(log *logger.Logger, services Services, clients Clients) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Tokens, clients.Authz),
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *http.Server {
	log.Info("Wiring router...")
	return http.NewServer(http.RouterConfig{
		Log:                 log,
		Metrics:             metrics,
		ServiceName:         cfg.ServiceName,
		CORSOrigins:         cfg.CORSOrigins,
		AuthMiddleware:      middleware.Auth,
		HealthHandler:       handlers.Health,
		StorageAuditHandler: handlers.StorageAudit,
		QueryLogHandler:     handlers.QueryLog,
		SearchHandler:       handlers.Search,
		JobHandler:          handlers.Job,
	})
}
