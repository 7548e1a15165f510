package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/tcm-knowledge-backend/internal/app"
	"github.com/yungbote/tcm-knowledge-backend/internal/domain/jobs"
	"github.com/yungbote/tcm-knowledge-backend/internal/modules/knowledge/provenance"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/authz"
	"github.com/yungbote/tcm-knowledge-backend/internal/services"
)

var errNoJobBus = errors.New("REDIS_ADDR is not set; job events are unavailable")

// backend is what the commands need from the wired application.
type backend interface {
	DefaultBucket() string
	Scan(ctx context.Context, req services.ScanRequest) (*services.ScanResult, error)
	Resync(ctx context.Context, req services.ResyncRequest) (*services.ResyncOutcome, error)
	Report(ctx context.Context, limit int) (provenance.Report, error)
	GrantAdmin(userID uuid.UUID) (bool, error)
	WatchJobs(ctx context.Context, onEvent func(jobs.Event)) error
	Close()
}

type opener func(ctx context.Context) (backend, error)

func openApp(ctx context.Context) (backend, error) {
	a, err := app.NewOperator(ctx)
	if err != nil {
		return nil, err
	}
	return &appBackend{a: a}, nil
}

type appBackend struct {
	a *app.App
}

func (b *appBackend) DefaultBucket() string { return b.a.Cfg.DefaultBucket }

func (b *appBackend) Scan(ctx context.Context, req services.ScanRequest) (*services.ScanResult, error) {
	return b.a.Services.Scanner.Scan(ctx, req)
}

func (b *appBackend) Resync(ctx context.Context, req services.ResyncRequest) (*services.ResyncOutcome, error) {
	return b.a.Services.Importer.Resync(ctx, req)
}

func (b *appBackend) Report(ctx context.Context, limit int) (provenance.Report, error) {
	return b.a.Services.QueryLogs.Report(ctx, limit)
}

func (b *appBackend) GrantAdmin(userID uuid.UUID) (bool, error) {
	if b.a.Clients.Authz == nil {
		return false, fmt.Errorf("authz not wired")
	}
	return b.a.Clients.Authz.Grant(userID, authz.RoleAdmin)
}

func (b *appBackend) WatchJobs(ctx context.Context, onEvent func(jobs.Event)) error {
	if b.a.Clients.JobBus == nil {
		return errNoJobBus
	}
	return b.a.Clients.JobBus.Subscribe(ctx, onEvent)
}

func (b *appBackend) Close() { b.a.Close() }
