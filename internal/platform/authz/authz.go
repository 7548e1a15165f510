// Package authz resolves staff roles through a casbin RBAC enforcer whose
// policies live in the application database (casbin_rule).
package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/casbin/casbin/v3"
	"github.com/casbin/casbin/v3/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
)

const (
	RoleAdmin = "admin"

	ResourceKnowledge = "knowledge"
	ActionManage      = "manage"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// RoleChecker answers whether a user may administer the knowledge base.
type RoleChecker interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

type Enforcer struct {
	log *logger.Logger
	e   *casbin.SyncedEnforcer
}

// NewEnforcer loads policies from db and seeds the admin permission.
// A positive reload interval keeps policies written by other processes
// (for example knowledgectl grant-admin) visible.
func NewEnforcer(db *gorm.DB, log *logger.Logger, reload time.Duration) (*Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("load rbac model: %w", err)
	}
	a, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create gorm adapter: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m, a)
	if err != nil {
		return nil, fmt.Errorf("failed to create enforcer: %w", err)
	}
	if err := e.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	if _, err := e.AddPolicy(RoleAdmin, ResourceKnowledge, ActionManage); err != nil {
		return nil, fmt.Errorf("seed admin policy: %w", err)
	}
	if reload > 0 {
		e.StartAutoLoadPolicy(reload)
	}
	return &Enforcer{log: log.With("service", "Authz"), e: e}, nil
}

func (a *Enforcer) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}
	ok, err := a.e.Enforce(userID.String(), ResourceKnowledge, ActionManage)
	if err != nil {
		return false, fmt.Errorf("enforce: %w", err)
	}
	return ok, nil
}

func (a *Enforcer) Grant(userID uuid.UUID, role string) (bool, error) {
	added, err := a.e.AddRoleForUser(userID.String(), role)
	if err == nil && added {
		a.log.Info("role granted", "user_id", userID.String(), "role", role)
	}
	return added, err
}

func (a *Enforcer) Revoke(userID uuid.UUID, role string) (bool, error) {
	removed, err := a.e.DeleteRoleForUser(userID.String(), role)
	if err == nil && removed {
		a.log.Info("role revoked", "user_id", userID.String(), "role", role)
	}
	return removed, err
}

func (a *Enforcer) Close() {
	if a != nil && a.e != nil && a.e.IsAutoLoadingRunning() {
		a.e.StopAutoLoadPolicy()
	}
}
