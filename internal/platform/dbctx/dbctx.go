package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
// Repos use Tx when set and fall back to their own handle otherwise.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Background is a Context with no transaction, for jobs and CLI paths.
func Background() Context {
	return Context{Ctx: context.Background()}
}

// WithTx returns a copy of dbc bound to tx.
func (dbc Context) WithTx(tx *gorm.DB) Context {
	return Context{Ctx: dbc.Ctx, Tx: tx}
}

// DB picks dbc.Tx when present, otherwise fallback, and binds the context.
func (dbc Context) DB(fallback *gorm.DB) *gorm.DB {
	tx := dbc.Tx
	if tx == nil {
		tx = fallback
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return tx.WithContext(ctx)
}
