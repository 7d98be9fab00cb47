package db

import (
	"context"

	"gorm.io/gorm"
)

type sessionCtxKey struct{}

// OpenSession returns the session bound to ctx, or binds a new one. Work
// running inside WithSession/Transaction reuses the caller's transaction.
func OpenSession(ctx context.Context, db *gorm.DB) (context.Context, *gorm.DB) {
	tx, ok := ctx.Value(sessionCtxKey{}).(*gorm.DB)
	if ok {
		return ctx, tx
	}

	return WithSession(ctx, db)
}

func WithSession(ctx context.Context, db *gorm.DB) (context.Context, *gorm.DB) {
	tx := db.WithContext(ctx)
	return context.WithValue(ctx, sessionCtxKey{}, tx), tx
}

// Transaction runs fn in a database transaction. The transaction is bound
// to the context handed to fn so nested OpenSession calls join it.
func Transaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context, tx *gorm.DB) error) error {
	_, session := OpenSession(ctx, db)
	return session.Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, sessionCtxKey{}, tx), tx)
	})
}

func IsPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}
