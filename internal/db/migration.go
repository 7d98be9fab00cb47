package db

import (
	"context"

	"github.com/habiliai/agentmarket/entity"
	"github.com/habiliai/agentmarket/errors"
	"gorm.io/gorm"
)

func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	_, tx := OpenSession(ctx, db)

	return errors.WithStack(tx.AutoMigrate(
		&entity.Agent{},
		&entity.Transaction{},
		&entity.ChatMessage{},
		&entity.Job{},
	))
}

func DropAll(ctx context.Context, db *gorm.DB) error {
	_, tx := OpenSession(ctx, db)
	return errors.WithStack(tx.Migrator().DropTable(
		&entity.Job{},
		&entity.ChatMessage{},
		&entity.Transaction{},
		&entity.Agent{},
	))
}
