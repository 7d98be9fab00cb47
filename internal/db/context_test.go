package db_test

import (
	"context"
	"testing"

	"github.com/habiliai/agentmarket/entity"
	"github.com/habiliai/agentmarket/errors"
	"github.com/habiliai/agentmarket/internal/db"
	"github.com/habiliai/agentmarket/internal/mytesting"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

type DBTestSuite struct {
	mytesting.Suite
}

func (s *DBTestSuite) TestTransaction_NestedSessionJoins() {
	err := db.Transaction(s, s.DB, func(ctx context.Context, tx *gorm.DB) error {
		_, session := db.OpenSession(ctx, s.DB)
		s.Require().NoError(session.Create(&entity.ChatMessage{UserID: "u1", Message: "inside"}).Error)
		return errors.New("rollback")
	})
	s.Require().Error(err)

	var count int64
	s.Require().NoError(s.DB.Model(&entity.ChatMessage{}).Count(&count).Error)
	s.Zero(count)
}

func (s *DBTestSuite) TestTransaction_Commits() {
	s.Require().NoError(db.Transaction(s, s.DB, func(ctx context.Context, tx *gorm.DB) error {
		return tx.Create(&entity.ChatMessage{UserID: "u1", Message: "kept"}).Error
	}))

	var count int64
	s.Require().NoError(s.DB.Model(&entity.ChatMessage{}).Count(&count).Error)
	s.EqualValues(1, count)
}

func (s *DBTestSuite) TestDialect() {
	s.False(db.IsPostgres(s.DB))
}

func TestDB(t *testing.T) {
	suite.Run(t, new(DBTestSuite))
}
