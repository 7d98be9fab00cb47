package maintenance

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/habiliai/agentmarket/config"
	"github.com/habiliai/agentmarket/entity"
	"github.com/habiliai/agentmarket/errors"
	"github.com/habiliai/agentmarket/internal/clock"
	"github.com/habiliai/agentmarket/internal/db"
	"github.com/habiliai/agentmarket/internal/metrics"
	"github.com/habiliai/agentmarket/jobs"
	"github.com/habiliai/agentmarket/ledger"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	TaskAgentMetrics      = "update-agent-metrics"
	TaskMessageCleanup    = "cleanup-old-messages"
	TaskAgentTransactions = "agent-to-agent-transactions"

	SyntheticDescription = "Automated agent service"

	minSyntheticAmount = 10
	maxSyntheticAmount = 60 // exclusive
	minSyntheticHours  = 1
	maxSyntheticHours  = 4
)

type Service interface {
	// UpdateAgentMetrics nudges every agent's uptime by a uniform delta in
	// [-1, 1], clamped to the uptime bounds, and marks it active now. It
	// returns the number of agents touched.
	UpdateAgentMetrics(ctx context.Context) (int, error)
	// CleanupOldMessages deletes chat messages older than the retention
	// window and returns how many were removed.
	CleanupOldMessages(ctx context.Context) (int64, error)
	// CreateAgentTransactions generates one payment between two random
	// active agents. It returns nil when the draw is skipped.
	CreateAgentTransactions(ctx context.Context) (*entity.Transaction, error)
	Schedules() []jobs.Task
}

type service struct {
	logger *slog.Logger
	db     *gorm.DB
	clock  clock.Clock
	ledger ledger.Service
	config config.MaintenanceConfig

	mu  sync.Mutex
	rng *rand.Rand
}

var (
	_ Service = (*service)(nil)
)

func NewService(
	gormDB *gorm.DB,
	logger *slog.Logger,
	clk clock.Clock,
	ledgerService ledger.Service,
	rng *rand.Rand,
	conf config.MaintenanceConfig,
) Service {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &service{
		logger: logger,
		db:     gormDB,
		clock:  clk,
		ledger: ledgerService,
		config: conf,
		rng:    rng,
	}
}

func (s *service) Schedules() []jobs.Task {
	return []jobs.Task{
		{
			Name:     TaskAgentMetrics,
			Interval: s.config.AgentMetricsInterval,
			Run: func(ctx context.Context) error {
				_, err := s.UpdateAgentMetrics(ctx)
				return err
			},
		},
		{
			Name:     TaskMessageCleanup,
			Interval: s.config.MessageCleanupInterval,
			Run: func(ctx context.Context) error {
				_, err := s.CleanupOldMessages(ctx)
				return err
			},
		},
		{
			Name:     TaskAgentTransactions,
			Interval: s.config.AgentTransactionInterval,
			Run: func(ctx context.Context) error {
				_, err := s.CreateAgentTransactions(ctx)
				return err
			},
		},
	}
}

func (s *service) UpdateAgentMetrics(ctx context.Context) (int, error) {
	var touched int
	err := db.Transaction(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		var agents []entity.Agent
		if err := tx.Select("id", "uptime").Find(&agents).Error; err != nil {
			return errors.Wrapf(err, "failed to find agents")
		}

		now := s.clock.Now().UTC()
		for _, agent := range agents {
			uptime := entity.ClampUptime(agent.Uptime + s.uptimeDelta())
			if err := tx.Model(&entity.Agent{}).Where("id = ?", agent.ID).Updates(map[string]any{
				"uptime":         uptime,
				"last_active_at": now,
			}).Error; err != nil {
				return errors.Wrapf(err, "failed to update agent %s metrics", agent.ID)
			}
		}

		touched = len(agents)
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("agent metrics updated", "agents", touched)
	return touched, nil
}

func (s *service) uptimeDelta() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rng.Float64()*2 - 1
}

func (s *service) CleanupOldMessages(ctx context.Context) (int64, error) {
	_, tx := db.OpenSession(ctx, s.db)

	cutoff := s.clock.Now().Add(-s.config.MessageRetention).UnixMilli()
	r := tx.Where("timestamp < ?", cutoff).Delete(&entity.ChatMessage{})
	if r.Error != nil {
		return 0, errors.Wrapf(r.Error, "failed to delete old chat messages")
	}

	metrics.ChatMessagesEvicted.Add(float64(r.RowsAffected))
	s.logger.Info("old chat messages deleted", "count", r.RowsAffected)

	return r.RowsAffected, nil
}

type draw struct {
	from, to int
	amount   int64
	token    entity.Token
	duration float64
}

func (s *service) drawTransaction(n int) draw {
	s.mu.Lock()
	defer s.mu.Unlock()

	return draw{
		from:     s.rng.IntN(n),
		to:       s.rng.IntN(n),
		amount:   int64(minSyntheticAmount + s.rng.IntN(maxSyntheticAmount-minSyntheticAmount)),
		token:    lo.Ternary(s.rng.Float64() > 0.5, entity.TokenUSDC, entity.TokenDAI),
		duration: float64(minSyntheticHours + s.rng.IntN(maxSyntheticHours-minSyntheticHours+1)),
	}
}

func (s *service) CreateAgentTransactions(ctx context.Context) (*entity.Transaction, error) {
	_, tx := db.OpenSession(ctx, s.db)

	var active []entity.Agent
	if err := tx.Where("status = ?", entity.AgentStatusActive).Order("created_at ASC, id ASC").Find(&active).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find active agents")
	}
	if len(active) < 2 {
		s.logger.Debug("skip agent transaction, not enough active agents", "active", len(active))
		return nil, nil
	}

	d := s.drawTransaction(len(active))
	if d.from == d.to {
		s.logger.Debug("skip agent transaction, drew the same agent twice")
		return nil, nil
	}

	return s.ledger.CreateSystemTransaction(ctx, ledger.CreateTransactionRequest{
		FromAgentID:        active[d.from].ID,
		ToAgentID:          active[d.to].ID,
		Amount:             decimal.NewFromInt(d.amount),
		Token:              d.token,
		ServiceDescription: SyntheticDescription,
		Duration:           &d.duration,
	})
}
