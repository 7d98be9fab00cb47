package ledger

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/habiliai/agentmarket/entity"
	"github.com/habiliai/agentmarket/errors"
	"github.com/habiliai/agentmarket/internal/clock"
	"github.com/habiliai/agentmarket/internal/db"
	"github.com/habiliai/agentmarket/internal/metrics"
	"github.com/habiliai/agentmarket/jobs"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	JobKindConfirm = "transaction.confirm"

	DefaultConfirmDelay = 3 * time.Second

	myTransactionsPerSide = 10
	myTransactionsLimit   = 15

	originUser      = "user"
	originSynthetic = "synthetic"
)

type (
	CreateTransactionRequest struct {
		FromAgentID        string          `json:"fromAgentId" jsonschema:"required"`
		ToAgentID          string          `json:"toAgentId" jsonschema:"required"`
		Amount             decimal.Decimal `json:"amount" jsonschema:"required,type=number"`
		Token              entity.Token    `json:"token" jsonschema:"required,enum=USDC,enum=DAI"`
		ServiceDescription string          `json:"serviceDescription"`
		Duration           *float64        `json:"duration,omitempty"`
	}

	ConfirmPayload struct {
		TransactionID string `json:"transactionId"`
		TxHash        string `json:"txHash"`
	}

	Service interface {
		// CreateTransaction records a pending payment from an agent the
		// caller owns and schedules its confirmation.
		CreateTransaction(ctx context.Context, caller string, req CreateTransactionRequest) (*entity.Transaction, error)
		// CreateSystemTransaction is CreateTransaction without the ownership
		// check. It backs generated marketplace traffic.
		CreateSystemTransaction(ctx context.Context, req CreateTransactionRequest) (*entity.Transaction, error)
		// ConfirmTransaction settles a pending transaction and credits the
		// receiving agent. Confirming a settled transaction is a no-op.
		ConfirmTransaction(ctx context.Context, transactionID string, txHash string) error
		GetTransaction(ctx context.Context, transactionID string) (*entity.Transaction, error)
		GetMyTransactions(ctx context.Context, caller string) ([]entity.Transaction, error)
		RegisterJobs(queue jobs.Queue)
	}

	service struct {
		logger       *slog.Logger
		db           *gorm.DB
		clock        clock.Clock
		queue        jobs.Queue
		confirmDelay time.Duration
	}
)

var (
	_ Service = (*service)(nil)
)

func NewService(gormDB *gorm.DB, logger *slog.Logger, clk clock.Clock, queue jobs.Queue, confirmDelay time.Duration) Service {
	if confirmDelay < 0 {
		confirmDelay = DefaultConfirmDelay
	}
	return &service{
		logger:       logger,
		db:           gormDB,
		clock:        clk,
		queue:        queue,
		confirmDelay: confirmDelay,
	}
}

func (s *service) RegisterJobs(queue jobs.Queue) {
	queue.Register(JobKindConfirm, jobs.HandlerFor(func(ctx context.Context, p ConfirmPayload) error {
		return s.ConfirmTransaction(ctx, p.TransactionID, p.TxHash)
	}))
}

func (s *service) CreateTransaction(ctx context.Context, caller string, req CreateTransactionRequest) (*entity.Transaction, error) {
	if caller == "" {
		return nil, errors.Wrapf(errors.ErrNotAuthenticated, "failed to create transaction")
	}
	return s.create(ctx, req, originUser, func(from *entity.Agent) error {
		if from.OwnerUserID != caller {
			return errors.Wrapf(errors.ErrNotAuthorized, "agent %s is not owned by caller", from.ID)
		}
		return nil
	})
}

func (s *service) CreateSystemTransaction(ctx context.Context, req CreateTransactionRequest) (*entity.Transaction, error) {
	return s.create(ctx, req, originSynthetic, func(*entity.Agent) error { return nil })
}

func (s *service) create(
	ctx context.Context,
	req CreateTransactionRequest,
	origin string,
	authorize func(from *entity.Agent) error,
) (*entity.Transaction, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	var transaction entity.Transaction
	if err := db.Transaction(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		from, err := findAgent(tx, req.FromAgentID)
		if err != nil {
			return err
		}
		to, err := findAgent(tx, req.ToAgentID)
		if err != nil {
			return err
		}
		if err := authorize(from); err != nil {
			return err
		}

		transaction = entity.Transaction{
			FromAgentID:        from.ID,
			ToAgentID:          to.ID,
			Amount:             entity.NewAmount(req.Amount),
			Token:              req.Token,
			Status:             entity.TransactionStatusPending,
			ServiceDescription: req.ServiceDescription,
			Duration:           req.Duration,
			FromUserID:         from.OwnerUserID,
			ToUserID:           to.OwnerUserID,
		}
		if err := tx.Create(&transaction).Error; err != nil {
			return errors.Wrapf(err, "failed to create transaction")
		}

		if _, err := s.queue.Enqueue(ctx, JobKindConfirm, ConfirmPayload{
			TransactionID: transaction.ID,
			TxHash:        NewSettlementHash(),
		}, s.clock.Now().Add(s.confirmDelay)); err != nil {
			return err
		}

		return nil
	}); err != nil {
		return nil, err
	}

	metrics.TransactionsCreated.WithLabelValues(string(transaction.Token), origin).Inc()
	s.logger.Info("transaction created",
		"transaction_id", transaction.ID,
		"from_agent_id", transaction.FromAgentID,
		"to_agent_id", transaction.ToAgentID,
		"amount", transaction.Amount.String(),
		"token", transaction.Token,
		"origin", origin,
	)

	return &transaction, nil
}

func validate(req CreateTransactionRequest) error {
	if !req.Amount.IsPositive() {
		return errors.Wrapf(errors.ErrInvalidParams, "amount must be positive, got %s", req.Amount)
	}
	if !entity.FitsAmount(req.Amount) {
		return errors.Wrapf(errors.ErrInvalidParams, "amount %s exceeds %d digits with %d decimals", req.Amount, entity.AmountPrecision, entity.AmountScale)
	}
	if !req.Token.Valid() {
		return errors.Wrapf(errors.ErrInvalidParams, "unknown token %q", req.Token)
	}
	if req.FromAgentID == req.ToAgentID {
		return errors.Wrapf(errors.ErrInvalidParams, "source and destination agent must differ")
	}
	if req.Duration != nil && *req.Duration < 0 {
		return errors.Wrapf(errors.ErrInvalidParams, "duration must not be negative")
	}
	return nil
}

func findAgent(tx *gorm.DB, agentID string) (*entity.Agent, error) {
	var agent entity.Agent
	if r := tx.Find(&agent, "id = ?", agentID); r.Error != nil {
		return nil, errors.Wrapf(r.Error, "failed to find agent")
	} else if r.RowsAffected == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "agent %s not found", agentID)
	}
	return &agent, nil
}

func (s *service) ConfirmTransaction(ctx context.Context, transactionID string, txHash string) error {
	logger := s.logger.With("transaction_id", transactionID)

	return db.Transaction(ctx, s.db, func(ctx context.Context, tx *gorm.DB) error {
		var transaction entity.Transaction
		if r := tx.Find(&transaction, "id = ?", transactionID); r.Error != nil {
			return errors.Wrapf(r.Error, "failed to find transaction")
		} else if r.RowsAffected == 0 {
			return errors.Wrapf(errors.ErrNotFound, "transaction %s not found", transactionID)
		}

		switch {
		case transaction.Status == entity.TransactionStatusConfirmed:
			metrics.DuplicateConfirmations.Inc()
			logger.Warn("transaction already confirmed, skip confirmation")
			return nil
		case !transaction.Status.CanTransitionTo(entity.TransactionStatusConfirmed):
			return errors.Wrapf(errors.ErrInvalidTransition, "transaction %s is %s", transactionID, transaction.Status)
		}

		// The status guard keeps a concurrent confirmation of the same
		// transaction from crediting twice.
		now := s.clock.Now().UTC()
		r := tx.Model(&entity.Transaction{}).
			Where("id = ? AND status = ?", transactionID, entity.TransactionStatusPending).
			Updates(map[string]any{
				"status":       entity.TransactionStatusConfirmed,
				"tx_hash":      txHash,
				"confirmed_at": now,
			})
		if r.Error != nil {
			return errors.Wrapf(r.Error, "failed to confirm transaction")
		}
		if r.RowsAffected == 0 {
			metrics.DuplicateConfirmations.Inc()
			logger.Warn("transaction confirmed concurrently, skip confirmation")
			return nil
		}

		stmt := tx
		if db.IsPostgres(tx) {
			stmt = stmt.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var agent entity.Agent
		if r := stmt.Find(&agent, "id = ?", transaction.ToAgentID); r.Error != nil {
			return errors.Wrapf(r.Error, "failed to find receiving agent")
		} else if r.RowsAffected == 0 {
			logger.Warn("receiving agent is gone, skip earnings credit", "agent_id", transaction.ToAgentID)
			return nil
		}

		if err := tx.Model(&entity.Agent{}).
			Where("id = ?", agent.ID).
			Update("total_earnings", agent.TotalEarnings.Add(transaction.Amount.Decimal)).Error; err != nil {
			return errors.Wrapf(err, "failed to credit agent earnings")
		}

		metrics.TransactionsConfirmed.WithLabelValues(string(transaction.Token)).Inc()
		logger.Info("transaction confirmed", "agent_id", agent.ID, "amount", transaction.Amount.String())

		return nil
	})
}

func (s *service) GetTransaction(ctx context.Context, transactionID string) (*entity.Transaction, error) {
	_, tx := db.OpenSession(ctx, s.db)

	var transaction entity.Transaction
	if r := tx.Find(&transaction, "id = ?", transactionID); r.Error != nil {
		return nil, errors.Wrapf(r.Error, "failed to find transaction")
	} else if r.RowsAffected == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "transaction %s not found", transactionID)
	}

	return &transaction, nil
}

// GetMyTransactions returns the caller's most recent activity: the newest
// sent and newest received transactions merged newest first. A transfer
// between two of the caller's own agents is listed once.
func (s *service) GetMyTransactions(ctx context.Context, caller string) ([]entity.Transaction, error) {
	if caller == "" {
		return []entity.Transaction{}, nil
	}

	_, tx := db.OpenSession(ctx, s.db)

	var sent, received []entity.Transaction
	if err := tx.Where("from_user_id = ?", caller).
		Order("created_at DESC, id DESC").
		Limit(myTransactionsPerSide).
		Find(&sent).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find sent transactions")
	}
	if err := tx.Where("to_user_id = ?", caller).
		Order("created_at DESC, id DESC").
		Limit(myTransactionsPerSide).
		Find(&received).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find received transactions")
	}

	merged := lo.UniqBy(append(sent, received...), func(t entity.Transaction) string { return t.ID })
	slices.SortStableFunc(merged, func(a, b entity.Transaction) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if len(merged) > myTransactionsLimit {
		merged = merged[:myTransactionsLimit]
	}
	return merged, nil
}
