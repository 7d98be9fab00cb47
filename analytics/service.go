package analytics

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/habiliai/agentmarket/entity"
	"github.com/habiliai/agentmarket/errors"
	"github.com/habiliai/agentmarket/internal/clock"
	"github.com/habiliai/agentmarket/internal/db"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
	"gorm.io/gorm"
)

const (
	day = 24 * time.Hour

	historyDays   = 7
	historyMonths = 6
)

// Service derives read-only views over agents and transactions. Every
// call recomputes from the store; only confirmed transactions count as
// earnings. Calendar buckets are computed in UTC.
type Service interface {
	GetMyEarnings(ctx context.Context, caller string) (*MyEarnings, error)
	GetAgentEarnings(ctx context.Context, caller string, agentID string) (*AgentEarnings, error)
	GetAnalytics(ctx context.Context, caller string) (*Analytics, error)
	GetNetworkStats(ctx context.Context) (*NetworkStats, error)
}

type service struct {
	logger *slog.Logger
	db     *gorm.DB
	clock  clock.Clock
}

var (
	_ Service = (*service)(nil)
)

func NewService(gormDB *gorm.DB, logger *slog.Logger, clk clock.Clock) Service {
	return &service{
		logger: logger,
		db:     gormDB,
		clock:  clk,
	}
}

func (s *service) GetMyEarnings(ctx context.Context, caller string) (*MyEarnings, error) {
	if caller == "" {
		return &MyEarnings{EarningsHistory: []DailyEarnings{}}, nil
	}

	_, tx := db.OpenSession(ctx, s.db)

	var received []entity.Transaction
	if err := tx.Where("to_user_id = ?", caller).Find(&received).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find received transactions")
	}

	confirmed := filterStatus(received, entity.TransactionStatusConfirmed)
	pending := filterStatus(received, entity.TransactionStatusPending)

	now := s.clock.Now().UTC()
	today := startOfDay(now)
	thisMonth := startOfMonth(now)

	history := make([]DailyEarnings, 0, historyDays)
	for i := historyDays - 1; i >= 0; i-- {
		from := today.AddDate(0, 0, -i)
		history = append(history, DailyEarnings{
			Date:     from.Format(time.DateOnly),
			Earnings: sum(createdIn(confirmed, from, from.AddDate(0, 0, 1))),
		})
	}

	return &MyEarnings{
		TotalEarnings:     sum(confirmed),
		Earnings24h:       sum(createdAfter(confirmed, now.Add(-day))),
		EarningsThisMonth: sum(createdAfter(confirmed, thisMonth)),
		PendingEarnings:   sum(pending),
		EarningsHistory:   history,
	}, nil
}

func (s *service) GetAgentEarnings(ctx context.Context, caller string, agentID string) (*AgentEarnings, error) {
	if caller == "" {
		return nil, errors.Wrapf(errors.ErrNotAuthenticated, "failed to get agent earnings")
	}

	_, tx := db.OpenSession(ctx, s.db)

	var agent entity.Agent
	if r := tx.Find(&agent, "id = ?", agentID); r.Error != nil {
		return nil, errors.Wrapf(r.Error, "failed to find agent")
	} else if r.RowsAffected == 0 || agent.OwnerUserID != caller {
		return nil, errors.Wrapf(errors.ErrNotFound, "agent %s not found or not owned by caller", agentID)
	}

	var confirmed []entity.Transaction
	if err := tx.Where("to_agent_id = ? AND status = ?", agentID, entity.TransactionStatusConfirmed).
		Find(&confirmed).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find agent transactions")
	}

	total := sum(confirmed)
	return &AgentEarnings{
		AgentID:                 agentID,
		TotalEarnings:           total,
		TransactionCount:        len(confirmed),
		AverageTransactionValue: average(total, len(confirmed)),
	}, nil
}

func (s *service) GetAnalytics(ctx context.Context, caller string) (*Analytics, error) {
	if caller == "" {
		return nil, nil
	}

	_, tx := db.OpenSession(ctx, s.db)

	var agents []entity.Agent
	if err := tx.Where("owner_user_id = ?", caller).Order("created_at ASC, id ASC").Find(&agents).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find agents")
	}

	var confirmed []entity.Transaction
	if err := tx.Where("to_user_id = ? AND status = ?", caller, entity.TransactionStatusConfirmed).
		Find(&confirmed).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find transactions")
	}

	now := s.clock.Now().UTC()
	byAgent := lo.GroupBy(confirmed, func(t entity.Transaction) string { return t.ToAgentID })

	performance := lo.Map(agents, func(a entity.Agent, _ int) AgentPerformance {
		received := byAgent[a.ID]
		return AgentPerformance{
			AgentID:          a.ID,
			Name:             a.Name,
			Earnings:         sum(received),
			TransactionCount: len(received),
			Uptime:           a.Uptime,
			Reputation:       a.Reputation,
			UtilizationRate:  utilization(len(received), now.Sub(a.CreatedAt)),
		}
	})

	thisMonth := startOfMonth(now)
	monthly := make([]MonthlyEarnings, 0, historyMonths)
	for i := historyMonths - 1; i >= 0; i-- {
		from := thisMonth.AddDate(0, -i, 0)
		monthly = append(monthly, MonthlyEarnings{
			Month:    from.Format("2006-01"),
			Earnings: sum(createdIn(confirmed, from, from.AddDate(0, 1, 0))),
		})
	}

	total := sum(confirmed)
	return &Analytics{
		TotalEarnings:           total,
		AverageTransactionValue: average(total, len(confirmed)),
		TotalTransactions:       len(confirmed),
		AgentPerformance:        performance,
		MonthlyEarnings:         monthly,
		TopPerformingAgent:      topPerformer(performance),
	}, nil
}

// topPerformer returns the agent with the highest earnings. Ties go to the
// agent listed first.
func topPerformer(performance []AgentPerformance) *AgentPerformance {
	if len(performance) == 0 {
		return nil
	}

	ranked := append([]AgentPerformance(nil), performance...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Earnings.GreaterThan(ranked[j].Earnings)
	})

	return &ranked[0]
}

func (s *service) GetNetworkStats(ctx context.Context) (*NetworkStats, error) {
	_, tx := db.OpenSession(ctx, s.db)

	var agents []entity.Agent
	if err := tx.Find(&agents).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find agents")
	}

	var transactions []entity.Transaction
	if err := tx.Find(&transactions).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find transactions")
	}

	var averageUptime float64
	if len(agents) > 0 {
		averageUptime = stat.Mean(lo.Map(agents, func(a entity.Agent, _ int) float64 { return a.Uptime }), nil)
	}

	recent := createdAfter(transactions, s.clock.Now().UTC().Add(-day))

	return &NetworkStats{
		TotalAgents: len(agents),
		ActiveAgents: lo.CountBy(agents, func(a entity.Agent) bool {
			return a.Status == entity.AgentStatusActive
		}),
		TotalVolume:       sum(filterStatus(transactions, entity.TransactionStatusConfirmed)),
		Volume24h:         sum(filterStatus(recent, entity.TransactionStatusConfirmed)),
		AverageUptime:     averageUptime,
		TotalTransactions: len(transactions),
		Transactions24h:   len(recent),
		NetworkHealth:     HealthOf(averageUptime),
	}, nil
}

func filterStatus(transactions []entity.Transaction, status entity.TransactionStatus) []entity.Transaction {
	return lo.Filter(transactions, func(t entity.Transaction, _ int) bool { return t.Status == status })
}

func createdAfter(transactions []entity.Transaction, after time.Time) []entity.Transaction {
	return lo.Filter(transactions, func(t entity.Transaction, _ int) bool { return t.CreatedAt.After(after) })
}

// createdIn keeps transactions created in [from, to).
func createdIn(transactions []entity.Transaction, from, to time.Time) []entity.Transaction {
	return lo.Filter(transactions, func(t entity.Transaction, _ int) bool {
		return !t.CreatedAt.Before(from) && t.CreatedAt.Before(to)
	})
}

func sum(transactions []entity.Transaction) decimal.Decimal {
	return lo.Reduce(transactions, func(acc decimal.Decimal, t entity.Transaction, _ int) decimal.Decimal {
		return acc.Add(t.Amount.Decimal)
	}, decimal.Zero)
}

func average(total decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(n)))
}

func utilization(count int, age time.Duration) float64 {
	if count == 0 || age <= 0 {
		return 0
	}
	return float64(count) / (float64(age) / float64(day))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
