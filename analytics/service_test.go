package analytics_test

import (
	"testing"
	"time"

	"github.com/habiliai/agentmarket/agent"
	"github.com/habiliai/agentmarket/analytics"
	"github.com/habiliai/agentmarket/entity"
	"github.com/habiliai/agentmarket/errors"
	"github.com/habiliai/agentmarket/internal/mytesting"
	"github.com/habiliai/agentmarket/jobs"
	"github.com/habiliai/agentmarket/ledger"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type AnalyticsTestSuite struct {
	mytesting.Suite

	agents    agent.Manager
	ledger    ledger.Service
	analytics analytics.Service
}

func (s *AnalyticsTestSuite) SetupTest() {
	s.Suite.SetupTest()

	s.agents = agent.NewManager(s.DB, s.Logger, s.Clock)
	s.ledger = ledger.NewService(s.DB, s.Logger, s.Clock, jobs.NewQueue(s.DB, s.Logger, s.Clock, 10), ledger.DefaultConfirmDelay)
	s.analytics = analytics.NewService(s.DB, s.Logger, s.Clock)
}

func (s *AnalyticsTestSuite) createAgent(owner, name string) *entity.Agent {
	a, err := s.agents.CreateAgent(s, owner, agent.CreateAgentRequest{Name: name, Category: "data", PricePerHour: 10})
	s.Require().NoError(err)
	return a
}

func (s *AnalyticsTestSuite) transfer(at time.Time, from, to *entity.Agent, amount int64, confirm bool) {
	s.Clock.Set(at)

	t, err := s.ledger.CreateTransaction(s, from.OwnerUserID, ledger.CreateTransactionRequest{
		FromAgentID: from.ID,
		ToAgentID:   to.ID,
		Amount:      decimal.NewFromInt(amount),
		Token:       entity.TokenUSDC,
	})
	s.Require().NoError(err)

	if confirm {
		s.Require().NoError(s.ledger.ConfirmTransaction(s, t.ID, ledger.NewSettlementHash()))
	}
}

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2026, month, day, hour, 0, 0, 0, time.UTC)
}

func str(d decimal.Decimal) string {
	return d.String()
}

// seed builds a small market as of mytesting.Epoch (2026-03-18 10:30 UTC):
// u1 owns A, u2 owns B and C, all listed 60 days earlier.
func (s *AnalyticsTestSuite) seed() (a, b, c *entity.Agent) {
	s.Clock.Set(mytesting.Epoch.AddDate(0, 0, -60))
	a = s.createAgent("u1", "A")
	b = s.createAgent("u2", "B")
	c = s.createAgent("u2", "C")

	s.transfer(at(time.February, 10, 9), a, b, 30, true)
	s.transfer(at(time.March, 2, 9), a, c, 10, true)
	s.transfer(at(time.March, 17, 12), a, b, 20, true)
	s.transfer(at(time.March, 18, 8), c, a, 7, true)
	s.transfer(at(time.March, 18, 9), a, b, 5, false)

	s.Clock.Set(mytesting.Epoch)
	return a, b, c
}

func (s *AnalyticsTestSuite) TestGetMyEarnings() {
	s.seed()

	earnings, err := s.analytics.GetMyEarnings(s, "u2")
	s.Require().NoError(err)

	s.Equal("60", str(earnings.TotalEarnings))
	s.Equal("20", str(earnings.Earnings24h))
	s.Equal("30", str(earnings.EarningsThisMonth))
	s.Equal("5", str(earnings.PendingEarnings))

	s.Equal([]string{
		"2026-03-12", "2026-03-13", "2026-03-14", "2026-03-15",
		"2026-03-16", "2026-03-17", "2026-03-18",
	}, lo.Map(earnings.EarningsHistory, func(d analytics.DailyEarnings, _ int) string { return d.Date }))
	s.Equal([]string{"0", "0", "0", "0", "0", "20", "0"},
		lo.Map(earnings.EarningsHistory, func(d analytics.DailyEarnings, _ int) string { return str(d.Earnings) }))

	again, err := s.analytics.GetMyEarnings(s, "u2")
	s.Require().NoError(err)
	s.Equal(earnings, again)
}

func (s *AnalyticsTestSuite) TestGetAgentEarnings() {
	_, b, _ := s.seed()

	earnings, err := s.analytics.GetAgentEarnings(s, "u2", b.ID)
	s.Require().NoError(err)
	s.Equal(b.ID, earnings.AgentID)
	s.Equal("50", str(earnings.TotalEarnings))
	s.Equal(2, earnings.TransactionCount)
	s.Equal("25", str(earnings.AverageTransactionValue))

	_, err = s.analytics.GetAgentEarnings(s, "", b.ID)
	s.ErrorIs(err, errors.ErrNotAuthenticated)

	_, err = s.analytics.GetAgentEarnings(s, "u1", b.ID)
	s.ErrorIs(err, errors.ErrNotFound)

	_, err = s.analytics.GetAgentEarnings(s, "u2", "missing")
	s.ErrorIs(err, errors.ErrNotFound)
}

func (s *AnalyticsTestSuite) TestGetAnalytics() {
	_, b, c := s.seed()

	report, err := s.analytics.GetAnalytics(s, "u2")
	s.Require().NoError(err)

	s.Equal("60", str(report.TotalEarnings))
	s.Equal("20", str(report.AverageTransactionValue))
	s.Equal(3, report.TotalTransactions)

	s.Require().Len(report.AgentPerformance, 2)
	s.Equal(b.ID, report.AgentPerformance[0].AgentID)
	s.Equal("50", str(report.AgentPerformance[0].Earnings))
	s.Equal(2, report.AgentPerformance[0].TransactionCount)
	s.InDelta(2.0/60, report.AgentPerformance[0].UtilizationRate, 1e-9)
	s.Equal(c.ID, report.AgentPerformance[1].AgentID)
	s.Equal(entity.DefaultUptime, report.AgentPerformance[1].Uptime)
	s.Equal(entity.DefaultReputation, report.AgentPerformance[1].Reputation)

	s.Equal([]string{"2025-10", "2025-11", "2025-12", "2026-01", "2026-02", "2026-03"},
		lo.Map(report.MonthlyEarnings, func(m analytics.MonthlyEarnings, _ int) string { return m.Month }))
	s.Equal([]string{"0", "0", "0", "0", "30", "30"},
		lo.Map(report.MonthlyEarnings, func(m analytics.MonthlyEarnings, _ int) string { return str(m.Earnings) }))

	s.Require().NotNil(report.TopPerformingAgent)
	s.Equal(b.ID, report.TopPerformingAgent.AgentID)

	anonymous, err := s.analytics.GetAnalytics(s, "")
	s.Require().NoError(err)
	s.Nil(anonymous)
}

// With equal earnings any tied agent may be reported as the top performer;
// the current pick is the earliest listed one.
func (s *AnalyticsTestSuite) TestGetAnalytics_TopPerformerTie() {
	s.createAgent("u3", "first")
	s.Clock.Advance(time.Minute)
	s.createAgent("u3", "second")

	report, err := s.analytics.GetAnalytics(s, "u3")
	s.Require().NoError(err)
	s.Require().NotNil(report.TopPerformingAgent)
	s.True(report.TopPerformingAgent.Earnings.IsZero())
	s.Equal([]string{"first", "second"}, lo.Map(report.AgentPerformance, func(p analytics.AgentPerformance, _ int) string { return p.Name }))
}

func (s *AnalyticsTestSuite) TestReadsAreIdempotent() {
	s.seed()

	read := func() []any {
		myEarnings, err := s.analytics.GetMyEarnings(s, "u2")
		s.Require().NoError(err)
		report, err := s.analytics.GetAnalytics(s, "u2")
		s.Require().NoError(err)
		stats, err := s.analytics.GetNetworkStats(s)
		s.Require().NoError(err)
		market, err := s.agents.GetMarketplaceAgents(s, agent.MarketplaceQuery{SortBy: agent.SortByEarnings})
		s.Require().NoError(err)
		transactions, err := s.ledger.GetMyTransactions(s, "u1")
		s.Require().NoError(err)
		return []any{myEarnings, report, stats, market, transactions}
	}

	s.Equal(read(), read())
}

func (s *AnalyticsTestSuite) TestGetNetworkStats() {
	s.seed()

	stats, err := s.analytics.GetNetworkStats(s)
	s.Require().NoError(err)

	s.Equal(3, stats.TotalAgents)
	s.Equal(3, stats.ActiveAgents)
	s.Equal("67", str(stats.TotalVolume))
	s.Equal("27", str(stats.Volume24h))
	s.Equal(5, stats.TotalTransactions)
	s.Equal(3, stats.Transactions24h)
	s.InDelta(entity.DefaultUptime, stats.AverageUptime, 1e-9)
	s.Equal(analytics.NetworkHealthExcellent, stats.NetworkHealth)
}

func (s *AnalyticsTestSuite) TestEmptyMarket() {
	stats, err := s.analytics.GetNetworkStats(s)
	s.Require().NoError(err)
	s.Zero(stats.TotalAgents)
	s.Zero(stats.AverageUptime)
	s.True(stats.TotalVolume.IsZero())
	s.Equal(analytics.NetworkHealthFair, stats.NetworkHealth)

	earnings, err := s.analytics.GetMyEarnings(s, "u1")
	s.Require().NoError(err)
	s.True(earnings.TotalEarnings.IsZero())
	s.Len(earnings.EarningsHistory, 7)

	anonymous, err := s.analytics.GetMyEarnings(s, "")
	s.Require().NoError(err)
	s.Empty(anonymous.EarningsHistory)

	report, err := s.analytics.GetAnalytics(s, "u1")
	s.Require().NoError(err)
	s.Empty(report.AgentPerformance)
	s.Nil(report.TopPerformingAgent)
	s.True(report.AverageTransactionValue.IsZero())
}

func TestAnalytics(t *testing.T) {
	suite.Run(t, new(AnalyticsTestSuite))
}

func TestHealthOf(t *testing.T) {
	assert.Equal(t, analytics.NetworkHealthExcellent, analytics.HealthOf(95.1))
	assert.Equal(t, analytics.NetworkHealthGood, analytics.HealthOf(95))
	assert.Equal(t, analytics.NetworkHealthGood, analytics.HealthOf(85.1))
	assert.Equal(t, analytics.NetworkHealthFair, analytics.HealthOf(85))
}
