package ledger_test

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/habiliai/agentmarket/agent"
	"github.com/habiliai/agentmarket/entity"
	"github.com/habiliai/agentmarket/errors"
	"github.com/habiliai/agentmarket/internal/mytesting"
	"github.com/habiliai/agentmarket/jobs"
	"github.com/habiliai/agentmarket/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type LedgerTestSuite struct {
	mytesting.Suite

	agents agent.Manager
	queue  jobs.Queue
	ledger ledger.Service

	alice *entity.Agent
	bob   *entity.Agent
}

func (s *LedgerTestSuite) SetupTest() {
	s.Suite.SetupTest()

	s.agents = agent.NewManager(s.DB, s.Logger, s.Clock)
	s.queue = jobs.NewQueue(s.DB, s.Logger, s.Clock, 100)
	s.ledger = ledger.NewService(s.DB, s.Logger, s.Clock, s.queue, ledger.DefaultConfirmDelay)
	s.ledger.RegisterJobs(s.queue)

	var err error
	s.alice, err = s.agents.CreateAgent(s, "u1", agent.CreateAgentRequest{
		Name:         "alice",
		Category:     "data",
		PricePerHour: 10,
	})
	s.Require().NoError(err)
	s.bob, err = s.agents.CreateAgent(s, "u2", agent.CreateAgentRequest{
		Name:         "bob",
		Category:     "research",
		PricePerHour: 25,
	})
	s.Require().NoError(err)
}

func (s *LedgerTestSuite) send(from, to *entity.Agent, amount int64) *entity.Transaction {
	t, err := s.ledger.CreateTransaction(s, from.OwnerUserID, ledger.CreateTransactionRequest{
		FromAgentID:        from.ID,
		ToAgentID:          to.ID,
		Amount:             decimal.NewFromInt(amount),
		Token:              entity.TokenUSDC,
		ServiceDescription: "data job",
	})
	s.Require().NoError(err)
	return t
}

func (s *LedgerTestSuite) earnings(agentID string) decimal.Decimal {
	a, err := s.agents.GetAgent(s, agentID)
	s.Require().NoError(err)
	return a.TotalEarnings.Decimal
}

func (s *LedgerTestSuite) requireDecimal(expected int64, actual decimal.Decimal) {
	s.Require().Truef(decimal.NewFromInt(expected).Equal(actual), "expected %d, got %s", expected, actual)
}

func (s *LedgerTestSuite) requireEarningsInvariant() {
	var agents []entity.Agent
	s.Require().NoError(s.DB.Find(&agents).Error)

	for _, a := range agents {
		var confirmed []entity.Transaction
		s.Require().NoError(s.DB.
			Where("to_agent_id = ? AND status = ?", a.ID, entity.TransactionStatusConfirmed).
			Find(&confirmed).Error)

		sum := decimal.Zero
		for _, t := range confirmed {
			sum = sum.Add(t.Amount.Decimal)
		}
		s.Truef(sum.Equal(a.TotalEarnings.Decimal), "agent %s: earnings %s, confirmed sum %s", a.Name, a.TotalEarnings, sum)
	}
}

func (s *LedgerTestSuite) TestCreateAndConfirm() {
	t := s.send(s.alice, s.bob, 20)

	s.Equal(entity.TransactionStatusPending, t.Status)
	s.Equal("u1", t.FromUserID)
	s.Equal("u2", t.ToUserID)
	s.Nil(t.TxHash)
	s.requireDecimal(0, s.earnings(s.bob.ID))

	n, err := s.queue.RunDue(s)
	s.Require().NoError(err)
	s.Equal(0, n, "confirmation must wait for the delay")

	s.Clock.Advance(ledger.DefaultConfirmDelay)

	n, err = s.queue.RunDue(s)
	s.Require().NoError(err)
	s.Equal(1, n)

	confirmed, err := s.ledger.GetTransaction(s, t.ID)
	s.Require().NoError(err)
	s.Equal(entity.TransactionStatusConfirmed, confirmed.Status)
	s.Require().NotNil(confirmed.TxHash)
	s.Regexp(`^0x[0-9a-f]{64}$`, *confirmed.TxHash)
	s.Require().NotNil(confirmed.ConfirmedAt)

	s.requireDecimal(20, s.earnings(s.bob.ID))
	s.requireDecimal(0, s.earnings(s.alice.ID))
	s.requireEarningsInvariant()
}

func (s *LedgerTestSuite) TestCreate_Errors() {
	valid := ledger.CreateTransactionRequest{
		FromAgentID: s.alice.ID,
		ToAgentID:   s.bob.ID,
		Amount:      decimal.NewFromInt(5),
		Token:       entity.TokenDAI,
	}

	_, err := s.ledger.CreateTransaction(s, "", valid)
	s.ErrorIs(err, errors.ErrNotAuthenticated)

	_, err = s.ledger.CreateTransaction(s, "u2", valid)
	s.ErrorIs(err, errors.ErrNotAuthorized)

	missing := valid
	missing.ToAgentID = "missing"
	_, err = s.ledger.CreateTransaction(s, "u1", missing)
	s.ErrorIs(err, errors.ErrNotFound)

	missing = valid
	missing.FromAgentID = "missing"
	_, err = s.ledger.CreateTransaction(s, "u1", missing)
	s.ErrorIs(err, errors.ErrNotFound)

	zero := valid
	zero.Amount = decimal.Zero
	_, err = s.ledger.CreateTransaction(s, "u1", zero)
	s.ErrorIs(err, errors.ErrInvalidParams)

	token := valid
	token.Token = "BTC"
	_, err = s.ledger.CreateTransaction(s, "u1", token)
	s.ErrorIs(err, errors.ErrInvalidParams)

	self := valid
	self.ToAgentID = s.alice.ID
	_, err = s.ledger.CreateTransaction(s, "u1", self)
	s.ErrorIs(err, errors.ErrInvalidParams)

	var transactions, queued int64
	s.Require().NoError(s.DB.Model(&entity.Transaction{}).Count(&transactions).Error)
	s.Require().NoError(s.DB.Model(&entity.Job{}).Count(&queued).Error)
	s.Zero(transactions, "failed creates must not leave records")
	s.Zero(queued)
}

func (s *LedgerTestSuite) TestAmounts_KeepFullPrecision() {
	for _, tc := range []struct {
		amount, total string
	}{
		{amount: "1000000000.12345678", total: "3000000000.37037034"},
		{amount: "99999999.12345679", total: "299999997.37037037"},
	} {
		s.Run(tc.amount, func() {
			receiver, err := s.agents.CreateAgent(s, "u2", agent.CreateAgentRequest{Name: "receiver " + tc.amount})
			s.Require().NoError(err)

			amount := decimal.RequireFromString(tc.amount)
			for range 3 {
				t, err := s.ledger.CreateTransaction(s, "u1", ledger.CreateTransactionRequest{
					FromAgentID: s.alice.ID,
					ToAgentID:   receiver.ID,
					Amount:      amount,
					Token:       entity.TokenUSDC,
				})
				s.Require().NoError(err)
				s.Require().NoError(s.ledger.ConfirmTransaction(s, t.ID, ledger.NewSettlementHash()))

				stored, err := s.ledger.GetTransaction(s, t.ID)
				s.Require().NoError(err)
				s.Equal(tc.amount, stored.Amount.String())
			}

			s.Equal(tc.total, s.earnings(receiver.ID).String())
		})
	}

	s.requireEarningsInvariant()
}

func (s *LedgerTestSuite) TestCreate_RejectsUnrepresentableAmounts() {
	for _, amount := range []string{"1.123456789", "1000000000000", "-0.5"} {
		_, err := s.ledger.CreateTransaction(s, "u1", ledger.CreateTransactionRequest{
			FromAgentID: s.alice.ID,
			ToAgentID:   s.bob.ID,
			Amount:      decimal.RequireFromString(amount),
			Token:       entity.TokenUSDC,
		})
		s.ErrorIs(err, errors.ErrInvalidParams, amount)
	}

	_, err := s.ledger.CreateTransaction(s, "u1", ledger.CreateTransactionRequest{
		FromAgentID: s.alice.ID,
		ToAgentID:   s.bob.ID,
		Amount:      decimal.RequireFromString("1.100000000"),
		Token:       entity.TokenUSDC,
	})
	s.NoError(err, "trailing zeros beyond the scale are not lost precision")
}

func (s *LedgerTestSuite) TestConfirm_Twice() {
	t := s.send(s.alice, s.bob, 20)

	s.Require().NoError(s.ledger.ConfirmTransaction(s, t.ID, ledger.NewSettlementHash()))
	s.Require().NoError(s.ledger.ConfirmTransaction(s, t.ID, ledger.NewSettlementHash()))

	s.requireDecimal(20, s.earnings(s.bob.ID))

	// the scheduled delivery arrives after the manual confirmation
	s.Clock.Advance(time.Minute)
	_, err := s.queue.RunDue(s)
	s.Require().NoError(err)

	s.requireDecimal(20, s.earnings(s.bob.ID))
	s.requireEarningsInvariant()
}

func (s *LedgerTestSuite) TestConfirm_SurvivesWorkerShutdown() {
	ctx, cancel := context.WithCancel(s)
	defer cancel()

	s.queue.Register(ledger.JobKindConfirm, jobs.HandlerFor(func(ctx context.Context, p ledger.ConfirmPayload) error {
		cancel()
		return s.ledger.ConfirmTransaction(ctx, p.TransactionID, p.TxHash)
	}))

	t := s.send(s.alice, s.bob, 20)
	s.Clock.Advance(ledger.DefaultConfirmDelay)

	_, err := s.queue.RunDue(ctx)
	s.Require().NoError(err)

	confirmed, err := s.ledger.GetTransaction(s, t.ID)
	s.Require().NoError(err)
	s.Equal(entity.TransactionStatusConfirmed, confirmed.Status)
	s.requireDecimal(20, s.earnings(s.bob.ID))

	var job entity.Job
	s.Require().NoError(s.DB.First(&job, "kind = ?", ledger.JobKindConfirm).Error)
	s.Equal(entity.JobStatusDone, job.Status)
	s.Empty(job.LastError)
}

func (s *LedgerTestSuite) TestConfirm_NotFound() {
	err := s.ledger.ConfirmTransaction(s, "missing", ledger.NewSettlementHash())
	s.ErrorIs(err, errors.ErrNotFound)
}

func (s *LedgerTestSuite) TestConfirm_FailedIsFinal() {
	t := s.send(s.alice, s.bob, 20)
	s.Require().NoError(s.DB.Model(&entity.Transaction{}).
		Where("id = ?", t.ID).
		Update("status", entity.TransactionStatusFailed).Error)

	err := s.ledger.ConfirmTransaction(s, t.ID, ledger.NewSettlementHash())
	s.ErrorIs(err, errors.ErrInvalidTransition)
	s.requireDecimal(0, s.earnings(s.bob.ID))
}

func (s *LedgerTestSuite) TestConfirm_ReceiverGone() {
	t := s.send(s.alice, s.bob, 20)
	s.Require().NoError(s.DB.Delete(&entity.Agent{}, "id = ?", s.bob.ID).Error)

	s.Require().NoError(s.ledger.ConfirmTransaction(s, t.ID, ledger.NewSettlementHash()))

	confirmed, err := s.ledger.GetTransaction(s, t.ID)
	s.Require().NoError(err)
	s.Equal(entity.TransactionStatusConfirmed, confirmed.Status)
}

func (s *LedgerTestSuite) TestConfirm_Concurrent() {
	var transactions []*entity.Transaction
	for i := int64(1); i <= 8; i++ {
		transactions = append(transactions, s.send(s.alice, s.bob, i*5))
		transactions = append(transactions, s.send(s.bob, s.alice, i))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(transactions)*2)
	for _, t := range transactions {
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.ledger.ConfirmTransaction(s, t.ID, ledger.NewSettlementHash())
			}()
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.Require().NoError(err)
	}

	s.requireDecimal(180, s.earnings(s.bob.ID))
	s.requireDecimal(36, s.earnings(s.alice.ID))
	s.requireEarningsInvariant()
}

func (s *LedgerTestSuite) TestGetMyTransactions() {
	for i := range 12 {
		s.send(s.alice, s.bob, int64(10+i))
		s.Clock.Advance(time.Second)
	}
	for i := range 8 {
		s.send(s.bob, s.alice, int64(1+i))
		s.Clock.Advance(time.Second)
	}

	mine, err := s.ledger.GetMyTransactions(s, "u1")
	s.Require().NoError(err)
	s.Len(mine, 15)
	for i := 1; i < len(mine); i++ {
		s.False(mine[i].CreatedAt.After(mine[i-1].CreatedAt), "must be newest first")
	}
	s.Equal("u2", mine[0].FromUserID, "the newest transfer was received")

	again, err := s.ledger.GetMyTransactions(s, "u1")
	s.Require().NoError(err)
	s.Equal(mine, again)

	none, err := s.ledger.GetMyTransactions(s, "")
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *LedgerTestSuite) TestSystemTransaction_SkipsOwnership() {
	t, err := s.ledger.CreateSystemTransaction(s, ledger.CreateTransactionRequest{
		FromAgentID:        s.alice.ID,
		ToAgentID:          s.bob.ID,
		Amount:             decimal.NewFromInt(42),
		Token:              entity.TokenDAI,
		ServiceDescription: "Automated agent service",
	})
	s.Require().NoError(err)
	s.Equal(entity.TransactionStatusPending, t.Status)

	var pending []entity.Job
	s.Require().NoError(s.DB.Find(&pending, "kind = ?", ledger.JobKindConfirm).Error)
	s.Len(pending, 1)
}

func TestLedger(t *testing.T) {
	suite.Run(t, new(LedgerTestSuite))
}

func TestNewSettlementHash(t *testing.T) {
	pattern := regexp.MustCompile(`^0x[0-9a-f]{64}$`)

	a, b := ledger.NewSettlementHash(), ledger.NewSettlementHash()
	require.Regexp(t, pattern, a)
	require.Regexp(t, pattern, b)
	require.NotEqual(t, a, b)
}
