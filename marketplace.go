package agentmarket

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"

	"github.com/habiliai/agentmarket/agent"
	"github.com/habiliai/agentmarket/analytics"
	"github.com/habiliai/agentmarket/api"
	"github.com/habiliai/agentmarket/chat"
	"github.com/habiliai/agentmarket/config"
	"github.com/habiliai/agentmarket/internal/clock"
	"github.com/habiliai/agentmarket/internal/db"
	"github.com/habiliai/agentmarket/internal/mylog"
	"github.com/habiliai/agentmarket/jobs"
	"github.com/habiliai/agentmarket/ledger"
	"github.com/habiliai/agentmarket/maintenance"
	"gorm.io/gorm"
)

type (
	Marketplace struct {
		config *config.MarketConfig
		logger *slog.Logger
		clock  clock.Clock
		rng    *rand.Rand
		db     *gorm.DB
		ownsDB bool

		agents      agent.Manager
		ledger      ledger.Service
		analytics   analytics.Service
		chat        chat.Service
		maintenance maintenance.Service
		queue       jobs.Queue
		scheduler   *jobs.Scheduler
		handler     http.Handler
	}
	Option func(*Marketplace)
)

// New assembles a marketplace. Without WithDB the database named by the
// config is opened and closed again by Close.
func New(ctx context.Context, optionFuncs ...Option) (*Marketplace, error) {
	m := &Marketplace{
		config: config.NewMarketConfig(),
	}
	for _, f := range optionFuncs {
		f(m)
	}

	if err := m.config.Validate(); err != nil {
		return nil, err
	}
	if m.logger == nil {
		m.logger = mylog.NewLogger(m.config.LogLevel, m.config.LogHandler)
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}

	if m.db == nil {
		gormDB, err := db.OpenDB(m.config.DatabaseUrl, db.WithNowFunc(m.clock.Now))
		if err != nil {
			return nil, err
		}
		m.db = gormDB
		m.ownsDB = true
	}

	if m.config.DatabaseAutoMigrate {
		if err := db.AutoMigrate(ctx, m.db); err != nil {
			_ = m.closeDB()
			return nil, err
		}
	}

	m.queue = jobs.NewQueue(m.db, m.logger.With("component", "jobs"), m.clock, m.config.Jobs.BatchSize,
		jobs.WithLease(m.config.Jobs.Lease),
		jobs.WithMaxAttempts(m.config.Jobs.MaxAttempts),
	)
	m.agents = agent.NewManager(m.db, m.logger.With("component", "agent"), m.clock)
	m.ledger = ledger.NewService(m.db, m.logger.With("component", "ledger"), m.clock, m.queue, m.config.Ledger.ConfirmDelay)
	m.ledger.RegisterJobs(m.queue)
	m.analytics = analytics.NewService(m.db, m.logger.With("component", "analytics"), m.clock)
	m.chat = chat.NewService(m.db, m.logger.With("component", "chat"), m.clock)
	m.maintenance = maintenance.NewService(
		m.db,
		m.logger.With("component", "maintenance"),
		m.clock,
		m.ledger,
		m.rng,
		m.config.Maintenance,
	)
	m.scheduler = jobs.NewScheduler(m.logger.With("component", "scheduler"), m.maintenance.Schedules()...)

	m.handler = api.NewHandler(api.Services{
		Agents:    m.agents,
		Ledger:    m.ledger,
		Analytics: m.analytics,
		Chat:      m.chat,
	}, m.logger.With("component", "api"))

	return m, nil
}

// Start runs the job worker and, when maintenance is enabled, the periodic
// scheduler. It blocks until ctx is cancelled.
func (m *Marketplace) Start(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.queue.Work(ctx, m.config.Jobs.PollInterval)
	}()

	if m.config.Maintenance.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.scheduler.Run(ctx)
		}()
	} else {
		m.logger.Info("maintenance disabled")
	}

	wg.Wait()
}

func (m *Marketplace) Close() error {
	return m.closeDB()
}

func (m *Marketplace) closeDB() error {
	if !m.ownsDB {
		return nil
	}
	m.ownsDB = false
	return db.CloseDB(m.db)
}

func (m *Marketplace) Handler() http.Handler { return m.handler }
func (m *Marketplace) Config() *config.MarketConfig { return m.config }
func (m *Marketplace) Logger() *slog.Logger { return m.logger }
func (m *Marketplace) Agents() agent.Manager { return m.agents }
func (m *Marketplace) Ledger() ledger.Service { return m.ledger }
func (m *Marketplace) Analytics() analytics.Service { return m.analytics }
func (m *Marketplace) Chat() chat.Service { return m.chat }
func (m *Marketplace) Maintenance() maintenance.Service { return m.maintenance }
func (m *Marketplace) Queue() jobs.Queue { return m.queue }
func (m *Marketplace) Scheduler() *jobs.Scheduler { return m.scheduler }

func WithConfig(conf *config.MarketConfig) Option {
	return func(m *Marketplace) {
		m.config = conf
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Marketplace) {
		m.logger = logger
	}
}

func WithDB(gormDB *gorm.DB) Option {
	return func(m *Marketplace) {
		m.db = gormDB
	}
}

func WithClock(clk clock.Clock) Option {
	return func(m *Marketplace) {
		m.clock = clk
	}
}

// WithRand fixes the random source used by the maintenance jobs.
func WithRand(rng *rand.Rand) Option {
	return func(m *Marketplace) {
		m.rng = rng
	}
}
