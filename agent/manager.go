package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/habiliai/agentmarket/entity"
	"github.com/habiliai/agentmarket/errors"
	"github.com/habiliai/agentmarket/internal/clock"
	"github.com/habiliai/agentmarket/internal/db"
	"github.com/habiliai/agentmarket/internal/metrics"
	"github.com/habiliai/agentmarket/internal/stringutils"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	DefaultListLimit = 20

	SortByPrice      = "price"
	SortByReputation = "reputation"
	SortByEarnings   = "earnings"
)

type (
	CreateAgentRequest struct {
		Name          string   `json:"name" jsonschema:"required,minLength=1"`
		Description   string   `json:"description"`
		Category      string   `json:"category"`
		WalletAddress string   `json:"walletAddress"`
		PricePerHour  float64  `json:"pricePerHour" jsonschema:"minimum=0"`
		Capabilities  []string `json:"capabilities"`
		Avatar        *string  `json:"avatar,omitempty"`
	}

	MarketplaceQuery struct {
		Category string `json:"category,omitempty" mapstructure:"category"`
		SortBy   string `json:"sortBy,omitempty" mapstructure:"sortBy" jsonschema:"enum=price,enum=reputation,enum=earnings"`
		Limit    int    `json:"limit,omitempty" mapstructure:"limit"`
	}

	CategoryStats struct {
		Name         string  `json:"name"`
		TotalAgents  int     `json:"totalAgents"`
		ActiveAgents int     `json:"activeAgents"`
		AveragePrice float64 `json:"averagePrice"`
	}

	Manager interface {
		CreateAgent(ctx context.Context, caller string, req CreateAgentRequest) (*entity.Agent, error)
		UpdateAgentStatus(ctx context.Context, caller string, agentID string, status entity.AgentStatus) error
		GetAgent(ctx context.Context, agentID string) (*entity.Agent, error)
		GetMyAgents(ctx context.Context, caller string) ([]entity.Agent, error)
		GetAllAgents(ctx context.Context) ([]entity.Agent, error)
		GetMarketplaceAgents(ctx context.Context, query MarketplaceQuery) ([]entity.Agent, error)
		SearchAgents(ctx context.Context, term string) ([]entity.Agent, error)
		GetAgentCategories(ctx context.Context) ([]CategoryStats, error)
	}

	manager struct {
		logger *slog.Logger
		db     *gorm.DB
		clock  clock.Clock
	}
)

var (
	_ Manager = (*manager)(nil)
)

func NewManager(gormDB *gorm.DB, logger *slog.Logger, clk clock.Clock) Manager {
	return &manager{
		logger: logger,
		db:     gormDB,
		clock:  clk,
	}
}

func (m *manager) CreateAgent(ctx context.Context, caller string, req CreateAgentRequest) (*entity.Agent, error) {
	if caller == "" {
		return nil, errors.Wrapf(errors.ErrNotAuthenticated, "failed to create agent")
	}
	req.Name = stringutils.CleanLine(req.Name)
	req.Category = stringutils.CleanLine(req.Category)
	req.Description = stringutils.CleanText(req.Description)
	if req.Name == "" {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "agent name is required")
	}
	if req.PricePerHour < 0 {
		return nil, errors.Wrapf(errors.ErrInvalidParams, "price per hour must not be negative")
	}

	_, tx := db.OpenSession(ctx, m.db)

	capabilities := req.Capabilities
	if capabilities == nil {
		capabilities = []string{}
	}

	agent := entity.Agent{
		OwnerUserID:   caller,
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		WalletAddress: req.WalletAddress,
		Status:        entity.AgentStatusActive,
		PricePerHour:  req.PricePerHour,
		TotalEarnings: entity.NewAmount(decimal.Zero),
		Reputation:    entity.DefaultReputation,
		Capabilities:  datatypes.JSONSlice[string](capabilities),
		Avatar:        req.Avatar,
		Uptime:        entity.DefaultUptime,
		LastActiveAt:  m.clock.Now().UTC(),
	}
	if err := tx.Create(&agent).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to create agent")
	}

	metrics.AgentsCreated.Inc()
	m.logger.Info("agent created", "agent_id", agent.ID, "owner", caller, "name", agent.Name)

	return &agent, nil
}

func (m *manager) UpdateAgentStatus(ctx context.Context, caller string, agentID string, status entity.AgentStatus) error {
	if caller == "" {
		return errors.Wrapf(errors.ErrNotAuthenticated, "failed to update agent status")
	}
	if !status.Valid() {
		return errors.Wrapf(errors.ErrInvalidParams, "unknown agent status %q", status)
	}

	return db.Transaction(ctx, m.db, func(ctx context.Context, tx *gorm.DB) error {
		agent, err := m.GetAgent(ctx, agentID)
		if err != nil {
			return err
		}
		if agent.OwnerUserID != caller {
			return errors.Wrapf(errors.ErrNotAuthorized, "agent %s is not owned by caller", agentID)
		}

		if err := tx.Model(&entity.Agent{}).Where("id = ?", agentID).Updates(map[string]any{
			"status":         status,
			"last_active_at": m.clock.Now().UTC(),
		}).Error; err != nil {
			return errors.Wrapf(err, "failed to update agent status")
		}

		return nil
	})
}

func (m *manager) GetAgent(ctx context.Context, agentID string) (*entity.Agent, error) {
	_, tx := db.OpenSession(ctx, m.db)

	var agent entity.Agent
	if r := tx.Find(&agent, "id = ?", agentID); r.Error != nil {
		return nil, errors.Wrapf(r.Error, "failed to find agent")
	} else if r.RowsAffected == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "agent %s not found", agentID)
	}

	return &agent, nil
}

func (m *manager) GetMyAgents(ctx context.Context, caller string) ([]entity.Agent, error) {
	if caller == "" {
		return []entity.Agent{}, nil
	}

	_, tx := db.OpenSession(ctx, m.db)

	agents := []entity.Agent{}
	if err := tx.Where("owner_user_id = ?", caller).Order("created_at ASC, id ASC").Find(&agents).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find agents")
	}

	return agents, nil
}

func (m *manager) GetAllAgents(ctx context.Context) ([]entity.Agent, error) {
	_, tx := db.OpenSession(ctx, m.db)

	agents := []entity.Agent{}
	if err := tx.Where("status = ?", entity.AgentStatusActive).
		Order("created_at ASC, id ASC").
		Limit(DefaultListLimit).
		Find(&agents).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find agents")
	}

	return agents, nil
}

// GetMarketplaceAgents lists active agents, optionally narrowed to a
// category. Sorting is applied before the limit so the page holds the
// cheapest, best rated or highest earning agents of the whole market.
func (m *manager) GetMarketplaceAgents(ctx context.Context, query MarketplaceQuery) ([]entity.Agent, error) {
	_, tx := db.OpenSession(ctx, m.db)

	limit := query.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	stmt := tx.Model(&entity.Agent{}).Where("status = ?", entity.AgentStatusActive)
	if query.Category != "" {
		stmt = stmt.Where("category = ?", query.Category)
	}

	switch query.SortBy {
	case "":
	case SortByPrice:
		stmt = stmt.Order("price_per_hour ASC")
	case SortByReputation:
		stmt = stmt.Order("reputation DESC")
	case SortByEarnings:
		// SQLite keeps amounts as text, which would sort lexically.
		if db.IsPostgres(tx) {
			stmt = stmt.Order("total_earnings DESC")
		} else {
			stmt = stmt.Order("CAST(total_earnings AS REAL) DESC")
		}
	default:
		return nil, errors.Wrapf(errors.ErrInvalidParams, "unknown sort key %q", query.SortBy)
	}

	agents := []entity.Agent{}
	if err := stmt.Order("created_at ASC, id ASC").Limit(limit).Find(&agents).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find marketplace agents")
	}

	return agents, nil
}

func (m *manager) SearchAgents(ctx context.Context, term string) ([]entity.Agent, error) {
	_, tx := db.OpenSession(ctx, m.db)

	var active []entity.Agent
	if err := tx.Where("status = ?", entity.AgentStatusActive).Order("created_at ASC, id ASC").Find(&active).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find agents")
	}

	term = strings.ToLower(term)
	return lo.Filter(active, func(a entity.Agent, _ int) bool {
		return matches(a, term)
	}), nil
}

func matches(a entity.Agent, term string) bool {
	if strings.Contains(strings.ToLower(a.Name), term) ||
		strings.Contains(strings.ToLower(a.Description), term) ||
		strings.Contains(strings.ToLower(a.Category), term) {
		return true
	}
	return lo.SomeBy(a.Capabilities, func(c string) bool {
		return strings.Contains(strings.ToLower(c), term)
	})
}

func (m *manager) GetAgentCategories(ctx context.Context) ([]CategoryStats, error) {
	_, tx := db.OpenSession(ctx, m.db)

	var agents []entity.Agent
	if err := tx.Order("created_at ASC, id ASC").Find(&agents).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to find agents")
	}

	byCategory := lo.GroupBy(agents, func(a entity.Agent) string { return a.Category })
	categories := lo.Uniq(lo.Map(agents, func(a entity.Agent, _ int) string { return a.Category }))

	return lo.Map(categories, func(name string, _ int) CategoryStats {
		members := byCategory[name]
		return CategoryStats{
			Name:        name,
			TotalAgents: len(members),
			ActiveAgents: lo.CountBy(members, func(a entity.Agent) bool {
				return a.Status == entity.AgentStatusActive
			}),
			AveragePrice: lo.SumBy(members, func(a entity.Agent) float64 { return a.PricePerHour }) / float64(len(members)),
		}
	}), nil
}
