package analytics

import (
	"github.com/shopspring/decimal"
)

type NetworkHealth string

const (
	NetworkHealthExcellent NetworkHealth = "excellent"
	NetworkHealthGood      NetworkHealth = "good"
	NetworkHealthFair      NetworkHealth = "fair"
)

type (
	DailyEarnings struct {
		Date     string          `json:"date"` // YYYY-MM-DD
		Earnings decimal.Decimal `json:"earnings"`
	}

	MonthlyEarnings struct {
		Month    string          `json:"month"` // YYYY-MM
		Earnings decimal.Decimal `json:"earnings"`
	}

	MyEarnings struct {
		TotalEarnings     decimal.Decimal `json:"totalEarnings"`
		Earnings24h       decimal.Decimal `json:"earnings24h"`
		EarningsThisMonth decimal.Decimal `json:"earningsThisMonth"`
		PendingEarnings   decimal.Decimal `json:"pendingEarnings"`
		EarningsHistory   []DailyEarnings `json:"earningsHistory"`
	}

	AgentEarnings struct {
		AgentID                 string          `json:"agentId"`
		TotalEarnings           decimal.Decimal `json:"totalEarnings"`
		TransactionCount        int             `json:"transactionCount"`
		AverageTransactionValue decimal.Decimal `json:"averageTransactionValue"`
	}

	AgentPerformance struct {
		AgentID          string          `json:"agentId"`
		Name             string          `json:"name"`
		Earnings         decimal.Decimal `json:"earnings"`
		TransactionCount int             `json:"transactionCount"`
		Uptime           float64         `json:"uptime"`
		Reputation       float64         `json:"reputation"`
		// UtilizationRate is confirmed transactions per day since the agent
		// was listed.
		UtilizationRate float64 `json:"utilizationRate"`
	}

	Analytics struct {
		TotalEarnings           decimal.Decimal    `json:"totalEarnings"`
		AverageTransactionValue decimal.Decimal    `json:"averageTransactionValue"`
		TotalTransactions       int                `json:"totalTransactions"`
		AgentPerformance        []AgentPerformance `json:"agentPerformance"`
		MonthlyEarnings         []MonthlyEarnings  `json:"monthlyEarnings"`
		TopPerformingAgent      *AgentPerformance  `json:"topPerformingAgent"`
	}

	NetworkStats struct {
		TotalAgents       int             `json:"totalAgents"`
		ActiveAgents      int             `json:"activeAgents"`
		TotalVolume       decimal.Decimal `json:"totalVolume"`
		Volume24h         decimal.Decimal `json:"volume24h"`
		AverageUptime     float64         `json:"averageUptime"`
		TotalTransactions int             `json:"totalTransactions"`
		Transactions24h   int             `json:"transactions24h"`
		NetworkHealth     NetworkHealth   `json:"networkHealth"`
	}
)

func HealthOf(averageUptime float64) NetworkHealth {
	switch {
	case averageUptime > 95:
		return NetworkHealthExcellent
	case averageUptime > 85:
		return NetworkHealthGood
	default:
		return NetworkHealthFair
	}
}
