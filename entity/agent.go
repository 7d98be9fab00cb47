package entity

import (
	"time"

	"gorm.io/datatypes"
)

type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
	AgentStatusBusy     AgentStatus = "busy"
)

const (
	DefaultReputation = 5.0
	DefaultUptime     = 98.5
	MinUptime         = 85.0
	MaxUptime         = 99.9
)

func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusActive, AgentStatusInactive, AgentStatusBusy:
		return true
	default:
		return false
	}
}

type Agent struct {
	Model

	OwnerUserID   string      `gorm:"index;not null" json:"ownerUserId"`
	Name          string      `gorm:"not null" json:"name"`
	Description   string      `json:"description"`
	Category      string      `gorm:"index" json:"category"`
	WalletAddress string      `json:"walletAddress"`
	Status        AgentStatus `gorm:"index;size:16;not null" json:"status"`
	PricePerHour  float64     `json:"pricePerHour"`

	// TotalEarnings is only ever increased by transaction confirmation.
	TotalEarnings Amount `gorm:"not null" json:"totalEarnings"`

	Reputation   float64                     `json:"reputation"`
	Capabilities datatypes.JSONSlice[string] `json:"capabilities"`
	Avatar       *string                     `json:"avatar,omitempty"`
	Uptime       float64                     `json:"uptime"`
	LastActiveAt time.Time                   `json:"lastActiveAt"`
}

// ClampUptime bounds an uptime value to the range maintained by the
// metrics job.
func ClampUptime(uptime float64) float64 {
	return max(MinUptime, min(MaxUptime, uptime))
}
