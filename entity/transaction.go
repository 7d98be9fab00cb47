package entity

import (
	"time"
)

type Token string

const (
	TokenUSDC Token = "USDC"
	TokenDAI  Token = "DAI"
)

func (t Token) Valid() bool {
	return t == TokenUSDC || t == TokenDAI
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	// TransactionStatusFailed is reserved in the schema. Nothing produces it
	// and CanTransitionTo refuses it.
	TransactionStatusFailed TransactionStatus = "failed"
)

// CanTransitionTo reports whether a transaction in status s may move to
// next. The only legal move is pending -> confirmed.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return s == TransactionStatusPending && next == TransactionStatusConfirmed
}

type Transaction struct {
	Model

	FromAgentID        string            `gorm:"index;size:36;not null" json:"fromAgentId"`
	ToAgentID          string            `gorm:"index;size:36;not null" json:"toAgentId"`
	Amount             Amount            `gorm:"not null" json:"amount"`
	Token              Token             `gorm:"size:8;not null" json:"token"`
	Status             TransactionStatus `gorm:"index;size:16;not null" json:"status"`
	TxHash             *string           `json:"txHash,omitempty"`
	ServiceDescription string            `json:"serviceDescription"`
	Duration           *float64          `json:"duration,omitempty"`

	// FromUserID and ToUserID are snapshots of the agents' owners taken at
	// creation time. They are never re-synced.
	FromUserID string `gorm:"index;size:64;not null" json:"fromUserId"`
	ToUserID   string `gorm:"index;size:64;not null" json:"toUserId"`

	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}
