package entity

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	// JobStatusRunning jobs hold a lease from ClaimedAt. A running job whose
	// lease has expired is claimed again.
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	// JobStatusDead marks a job whose handler returned an error or that
	// exhausted its attempts. Dead jobs are kept for inspection and never
	// retried.
	JobStatusDead JobStatus = "dead"
)

type Job struct {
	Model

	Kind      string         `gorm:"index;size:64;not null" json:"kind"`
	Payload   datatypes.JSON `json:"payload"`
	NotBefore time.Time      `gorm:"index;not null" json:"notBefore"`
	Status    JobStatus      `gorm:"index;size:16;not null" json:"status"`
	Attempts  int            `json:"attempts"`
	ClaimedAt *time.Time     `gorm:"index" json:"claimedAt,omitempty"`
	LastError string         `json:"lastError,omitempty"`
}
