package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinels classify failures across the marketplace. Callers wrap them
// with context and match with Is.
var (
	ErrInvalidConfig     = fmt.Errorf("agentmarket: invalid config")
	ErrNotFound          = fmt.Errorf("agentmarket: not found")
	ErrNotAuthenticated  = fmt.Errorf("agentmarket: not authenticated")
	ErrNotAuthorized     = fmt.Errorf("agentmarket: not authorized")
	ErrInvalidParams     = fmt.Errorf("agentmarket: invalid params")
	ErrInvalidTransition = fmt.Errorf("agentmarket: invalid status transition")
	ErrInternal          = fmt.Errorf("agentmarket: internal error")
)

var (
	Wrap      = errors.Wrap
	Wrapf     = errors.Wrapf
	Errorf    = errors.Errorf
	New       = errors.New
	WithStack = errors.WithStack
	Is        = errors.Is
	As        = errors.As
)
