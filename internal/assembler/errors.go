package assembler

import (
	"errors"
	"fmt"
)

// ErrContextOverflow indicates the mandatory context alone exceeds the budget.
var ErrContextOverflow = errors.New("mandatory context exceeds budget")

// ErrUnknownTier indicates a tier name that ParseTier does not recognize.
var ErrUnknownTier = errors.New("unknown context tier")

// ContextOverflowError reports how far the mandatory tiers overshoot the
// budget. No partial payload is produced.
type ContextOverflowError struct {
	SceneID int
	Needed  int
	Budget  int
}

// Error returns the scene, required tokens, and budget.
func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("scene %d: mandatory context needs %d tokens, budget is %d", e.SceneID, e.Needed, e.Budget)
}

// Unwrap returns ErrContextOverflow.
func (e *ContextOverflowError) Unwrap() error { return ErrContextOverflow }
