package lottery

import (
	"errors"
	"fmt"
)

var (
	ErrActivityNotFound      = errors.New("activity not found")
	ErrCodeNotFound          = errors.New("lottery code not found")
	ErrCodeAlreadyUsed       = errors.New("lottery code already used")
	ErrCodeAlreadyRedeemed   = errors.New("lottery code already has a record")
	ErrCodeAlreadyInvalid    = errors.New("lottery code already invalid")
	ErrCodeExists            = errors.New("lottery code already exists")
	ErrPrizeNotFound         = errors.New("prize not found")
	ErrRecordNotFound        = errors.New("lottery record not found")
	ErrOutOfStock            = errors.New("prize out of stock")
	ErrOverRestore           = errors.New("restore exceeds total quantity")
	ErrProbabilityOverflow   = errors.New("prize probability sum exceeds 1")
	ErrInsufficientCodeSpace = errors.New("code format space cannot satisfy request")
	ErrUnknownCodeFormat     = errors.New("unknown lottery code format")
)

// Reasons an activity refuses a draw.
const (
	ReasonNotActive  = "not-active"
	ReasonNotStarted = "not-started"
	ReasonEnded      = "ended"
)

// EligibilityError reports why an activity cannot accept redemptions right now.
type EligibilityError struct {
	Reason string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("activity not eligible: %s", e.Reason)
}

// ProbabilitySumError carries the attempted sum when a prize create/update
// would push the activity's explicit probability total over 1.
type ProbabilitySumError struct {
	Sum float64
}

func (e *ProbabilitySumError) Error() string {
	return fmt.Sprintf("prize probability sum would reach %.4f", e.Sum)
}

func (e *ProbabilitySumError) Unwrap() error {
	return ErrProbabilityOverflow
}
