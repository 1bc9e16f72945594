package analysis

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidParameter is returned when a numeric parameter is out of range.
// Parameters are rejected, never clamped.
var ErrInvalidParameter = errors.New("invalid parameter")

// Params holds the thresholds used by the anomaly and low-spend detectors.
type Params struct {
	SingleThreshold decimal.Decimal `json:"single_threshold"`
	WindowMinutes   int             `json:"freq_window_min"`
	MinCount        int             `json:"freq_count"`
	WeeklyThreshold decimal.Decimal `json:"weekly_threshold"`
}

// DefaultParams returns the thresholds the card office uses out of the box.
func DefaultParams() Params {
	return Params{
		SingleThreshold: decimal.NewFromInt(200),
		WindowMinutes:   10,
		MinCount:        3,
		WeeklyThreshold: decimal.NewFromInt(140),
	}
}

func (p Params) Validate() error {
	if err := validateSingleThreshold(p.SingleThreshold); err != nil {
		return err
	}
	if err := validateWindow(p.WindowMinutes, p.MinCount); err != nil {
		return err
	}
	return validateWeeklyThreshold(p.WeeklyThreshold)
}

func validateWindow(windowMinutes, minCount int) error {
	if windowMinutes <= 0 {
		return fmt.Errorf("%w: frequency window must be positive, got %d minutes", ErrInvalidParameter, windowMinutes)
	}
	if minCount < 1 {
		return fmt.Errorf("%w: frequency count must be at least 1, got %d", ErrInvalidParameter, minCount)
	}
	return nil
}

func validateSingleThreshold(threshold decimal.Decimal) error {
	if !threshold.IsPositive() {
		return fmt.Errorf("%w: single threshold must be positive, got %s", ErrInvalidParameter, threshold)
	}
	return nil
}

func validateWeeklyThreshold(threshold decimal.Decimal) error {
	if threshold.IsNegative() {
		return fmt.Errorf("%w: weekly threshold must not be negative, got %s", ErrInvalidParameter, threshold)
	}
	return nil
}
