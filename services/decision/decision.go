// Package decision maps one sweep of distances to a motion command with a fixed threshold table.
package decision

import (
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/sonarbot/rover/components/base"
)

// Default thresholds, in centimeters.
const (
	DefaultFrontClearCm  = 40
	DefaultSideBlockedCm = 20
)

// Thresholds configures the decision table.
type Thresholds struct {
	// FrontClearCm is the front distance above which the rover drives straight on.
	FrontClearCm float64 `json:"front_clear_cm,omitempty"`
	// SideBlockedCm is the side distance below which a side counts as blocked.
	SideBlockedCm float64 `json:"side_blocked_cm,omitempty"`
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{FrontClearCm: DefaultFrontClearCm, SideBlockedCm: DefaultSideBlockedCm}
}

// Validate ensures all parts of the config are valid.
func (th *Thresholds) Validate(path string) error {
	if th.FrontClearCm < 0 {
		return utils.NewConfigValidationError(path, errors.New("front_clear_cm cannot be negative"))
	}
	if th.SideBlockedCm < 0 {
		return utils.NewConfigValidationError(path, errors.New("side_blocked_cm cannot be negative"))
	}
	return nil
}

// A Decision is the outcome of one evaluation.
type Decision struct {
	Command base.MotionCommand
	// BothSidesBlocked is set when both flanks were under the side threshold. The table still
	// picks a turn in that case; the flag only records that backing off was called for.
	BothSidesBlocked bool
}

// Evaluate applies the table, first match wins:
//
//  1. front above FrontClearCm: Forward
//  2. left and right both below SideBlockedCm: flag BothSidesBlocked and fall through
//  3. left below right: TurnRight
//  4. otherwise: TurnLeft
func Evaluate(front, left, right float64, th Thresholds) Decision {
	if front > th.FrontClearCm {
		return Decision{Command: base.Forward}
	}
	var d Decision
	if left < th.SideBlockedCm && right < th.SideBlockedCm {
		d.BothSidesBlocked = true
		d.Command = base.Backward
	}
	if left < right {
		d.Command = base.TurnRight
	} else {
		d.Command = base.TurnLeft
	}
	return d
}

// Decide returns the command Evaluate picks.
func Decide(front, left, right float64, th Thresholds) base.MotionCommand {
	return Evaluate(front, left, right, th).Command
}
