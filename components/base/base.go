// Package base defines the motion commands a mobile base accepts and the interface that carries
// them out.
package base

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// A MotionCommand is a whole-chassis movement.
type MotionCommand int

// Motion commands. Stop brakes; Idle lets the wheels coast.
const (
	Stop MotionCommand = iota
	Forward
	Backward
	TurnLeft
	TurnRight
	Idle
)

var commandNames = map[MotionCommand]string{
	Stop:      "stop",
	Forward:   "forward",
	Backward:  "backward",
	TurnLeft:  "turn_left",
	TurnRight: "turn_right",
	Idle:      "idle",
}

func (c MotionCommand) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("MotionCommand(%d)", int(c))
}

// ParseMotionCommand returns the command named s, as printed by String.
func ParseMotionCommand(s string) (MotionCommand, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, name := range commandNames {
		if name == s {
			return c, nil
		}
	}
	return 0, errors.Errorf("unknown motion command %q", s)
}

// A Base moves the rover.
type Base interface {
	// Execute applies cmd and returns once the wheels are set.
	Execute(ctx context.Context, cmd MotionCommand) error

	// Stop brakes every wheel.
	Stop(ctx context.Context) error
}
