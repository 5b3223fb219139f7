// Package sweep swings the ranger across a set of headings and collects one distance per heading.
package sweep

import (
	"context"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/sonarbot/rover/logging"
)

// DefaultAngles is the standard right, front, left sweep.
var DefaultAngles = []int{-60, 0, 60}

// Angle limits of the servo carrying the ranger.
const (
	MinAngle = -90
	MaxAngle = 90
)

// A DistanceRecord is one full sweep, in centimeters.
type DistanceRecord struct {
	Left  float64 `json:"left_cm"`
	Front float64 `json:"front_cm"`
	Right float64 `json:"right_cm"`
}

func (r DistanceRecord) String() string {
	return fmt.Sprintf("left=%.1fcm front=%.1fcm right=%.1fcm", r.Left, r.Front, r.Right)
}

// A Positioner points the ranger at a heading and returns once it has settled.
type Positioner interface {
	SetAngle(ctx context.Context, deg int) error
}

// A Ranger returns a filtered distance in centimeters.
type Ranger interface {
	Measure(ctx context.Context) (float64, error)
}

// ValidateAngles checks a sweep is three distinct headings within the servo's range.
func ValidateAngles(path string, angles []int) error {
	if len(angles) != 3 {
		return utils.NewConfigValidationError(path, errors.Errorf("need exactly 3 angles, have %d", len(angles)))
	}
	seen := map[int]bool{}
	for _, deg := range angles {
		if deg < MinAngle || deg > MaxAngle {
			return utils.NewConfigValidationError(path, errors.Errorf("angle %d outside [%d, %d]", deg, MinAngle, MaxAngle))
		}
		if seen[deg] {
			return utils.NewConfigValidationError(path, errors.Errorf("angle %d repeated", deg))
		}
		seen[deg] = true
	}
	return nil
}

// A Sequencer runs sweeps.
type Sequencer struct {
	servo  Positioner
	ranger Ranger
	logger logging.Logger

	angles []int
	// headings by side; negative is the rover's right
	right, front, left int
}

// NewSequencer returns a Sequencer sweeping angles in the given order. The smallest angle is read
// as right, the middle one as front and the largest as left.
func NewSequencer(servo Positioner, ranger Ranger, angles []int, logger logging.Logger) (*Sequencer, error) {
	if len(angles) == 0 {
		angles = DefaultAngles
	}
	if err := ValidateAngles("scan.angles", angles); err != nil {
		return nil, err
	}
	sorted := append([]int(nil), angles...)
	sort.Ints(sorted)
	return &Sequencer{
		servo:  servo,
		ranger: ranger,
		logger: logger,
		angles: append([]int(nil), angles...),
		right:  sorted[0],
		front:  sorted[1],
		left:   sorted[2],
	}, nil
}

// Angles returns the sweep order.
func (s *Sequencer) Angles() []int {
	return append([]int(nil), s.angles...)
}

// Scan points the ranger at each angle in order and measures. The first failure ends the scan
// and is returned without trying the remaining angles.
func (s *Sequencer) Scan(ctx context.Context, angles []int) (map[int]float64, error) {
	distances := make(map[int]float64, len(angles))
	for _, deg := range angles {
		if err := s.servo.SetAngle(ctx, deg); err != nil {
			return nil, errors.Wrapf(err, "pointing ranger at %d°", deg)
		}
		distance, err := s.ranger.Measure(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "measuring at %d°", deg)
		}
		distances[deg] = distance
	}
	return distances, nil
}

// Sweep scans the configured angles and labels the readings by side.
func (s *Sequencer) Sweep(ctx context.Context) (DistanceRecord, error) {
	distances, err := s.Scan(ctx, s.angles)
	if err != nil {
		return DistanceRecord{}, err
	}
	record := DistanceRecord{
		Left:  distances[s.left],
		Front: distances[s.front],
		Right: distances[s.right],
	}
	s.logger.Debugf("sweep %s", record)
	return record, nil
}
