package fake

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	servo "github.com/sonarbot/rover/components/servo/gpio"
)

// speedOfSound at 20 °C in meters per second.
const speedOfSound = 342.62

// A Sonar simulates an HC-SR04 mounted on a servo. When the trigger falls it works out the heading
// from the servo pin's duty cycle, looks up the distance seen there and schedules an echo pulse of
// the matching width on the simulation clock.
type Sonar struct {
	mu        sync.Mutex
	clk       clock.Clock
	servo     *GPIOPin
	echoDelay time.Duration
	defaultCm float64
	obstacles map[int]float64

	armed      bool
	pulseStart time.Time
	pulseEnd   time.Time
	pings      int
	headings   []int
}

// SetObstacle changes the distance seen at a heading. A negative distance never echoes.
func (s *Sonar) SetObstacle(heading int, distanceCm float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obstacles[heading] = distanceCm
}

// Pings returns how many times the sonar has been triggered.
func (s *Sonar) Pings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

// Headings returns the heading of every ping so far, in order.
func (s *Sonar) Headings() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.headings...)
}

// EchoWidth returns the echo width for an obstacle at distanceCm.
func EchoWidth(distanceCm float64) time.Duration {
	return time.Duration(distanceCm * 2 / 100 / speedOfSound * float64(time.Second))
}

func (s *Sonar) heading() int {
	if s.servo == nil {
		return 0
	}
	duty, _ := s.servo.PWM(context.Background())
	freq, _ := s.servo.PWMFreq(context.Background())
	if duty == 0 || freq == 0 {
		return 0
	}
	return servo.AngleForDutyRatio(duty, freq)
}

func (s *Sonar) triggerSet(prev, high bool) {
	if !prev || high {
		return
	}
	heading := s.heading()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings++
	s.headings = append(s.headings, heading)
	distance, ok := s.obstacles[heading]
	if !ok {
		distance = s.defaultCm
	}
	if distance < 0 {
		s.armed = false
		return
	}
	s.armed = true
	s.pulseStart = s.clk.Now().Add(s.echoDelay)
	s.pulseEnd = s.pulseStart.Add(EchoWidth(distance))
}

func (s *Sonar) echoLevel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return false
	}
	now := s.clk.Now()
	return !now.Before(s.pulseStart) && now.Before(s.pulseEnd)
}
