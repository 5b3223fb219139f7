package ultrasonic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/sonarbot/rover/components/board"
	"github.com/sonarbot/rover/components/board/fake"
	"github.com/sonarbot/rover/logging"
	"github.com/sonarbot/rover/testutils"
	"github.com/sonarbot/rover/testutils/inject"
)

// scriptedSonar answers the n-th ping with an echo of widths[n]. A negative width never echoes.
type scriptedSonar struct {
	mu      sync.Mutex
	clk     *testutils.SteppingClock
	widths  []time.Duration
	pings   int
	high    bool
	armed   bool
	start   time.Time
	end     time.Time
	trigger *inject.GPIOPin
	echo    *inject.GPIOPin
}

func newScriptedSonar(clk *testutils.SteppingClock, widths ...time.Duration) *scriptedSonar {
	s := &scriptedSonar{clk: clk, widths: widths}
	s.trigger = &inject.GPIOPin{}
	s.trigger.SetFunc = func(ctx context.Context, high bool) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		fell := s.high && !high
		s.high = high
		if !fell {
			return nil
		}
		width := time.Duration(-1)
		if s.pings < len(s.widths) {
			width = s.widths[s.pings]
		}
		s.pings++
		s.armed = width >= 0
		s.start = clk.Now().Add(50 * time.Microsecond)
		s.end = s.start.Add(width)
		return nil
	}
	s.echo = &inject.GPIOPin{}
	s.echo.GetFunc = func(ctx context.Context) (bool, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		now := clk.Now()
		return s.armed && !now.Before(s.start) && now.Before(s.end), nil
	}
	return s
}

func (s *scriptedSonar) board() *inject.Board {
	b := &inject.Board{}
	b.GPIOPinByNameFunc = func(name string) (board.GPIOPin, error) {
		switch name {
		case "trig":
			return s.trigger, nil
		case "echo":
			return s.echo, nil
		}
		return nil, errors.New("no such pin")
	}
	return b
}

func (s *scriptedSonar) pingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

func widthFor(distanceCm float64) time.Duration {
	return time.Duration(distanceCm * 2 / 100 / SpeedOfSound * float64(time.Second))
}

func TestAwaitEdge(t *testing.T) {
	ctx := context.Background()
	clk := testutils.NewSteppingClock(time.Unix(0, 0))

	t.Run("times out within the poll bound", func(t *testing.T) {
		reads := 0
		pin := &inject.GPIOPin{}
		pin.GetFunc = func(ctx context.Context) (bool, error) {
			reads++
			return false, nil
		}
		pt := NewPulseTimer(pin, clk, 50)
		start := clk.Now()
		edge, err := pt.AwaitEdge(ctx, true)
		test.That(t, errors.Is(err, ErrTimedOut), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "rising edge after 50 polls")
		test.That(t, reads, test.ShouldEqual, 50)
		test.That(t, edge.Polls, test.ShouldBeLessThanOrEqualTo, 50)
		test.That(t, clk.Since(start), test.ShouldEqual, 50*PollInterval)
	})

	t.Run("returns the time of the first read at the level", func(t *testing.T) {
		reads := 0
		pin := &inject.GPIOPin{}
		pin.GetFunc = func(ctx context.Context) (bool, error) {
			reads++
			return reads >= 4, nil
		}
		pt := NewPulseTimer(pin, clk, 50)
		start := clk.Now()
		edge, err := pt.AwaitEdge(ctx, true)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, edge.Polls, test.ShouldEqual, 4)
		test.That(t, edge.Time, test.ShouldEqual, start.Add(3*PollInterval))
	})

	t.Run("already at level", func(t *testing.T) {
		pin := &inject.GPIOPin{}
		pin.GetFunc = func(ctx context.Context) (bool, error) { return false, nil }
		edge, err := NewPulseTimer(pin, clk, 50).AwaitEdge(ctx, false)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, edge.Polls, test.ShouldEqual, 1)
	})

	t.Run("read failure is not a timeout", func(t *testing.T) {
		pin := &inject.GPIOPin{}
		pin.GetFunc = func(ctx context.Context) (bool, error) { return false, errors.New("gpio gone") }
		_, err := NewPulseTimer(pin, clk, 50).AwaitEdge(ctx, true)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, ErrTimedOut), test.ShouldBeFalse)
	})

	t.Run("default bound", func(t *testing.T) {
		test.That(t, NewPulseTimer(&inject.GPIOPin{}, clk, 0).MaxPolls(), test.ShouldEqual, DefaultMaxPolls)
	})
}

func TestZeroWidthEcho(t *testing.T) {
	clk := testutils.NewSteppingClock(time.Unix(0, 0))
	sonar := newScriptedSonar(clk, 0)
	ctx := context.Background()
	test.That(t, sonar.trigger.Set(ctx, true), test.ShouldBeNil)
	test.That(t, sonar.trigger.Set(ctx, false), test.ShouldBeNil)
	width, err := NewPulseTimer(sonar.echo, clk, 1000).Width(ctx)
	// A zero width pulse is never seen high, so the rising edge times out.
	test.That(t, errors.Is(err, ErrTimedOut), test.ShouldBeTrue)
	test.That(t, width, test.ShouldEqual, time.Duration(0))
}

func TestDistanceFromWidth(t *testing.T) {
	test.That(t, DistanceFromWidth(0), test.ShouldEqual, 0.0)
	test.That(t, DistanceFromWidth(time.Millisecond), test.ShouldAlmostEqual, 17.131)
	test.That(t, DistanceFromWidth(widthFor(40)), test.ShouldAlmostEqual, 40, 0.001)
}

func TestMedian(t *testing.T) {
	permutations := func(a, b, c float64) [][]float64 {
		return [][]float64{{a, b, c}, {a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a}}
	}
	for _, tc := range []struct {
		name     string
		values   [3]float64
		expected float64
	}{
		{"distinct", [3]float64{12.5, 80, 33}, 33},
		{"two equal low", [3]float64{5, 5, 90}, 5},
		{"two equal high", [3]float64{5, 90, 90}, 90},
		{"all equal", [3]float64{7, 7, 7}, 7},
	} {
		t.Run(tc.name, func(t *testing.T) {
			for _, samples := range permutations(tc.values[0], tc.values[1], tc.values[2]) {
				median, err := Median(samples)
				test.That(t, err, test.ShouldBeNil)
				test.That(t, median, test.ShouldEqual, tc.expected)
			}
		})
	}

	_, err := Median([]float64{1, 2})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Median(nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMeasure(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	conf := Config{TriggerPin: "trig", EchoPin: "echo"}

	t.Run("median of three samples", func(t *testing.T) {
		clk := testutils.NewSteppingClock(time.Unix(0, 0))
		sonar := newScriptedSonar(clk, widthFor(80), widthFor(20), widthFor(35))
		s, err := NewSensor(ctx, sonar.board(), conf, clk, logger)
		test.That(t, err, test.ShouldBeNil)

		distance, err := s.Measure(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, distance, test.ShouldAlmostEqual, 35, 0.05)
		test.That(t, sonar.pingCount(), test.ShouldEqual, 3)
		// Pauses separate samples; none follows the last one.
		test.That(t, clk.SleepCount(DefaultSamplePause), test.ShouldEqual, 2)
		test.That(t, clk.SleepCount(triggerSettle), test.ShouldEqual, 3)
		test.That(t, clk.SleepCount(triggerWidth), test.ShouldEqual, 3)
	})

	t.Run("one missed echo fails the reading", func(t *testing.T) {
		clk := testutils.NewSteppingClock(time.Unix(0, 0))
		// the first echo, about 4670µs wide, fits well inside the poll bound
		sonar := newScriptedSonar(clk, widthFor(80), -1, widthFor(35))
		s, err := NewSensor(ctx, sonar.board(), Config{TriggerPin: "trig", EchoPin: "echo", MaxTry: 6000}, clk, logger)
		test.That(t, err, test.ShouldBeNil)

		_, err = s.Measure(ctx)
		test.That(t, errors.Is(err, ErrTimedOut), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "sample 2 of 3")
		test.That(t, err.Error(), test.ShouldContainSubstring, "awaiting echo start")
		test.That(t, sonar.pingCount(), test.ShouldEqual, 2)
	})

	t.Run("echo that never ends", func(t *testing.T) {
		clk := testutils.NewSteppingClock(time.Unix(0, 0))
		sonar := newScriptedSonar(clk, time.Hour)
		s, err := NewSensor(ctx, sonar.board(), Config{TriggerPin: "trig", EchoPin: "echo", MaxTry: 500}, clk, logger)
		test.That(t, err, test.ShouldBeNil)

		_, err = s.MeasureOnce(ctx)
		test.That(t, errors.Is(err, ErrTimedOut), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "awaiting echo end")
	})

	t.Run("custom sample pause", func(t *testing.T) {
		clk := testutils.NewSteppingClock(time.Unix(0, 0))
		sonar := newScriptedSonar(clk, widthFor(10), widthFor(10), widthFor(10))
		s, err := NewSensor(ctx, sonar.board(), Config{TriggerPin: "trig", EchoPin: "echo", SamplePauseMs: 15}, clk, logger)
		test.That(t, err, test.ShouldBeNil)
		_, err = s.Measure(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, clk.SleepCount(15*time.Millisecond), test.ShouldEqual, 2)
	})

	t.Run("missing pins", func(t *testing.T) {
		clk := testutils.NewSteppingClock(time.Unix(0, 0))
		sonar := newScriptedSonar(clk)
		_, err := NewSensor(ctx, sonar.board(), Config{TriggerPin: "nope", EchoPin: "echo"}, clk, logger)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "nope")
	})
}

func TestMeasureWithFakeBoard(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	clk := testutils.NewSteppingClock(time.Unix(0, 0))
	b, err := fake.NewBoard(fake.Config{Sonar: &fake.SonarConfig{
		TriggerPin:        "trig",
		EchoPin:           "echo",
		EchoDelayUs:       500,
		DefaultDistanceCm: 42,
	}}, clk, logger)
	test.That(t, err, test.ShouldBeNil)

	s, err := NewSensor(ctx, b, Config{TriggerPin: "trig", EchoPin: "echo"}, clk, logger)
	test.That(t, err, test.ShouldBeNil)
	distance, err := s.Measure(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, distance, test.ShouldAlmostEqual, 42, 0.05)
	test.That(t, b.Sonar.Pings(), test.ShouldEqual, 3)
}

func TestConfigValidate(t *testing.T) {
	conf := Config{}
	err := conf.Validate("ultrasonic")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "trigger_pin")

	conf = Config{TriggerPin: "trig"}
	err = conf.Validate("ultrasonic")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "echo_pin")

	conf = Config{TriggerPin: "trig", EchoPin: "echo", MaxTry: -1}
	test.That(t, conf.Validate("ultrasonic"), test.ShouldNotBeNil)

	conf = Config{TriggerPin: "trig", EchoPin: "echo"}
	test.That(t, conf.Validate("ultrasonic"), test.ShouldBeNil)
}
