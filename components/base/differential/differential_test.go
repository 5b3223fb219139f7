package differential

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/sonarbot/rover/components/base"
	"github.com/sonarbot/rover/components/board"
	"github.com/sonarbot/rover/components/board/fake"
	"github.com/sonarbot/rover/components/motor/gpio"
	"github.com/sonarbot/rover/logging"
	"github.com/sonarbot/rover/testutils"
	"github.com/sonarbot/rover/testutils/inject"
)

var testConfig = Config{
	Left:  gpio.PinConfig{In1: "11", In2: "13"},
	Right: gpio.PinConfig{In1: "15", In2: "16"},
}

func newFakeBase(t *testing.T) (*Base, *fake.Board) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	b, err := fake.NewBoard(fake.Config{}, testutils.NewSteppingClock(time.Unix(0, 0)), logger)
	test.That(t, err, test.ShouldBeNil)
	diff, err := NewBase(context.Background(), b, testConfig, logger)
	test.That(t, err, test.ShouldBeNil)
	return diff, b
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	diff, b := newFakeBase(t)

	left, right := diff.WheelStates()
	test.That(t, left, test.ShouldEqual, gpio.Idle)
	test.That(t, right, test.ShouldEqual, gpio.Idle)

	for _, tc := range []struct {
		cmd   base.MotionCommand
		left  gpio.WheelState
		right gpio.WheelState
	}{
		{base.Forward, gpio.ForwardRotation, gpio.ForwardRotation},
		{base.Backward, gpio.ReverseRotation, gpio.ReverseRotation},
		{base.TurnRight, gpio.ForwardRotation, gpio.ReverseRotation},
		{base.TurnLeft, gpio.ReverseRotation, gpio.ForwardRotation},
		{base.Stop, gpio.Brake, gpio.Brake},
		{base.Idle, gpio.Idle, gpio.Idle},
	} {
		t.Run(tc.cmd.String(), func(t *testing.T) {
			test.That(t, diff.Execute(ctx, tc.cmd), test.ShouldBeNil)
			left, right := diff.WheelStates()
			test.That(t, left, test.ShouldEqual, tc.left)
			test.That(t, right, test.ShouldEqual, tc.right)
			test.That(t, diff.LastCommand(), test.ShouldEqual, tc.cmd)
		})
	}

	test.That(t, diff.Execute(ctx, base.TurnRight), test.ShouldBeNil)
	for _, pin := range []struct {
		name string
		high bool
	}{{"11", true}, {"13", false}, {"15", false}, {"16", true}} {
		high, err := b.Pin(pin.name).Get(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, high, test.ShouldEqual, pin.high)
	}

	err := diff.Execute(ctx, base.MotionCommand(42))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, diff.LastCommand(), test.ShouldEqual, base.TurnRight)
}

func TestStopAttemptsBothWheels(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	var rightWrites int
	pins := map[string]*inject.GPIOPin{}
	for _, name := range []string{"11", "13", "15", "16"} {
		pin := &inject.GPIOPin{}
		pin.SetFunc = func(ctx context.Context, high bool) error { return nil }
		pins[name] = pin
	}
	pins["15"].SetFunc = func(ctx context.Context, high bool) error {
		rightWrites++
		return nil
	}
	b := &inject.Board{}
	b.GPIOPinByNameFunc = func(name string) (board.GPIOPin, error) {
		return pins[name], nil
	}
	diff, err := NewBase(ctx, b, testConfig, logger)
	test.That(t, err, test.ShouldBeNil)
	rightWrites = 0

	pins["11"].SetFunc = func(ctx context.Context, high bool) error { return errors.New("left in1 dead") }
	err = diff.Stop(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "left in1 dead")
	test.That(t, rightWrites, test.ShouldEqual, 1)
	_, right := diff.WheelStates()
	test.That(t, right, test.ShouldEqual, gpio.Brake)
}

func TestFailedCommandBrakes(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	var failForward bool
	var in1Levels []bool
	pins := map[string]*inject.GPIOPin{}
	for _, name := range []string{"11", "13", "15", "16"} {
		pin := &inject.GPIOPin{}
		pin.SetFunc = func(ctx context.Context, high bool) error { return nil }
		pins[name] = pin
	}
	pins["16"].SetFunc = func(ctx context.Context, high bool) error {
		if failForward {
			failForward = false
			return errors.New("glitch")
		}
		return nil
	}
	pins["11"].SetFunc = func(ctx context.Context, high bool) error {
		in1Levels = append(in1Levels, high)
		return nil
	}
	b := &inject.Board{}
	b.GPIOPinByNameFunc = func(name string) (board.GPIOPin, error) {
		return pins[name], nil
	}
	diff, err := NewBase(ctx, b, testConfig, logger)
	test.That(t, err, test.ShouldBeNil)

	failForward = true
	err = diff.Execute(ctx, base.TurnLeft)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "executing turn_left")
	left, right := diff.WheelStates()
	test.That(t, left, test.ShouldEqual, gpio.Brake)
	test.That(t, right, test.ShouldEqual, gpio.Brake)
	// idle at construction, reverse for the turn, then the brake
	test.That(t, in1Levels, test.ShouldResemble, []bool{false, false, true})
}

type countingStopper struct {
	stops   int
	ctxErrs []error
	err     error
}

func (s *countingStopper) Stop(ctx context.Context) error {
	s.stops++
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	return s.err
}

func TestStopGuard(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("stops once", func(t *testing.T) {
		stopper := &countingStopper{}
		guard := NewStopGuard(stopper, logger)
		test.That(t, guard.Release(context.Background()), test.ShouldBeNil)
		test.That(t, guard.Release(context.Background()), test.ShouldBeNil)
		test.That(t, stopper.stops, test.ShouldEqual, 1)
	})

	t.Run("stops on a cancelled context", func(t *testing.T) {
		stopper := &countingStopper{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		test.That(t, NewStopGuard(stopper, logger).Release(ctx), test.ShouldBeNil)
		test.That(t, stopper.stops, test.ShouldEqual, 1)
		test.That(t, stopper.ctxErrs, test.ShouldResemble, []error{nil})
	})

	t.Run("keeps the stop error", func(t *testing.T) {
		stopper := &countingStopper{err: errors.New("bridge off")}
		guard := NewStopGuard(stopper, logger)
		test.That(t, guard.Release(context.Background()), test.ShouldEqual, stopper.err)
		test.That(t, guard.Release(context.Background()), test.ShouldEqual, stopper.err)
		test.That(t, stopper.stops, test.ShouldEqual, 1)
	})

	t.Run("deferred release after a failure", func(t *testing.T) {
		diff, _ := newFakeBase(t)
		ctx := context.Background()
		cycle := func() (err error) {
			guard := diff.Guard()
			defer func() {
				err = errors.Join(err, guard.Release(ctx))
			}()
			if err := diff.Execute(ctx, base.Forward); err != nil {
				return err
			}
			return errors.New("sensor fault")
		}
		err := cycle()
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "sensor fault")
		test.That(t, diff.LastCommand(), test.ShouldEqual, base.Stop)
		left, right := diff.WheelStates()
		test.That(t, left, test.ShouldEqual, gpio.Brake)
		test.That(t, right, test.ShouldEqual, gpio.Brake)
	})
}

func TestConfigValidate(t *testing.T) {
	conf := Config{Left: gpio.PinConfig{In1: "11", In2: "13"}}
	err := conf.Validate("drive")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "drive.right")
	test.That(t, testConfig.Validate("drive"), test.ShouldBeNil)
}
