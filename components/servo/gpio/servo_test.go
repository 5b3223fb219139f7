package gpio

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/sonarbot/rover/logging"
	"github.com/sonarbot/rover/testutils"
	"github.com/sonarbot/rover/testutils/inject"
)

func TestDutyConversion(t *testing.T) {
	test.That(t, DutyMs(-90), test.ShouldAlmostEqual, 0.5)
	test.That(t, DutyMs(0), test.ShouldAlmostEqual, 1.45)
	test.That(t, DutyMs(90), test.ShouldAlmostEqual, 2.4)

	test.That(t, DutyRatio(0, 50), test.ShouldAlmostEqual, 1.45/20)
	test.That(t, DutyU16(0, 50), test.ShouldEqual, uint16(4751))
	test.That(t, DutyU16(90, 50), test.ShouldBeLessThan, uint16(math.MaxUint16))

	t.Run("monotonic and injective over integer degrees", func(t *testing.T) {
		seen := map[uint16]int{}
		prev := -1
		for deg := MinDeg; deg <= MaxDeg; deg++ {
			duty := DutyU16(deg, DefaultFrequencyHz)
			test.That(t, int(duty), test.ShouldBeGreaterThan, prev)
			_, dup := seen[duty]
			test.That(t, dup, test.ShouldBeFalse)
			seen[duty] = deg
			prev = int(duty)
		}
		test.That(t, seen, test.ShouldHaveLength, MaxDeg-MinDeg+1)
	})

	t.Run("inverse", func(t *testing.T) {
		for _, freq := range []uint{50, 60, 100} {
			for deg := MinDeg; deg <= MaxDeg; deg++ {
				test.That(t, AngleForDutyRatio(DutyRatio(deg, freq), freq), test.ShouldEqual, deg)
			}
		}
		test.That(t, AngleForDutyRatio(0, 50), test.ShouldEqual, MinDeg)
		test.That(t, AngleForDutyRatio(1, 50), test.ShouldEqual, MaxDeg)
	})
}

func TestConfigValidate(t *testing.T) {
	conf := Config{}
	err := conf.Validate("servo")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "pin")

	conf = Config{Pin: "12", FrequencyHz: 500}
	err = conf.Validate("servo")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "450")

	conf = Config{Pin: "12", SettleMs: -1}
	test.That(t, conf.Validate("servo"), test.ShouldNotBeNil)

	conf = Config{Pin: "12", FrequencyHz: 50, SettleMs: 300}
	test.That(t, conf.Validate("servo"), test.ShouldBeNil)
}

func TestSetAngle(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	clk := testutils.NewSteppingClock(time.Unix(0, 0))

	var freq uint
	var duties []float64
	pin := &inject.GPIOPin{}
	pin.SetPWMFreqFunc = func(ctx context.Context, freqHz uint) error {
		freq = freqHz
		return nil
	}
	pin.SetPWMFunc = func(ctx context.Context, dutyCyclePct float64) error {
		duties = append(duties, dutyCyclePct)
		return nil
	}

	servo, err := NewServo(ctx, pin, Config{Pin: "12"}, clk, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, freq, test.ShouldEqual, DefaultFrequencyHz)
	_, moved := servo.Position()
	test.That(t, moved, test.ShouldBeFalse)

	start := clk.Now()
	test.That(t, servo.SetAngle(ctx, 60), test.ShouldBeNil)
	test.That(t, clk.Since(start), test.ShouldEqual, DefaultSettle)
	test.That(t, duties, test.ShouldResemble, []float64{DutyRatio(60, 50)})
	pos, moved := servo.Position()
	test.That(t, moved, test.ShouldBeTrue)
	test.That(t, pos, test.ShouldEqual, 60)

	t.Run("out of range angles never reach the pin", func(t *testing.T) {
		for _, deg := range []int{-91, 91, 180} {
			err := servo.SetAngle(ctx, deg)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, "out of range")
		}
		test.That(t, duties, test.ShouldHaveLength, 1)
		pos, _ := servo.Position()
		test.That(t, pos, test.ShouldEqual, 60)
	})

	t.Run("pin failure", func(t *testing.T) {
		pin.SetPWMFunc = func(ctx context.Context, dutyCyclePct float64) error {
			return errors.New("pwm unavailable")
		}
		err := servo.SetAngle(ctx, 0)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "pwm unavailable")
		pos, _ := servo.Position()
		test.That(t, pos, test.ShouldEqual, 60)
	})
}

func TestCustomTiming(t *testing.T) {
	logger := logging.NewTestLogger(t)
	clk := testutils.NewSteppingClock(time.Unix(0, 0))
	pin := &inject.GPIOPin{}
	var freq uint
	pin.SetPWMFreqFunc = func(ctx context.Context, freqHz uint) error {
		freq = freqHz
		return nil
	}
	pin.SetPWMFunc = func(ctx context.Context, dutyCyclePct float64) error { return nil }

	servo, err := NewServo(context.Background(), pin, Config{Pin: "12", FrequencyHz: 60, SettleMs: 250}, clk, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, freq, test.ShouldEqual, uint(60))
	test.That(t, servo.SetAngle(context.Background(), -60), test.ShouldBeNil)
	test.That(t, clk.SleepCount(250*time.Millisecond), test.ShouldEqual, 1)

	pin.SetPWMFreqFunc = func(ctx context.Context, freqHz uint) error { return errors.New("no pwm") }
	_, err = NewServo(context.Background(), pin, Config{Pin: "12"}, clk, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
