package decision

import (
	"testing"

	"go.viam.com/test"

	"github.com/sonarbot/rover/components/base"
)

func TestDecide(t *testing.T) {
	th := DefaultThresholds()
	for _, tc := range []struct {
		name               string
		front, left, right float64
		expected           base.MotionCommand
		bothBlocked        bool
	}{
		{"clear ahead beats blocked sides", 45, 10, 10, base.Forward, false},
		{"blocked sides still turn away from the closer one", 10, 10, 30, base.TurnRight, false},
		{"both sides blocked", 10, 5, 15, base.TurnRight, true},
		{"both sides blocked and equal", 10, 5, 5, base.TurnLeft, true},
		{"left is open", 10, 50, 10, base.TurnLeft, false},
		{"right is open", 30, 25, 90, base.TurnRight, false},
		{"equal sides turn left", 30, 25, 25, base.TurnLeft, false},
		{"front exactly at threshold is not clear", 40, 100, 30, base.TurnLeft, false},
		{"side exactly at threshold is not blocked", 0, 20, 20, base.TurnLeft, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(tc.front, tc.left, tc.right, th)
			test.That(t, d.Command, test.ShouldEqual, tc.expected)
			test.That(t, d.BothSidesBlocked, test.ShouldEqual, tc.bothBlocked)
			test.That(t, Decide(tc.front, tc.left, tc.right, th), test.ShouldEqual, tc.expected)
		})
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	th := DefaultThresholds()
	first := Evaluate(12.5, 18, 19, th)
	for i := 0; i < 100; i++ {
		test.That(t, Evaluate(12.5, 18, 19, th), test.ShouldResemble, first)
	}
}

func TestCustomThresholds(t *testing.T) {
	th := Thresholds{FrontClearCm: 100, SideBlockedCm: 50}
	test.That(t, Decide(80, 40, 45, th), test.ShouldEqual, base.TurnRight)
	test.That(t, Evaluate(80, 40, 45, th).BothSidesBlocked, test.ShouldBeTrue)
	test.That(t, Decide(101, 0, 0, th), test.ShouldEqual, base.Forward)
}

func TestThresholdsValidate(t *testing.T) {
	th := DefaultThresholds()
	test.That(t, th.Validate("decision"), test.ShouldBeNil)
	th.SideBlockedCm = -1
	err := th.Validate("decision")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "side_blocked_cm")
}
