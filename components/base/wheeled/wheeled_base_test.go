package wheeled

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/ecse211/gridbot/components/base"
	"github.com/ecse211/gridbot/components/motor"
	fakemotor "github.com/ecse211/gridbot/components/motor/fake"
	"github.com/ecse211/gridbot/config"
	"github.com/ecse211/gridbot/logging"
	"github.com/ecse211/gridbot/utils"
)

func newTestBase(t *testing.T, rightMult float64) (WheeledBase, *fakemotor.Motor, *fakemotor.Motor) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	left := fakemotor.NewMotor("left", logger)
	right := fakemotor.NewMotor("right", logger)
	wb, err := New(left, right, config.Default().Geometry, rightMult, logger)
	test.That(t, err, test.ShouldBeNil)
	return wb, left, right
}

func TestNewValidation(t *testing.T) {
	logger := logging.NewTestLogger(t)
	geometry := config.Default().Geometry
	_, err := New(nil, fakemotor.NewMotor("right", logger), geometry, 1, logger)
	test.That(t, err, test.ShouldNotBeNil)

	geometry.WheelBaseCM = 0
	_, err = New(fakemotor.NewMotor("left", logger), fakemotor.NewMotor("right", logger), geometry, 1, logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestRotateImmediate(t *testing.T) {
	ctx := context.Background()
	wb, left, right := newTestBase(t, 0)
	geometry := config.Default().Geometry

	test.That(t, wb.SetWheelSpeed(ctx, base.Both, 100), test.ShouldBeNil)
	test.That(t, wb.Rotate(ctx, 90, true), test.ShouldBeNil)
	moving, err := wb.IsMoving(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, moving, test.ShouldBeTrue)

	for i := 0; i < 100; i++ {
		left.Advance(100 * time.Millisecond)
		right.Advance(100 * time.Millisecond)
	}
	l, r, err := wb.WheelPositions(ctx)
	test.That(t, err, test.ShouldBeNil)
	want := SpinWheelDegrees(90, geometry.WheelRadiusCM, geometry.WheelBaseCM)
	// Counter-clockwise turns run the right wheel forward.
	test.That(t, r, test.ShouldAlmostEqual, want, 1e-9)
	test.That(t, l, test.ShouldAlmostEqual, -want, 1e-9)

	moving, _ = wb.IsMoving(ctx)
	test.That(t, moving, test.ShouldBeFalse)
}

func TestMoveBlocking(t *testing.T) {
	ctx := context.Background()
	wb, left, right := newTestBase(t, 0)
	test.That(t, wb.SetWheelSpeed(ctx, base.Both, 175), test.ShouldBeNil)

	stepper := utils.NewStoppableWorkers(func(ctx context.Context) {
		for ctx.Err() == nil {
			left.Advance(10 * time.Millisecond)
			right.Advance(10 * time.Millisecond)
			time.Sleep(time.Millisecond)
		}
	})
	defer stepper.Stop()

	test.That(t, wb.MoveBackward(ctx, 10, false), test.ShouldBeNil)
	l, r, err := wb.WheelPositions(ctx)
	test.That(t, err, test.ShouldBeNil)
	want := DistanceToWheelDegrees(10, config.DefaultWheelRadiusCM)
	test.That(t, l, test.ShouldAlmostEqual, -want, 1e-9)
	test.That(t, r, test.ShouldAlmostEqual, -want, 1e-9)

	test.That(t, wb.MoveForward(ctx, 10, false), test.ShouldBeNil)
	l, r, _ = wb.WheelPositions(ctx)
	test.That(t, l, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, r, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestMoveCancelled(t *testing.T) {
	wb, _, _ := newTestBase(t, 0)
	test.That(t, wb.SetWheelSpeed(context.Background(), base.Both, 175), test.ShouldBeNil)

	// Nothing advances the motors, so only the context ends the wait.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := wb.MoveForward(ctx, 10, false)
	test.That(t, err, test.ShouldNotBeNil)
	moving, _ := wb.IsMoving(context.Background())
	test.That(t, moving, test.ShouldBeFalse)
}

func TestDriveAndStopSides(t *testing.T) {
	ctx := context.Background()
	wb, left, right := newTestBase(t, 1.5)
	test.That(t, wb.SetWheelSpeed(ctx, base.Both, 100), test.ShouldBeNil)
	test.That(t, left.Speed(), test.ShouldEqual, 100.0)
	test.That(t, right.Speed(), test.ShouldEqual, 150.0)
	test.That(t, wb.SetWheelSpeed(ctx, base.Left, -1), test.ShouldNotBeNil)

	test.That(t, wb.Drive(ctx, base.Both, motor.Forward), test.ShouldBeNil)
	test.That(t, wb.Stop(ctx, base.Left), test.ShouldBeNil)
	lm, _ := left.IsMoving(ctx)
	rm, _ := right.IsMoving(ctx)
	test.That(t, lm, test.ShouldBeFalse)
	test.That(t, rm, test.ShouldBeTrue)

	right.Advance(time.Second)
	_, r, _ := wb.WheelPositions(ctx)
	test.That(t, r, test.ShouldAlmostEqual, 150, 1e-9)

	test.That(t, wb.Stop(ctx, base.Both), test.ShouldBeNil)
	moving, _ := wb.IsMoving(ctx)
	test.That(t, moving, test.ShouldBeFalse)
}
