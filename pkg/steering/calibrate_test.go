//go:build !sweep

package steering

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evt-autonomy/vehicle.go/pkg/l0/odrive"
)

func TestCalibrateFixedStops(t *testing.T) {
	axis := newFakeAxis()
	// outside the stops, the midpoint is used
	axis.pos = 5
	d, mock := newTestDriver(axis)
	require.NoError(t, d.Setup(context.Background()))
	start := mock.Now()
	require.NoError(t, d.Calibrate(context.Background()))

	assert.Equal(t, []odrive.AxisState{
		odrive.AxisStateMotorCalibration,
		odrive.AxisStateEncoderOffsetCalibration,
		odrive.AxisStateClosedLoopControl,
	}, axis.requested)
	assert.Equal(t, 2, axis.cleared)
	assert.True(t, axis.configured)
	assert.Equal(t, NewConfig().Limits, axis.limits)
	assert.Equal(t, odrive.InputModePassthrough, axis.inputMode)
	assert.True(t, mock.Now().Sub(start) >= 8*time.Second)

	s := d.Session()
	assert.Equal(t, Ready, s.State)
	assert.True(t, s.InputModeSet)
	assert.InDelta(t, -0.665, s.Zero, 1e-6)
	assert.Equal(t, float32(-2.33), s.Min)
	assert.Equal(t, float32(1.00), s.Max)
}

func TestCalibrateKeepsCenterWithinStops(t *testing.T) {
	axis := newFakeAxis()
	axis.pos = -0.4
	d, _ := newTestDriver(axis)
	require.NoError(t, d.Setup(context.Background()))
	require.NoError(t, d.Calibrate(context.Background()))
	assert.Equal(t, float32(-0.4), d.Session().Zero)
}

func TestSteeringMapLeft(t *testing.T) {
	axis := newFakeAxis()
	axis.pos = 5
	d, loop := calibratedDriver(t, axis)
	require.NoError(t, d.SetTarget(410))
	loop.Step(context.Background())
	assert.InDelta(t, 1.00, axis.lastTarget(), 1e-6)
	assert.True(t, axis.lastTarget() <= 1.00)
}

func TestCalibrateClosedLoopRetry(t *testing.T) {
	axis := newFakeAxis()
	axis.closedLoopAfter = 3
	d, _ := newTestDriver(axis)
	require.NoError(t, d.Setup(context.Background()))
	require.NoError(t, d.Calibrate(context.Background()))
	// two phase clears and two retry clears
	assert.Equal(t, 4, axis.cleared)

	axis = newFakeAxis()
	axis.closedLoopAfter = 0
	d, mock := newTestDriver(axis)
	require.NoError(t, d.Setup(context.Background()))
	start := mock.Now()
	err := d.Calibrate(context.Background())
	assert.Equal(t, ErrTimeout, errors.Cause(err))
	assert.Equal(t, Faulted, d.State())
	assert.True(t, mock.Now().Sub(start) >= 13*time.Second)
}
