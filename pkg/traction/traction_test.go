package traction

import (
	"context"
	"io"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	fx "github.com/evt-autonomy/vehicle.go/pkg/framework"
	"github.com/evt-autonomy/vehicle.go/pkg/l0/vesc"
)

func TestThrottleToRPM(t *testing.T) {
	c := *NewConfig()
	testCases := []struct {
		name string
		ch   float32
		rpm  float32
	}{
		{"neutral", 990, 0},
		{"dead band top", 1070, 0},
		{"dead band bottom", 910, 0},
		{"forward", 1345, 3273.81},
		{"forward full", 1700, 7500},
		{"forward saturates", 1811, 7500},
		{"reverse full", 350, -7500},
		{"reverse saturates", 172, -7500},
		{"reverse half", 630, -3750},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.rpm, ThrottleToRPM(tc.ch, c), 0.01)
		})
	}
	assert.Equal(t, float32(3274), float32(math.Round(float64(ThrottleToRPM(1345, c)))))

	prev := ThrottleToRPM(172, c)
	for ch := float32(173); ch <= 1811; ch++ {
		v := ThrottleToRPM(ch, c)
		require.True(t, v >= prev, "not monotone at %v", ch)
		prev = v
	}
}

func TestPercentToRPM(t *testing.T) {
	c := *NewConfig()
	assert.Equal(t, float32(3750), PercentToRPM(50, c))
	assert.Equal(t, float32(-7500), PercentToRPM(-150, c))
	assert.Equal(t, float32(0), PercentToRPM(0, c))
}

func TestSmoother(t *testing.T) {
	s := NewSmoother(DefaultWindow)
	assert.Equal(t, float32(1000), s.Add(1000))
	assert.Equal(t, float32(1100), s.Add(1200))
	for i := 0; i < 3; i++ {
		s.Add(1200)
	}
	// window is full of the last five samples, the first has wrapped out
	assert.Equal(t, float32(1200), s.Add(1200))
	assert.Equal(t, float32(1160), s.Add(1000))
	s.Reset()
	assert.Equal(t, float32(990), s.Add(990))
}

type fakePort struct {
	rx chan []byte
	tx chan []byte
}

func newFakePort() *fakePort {
	return &fakePort{rx: make(chan []byte, 16), tx: make(chan []byte, 64)}
}

func (p *fakePort) Read(b []byte) (int, error) {
	data, ok := <-p.rx
	if !ok {
		return 0, io.EOF
	}
	return copy(b, data), nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.tx <- append([]byte(nil), b...)
	return len(b), nil
}

func (p *fakePort) payloads(t *testing.T) [][]byte {
	var res [][]byte
	for len(p.tx) > 0 {
		payload, err := vesc.Decode(<-p.tx)
		require.NoError(t, err)
		res = append(res, payload)
	}
	return res
}

func (p *fakePort) reply(t *testing.T, v vesc.Values) {
	f, err := vesc.Encode(vesc.EncodeValues(v))
	require.NoError(t, err)
	p.rx <- f
}

type tractionTestEnv struct {
	mock   *clock.Mock
	ports  []*fakePort
	driver *Driver
	loop   *fx.Loop
}

func newTractionTestEnv(t *testing.T, conf Config, forwardIDs ...int) *tractionTestEnv {
	env := &tractionTestEnv{mock: clock.NewMock()}
	var sessions []*Session
	for i, id := range forwardIDs {
		port := newFakePort()
		env.ports = append(env.ports, port)
		sessions = append(sessions, NewSession(string(rune('a'+i)), port, id, env.mock))
	}
	env.driver = NewDriver(conf, sessions...)
	env.driver.Clock = env.mock
	env.loop = fx.NewLoopWithClock(env.mock)
	env.loop.AddController(fx.PrLvActuate, env.driver)
	ctx, cancel := context.WithCancel(context.Background())
	for _, s := range sessions {
		go s.Run(ctx)
	}
	t.Cleanup(func() {
		cancel()
		for _, p := range env.ports {
			close(p.rx)
		}
	})
	return env
}

func TestDriverCommandsBothSessions(t *testing.T) {
	conf := *NewConfig()
	conf.Smoothing = false
	env := newTractionTestEnv(t, conf, NoForward, 3)

	assert.InDelta(t, 3273.81, env.driver.SetThrottleChannel(1345), 0.01)
	env.mock.Add(time.Second)
	env.loop.Step(context.Background())

	assert.Equal(t, [][]byte{
		{8, 0, 0, 0x0c, 0xca},
		{4},
	}, env.ports[0].payloads(t))
	assert.Equal(t, [][]byte{
		{33, 3, 8, 0, 0, 0x0c, 0xca},
		{33, 3, 4},
	}, env.ports[1].payloads(t))

	// values are requested again only after the interval
	env.driver.SetThrottleChannel(990)
	env.mock.Add(10 * time.Millisecond)
	env.loop.Step(context.Background())
	assert.Equal(t, [][]byte{{8, 0, 0, 0, 0}}, env.ports[0].payloads(t))
	env.mock.Add(conf.ValuesInterval)
	env.loop.Step(context.Background())
	assert.Len(t, env.ports[0].payloads(t), 2)
}

func TestDriverSmoothsAndStops(t *testing.T) {
	env := newTractionTestEnv(t, *NewConfig(), NoForward)
	env.driver.SetThrottleChannel(990)
	// (990+1700)/2 is still below full scale
	assert.InDelta(t, ThrottleToRPM(1345, env.driver.Config), env.driver.SetThrottleChannel(1700), 0.01)
	env.driver.Stop()
	assert.Equal(t, float32(0), env.driver.Command())
	assert.Equal(t, float32(7500), env.driver.SetThrottleChannel(1700))
	assert.Equal(t, float32(-3750), env.driver.SetThrottlePercent(-50))
}

func TestDriverFaultAndSummary(t *testing.T) {
	env := newTractionTestEnv(t, *NewConfig(), NoForward, NoForward)
	now := env.mock.Now()
	sum := env.driver.Summary(now)
	assert.True(t, math.IsNaN(float64(sum.RPM)))
	assert.True(t, math.IsNaN(float64(sum.InputCurrent)))

	env.ports[0].reply(t, vesc.Values{RPM: 1000, InputVoltage: 48, AvgInputCurrent: 2.5})
	env.ports[1].reply(t, vesc.Values{RPM: 990, InputVoltage: 47.5, AvgInputCurrent: 1.5, Fault: vesc.FaultUnderVoltage})
	require.Eventually(t, func() bool {
		return env.driver.Fault() != nil && !math.IsNaN(float64(env.driver.Summary(now).InputCurrent))
	}, time.Second, time.Millisecond)

	errs := multierr.Errors(env.driver.Fault())
	require.Len(t, errs, 1)
	fault, ok := errs[0].(*FaultError)
	require.True(t, ok)
	assert.Equal(t, "b", fault.Session)
	assert.Equal(t, vesc.FaultUnderVoltage, fault.Code)

	require.Eventually(t, func() bool {
		_, at0 := env.driver.Sessions()[0].Values()
		_, at1 := env.driver.Sessions()[1].Values()
		return !at0.IsZero() && !at1.IsZero()
	}, time.Second, time.Millisecond)
	sum = env.driver.Summary(now)
	assert.Equal(t, float32(1000), sum.RPM)
	assert.InDelta(t, 48, sum.InputVoltage, 1e-4)
	assert.InDelta(t, 4, sum.InputCurrent, 1e-4)

	assert.True(t, math.IsNaN(float64(env.driver.Summary(now.Add(time.Second)).RPM)))

	require.NoError(t, env.driver.ClearFaults(context.Background()))
	assert.NoError(t, env.driver.Fault())
}

func TestDriverSetup(t *testing.T) {
	env := newTractionTestEnv(t, *NewConfig(), NoForward)
	done := make(chan error, 1)
	go func() { done <- env.driver.Setup(context.Background()) }()
	select {
	case <-env.ports[0].tx:
	case <-time.After(time.Second):
		t.Fatal("no request")
	}
	env.ports[0].reply(t, vesc.Values{RPM: 0})
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("setup did not return")
	}
}
