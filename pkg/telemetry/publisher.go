package telemetry

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/golang/glog"

	fx "github.com/evt-autonomy/vehicle.go/pkg/framework"
	"github.com/evt-autonomy/vehicle.go/pkg/steering"
	"github.com/evt-autonomy/vehicle.go/pkg/supervisor"
	"github.com/evt-autonomy/vehicle.go/pkg/traction"
)

// DefaultInterval is the publishing period.
const DefaultInterval = 100 * time.Millisecond

// ModeSource provides the operating mode.
type ModeSource interface {
	Mode() supervisor.Mode
}

// SteeringSource provides steering feedback.
type SteeringSource interface {
	Feedback(now time.Time) (steering.Feedback, bool)
}

// TractionSource provides the traction summary.
type TractionSource interface {
	Summary(now time.Time) traction.Summary
}

// Sink receives records. Publish is called on the loop goroutine and
// must not block, wrap slow sinks with NewAsync.
type Sink interface {
	Publish(ctx context.Context, rec Record) error
}

type sinkState struct {
	name    string
	sink    Sink
	failing bool
}

// Publisher samples the status at a fixed period.
type Publisher struct {
	Interval time.Duration
	Mode     ModeSource
	Steering SteeringSource
	Traction TractionSource

	lock  sync.Mutex
	sinks []*sinkState
	last  time.Time
	seq   uint64
}

// NewPublisher creates a Publisher.
func NewPublisher(mode ModeSource, steer SteeringSource, trac TractionSource) *Publisher {
	return &Publisher{
		Interval: DefaultInterval,
		Mode:     mode,
		Steering: steer,
		Traction: trac,
	}
}

// AddSink adds a named sink.
func (p *Publisher) AddSink(name string, sink Sink) *Publisher {
	p.lock.Lock()
	p.sinks = append(p.sinks, &sinkState{name: name, sink: sink})
	p.lock.Unlock()
	return p
}

// AddToLoop implements LoopAdder. Sinks implementing Runnable are
// started with the loop.
func (p *Publisher) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvPostProc, p)
	p.lock.Lock()
	defer p.lock.Unlock()
	for _, s := range p.sinks {
		if r, ok := s.sink.(fx.Runnable); ok {
			loop.AddRunnable(fx.NamedRun("telemetry-"+s.name, r))
		}
	}
}

// Sample takes a record at now.
func (p *Publisher) Sample(now time.Time) Record {
	nan := float32(math.NaN())
	rec := Record{
		Mode:               supervisor.ModeNone.String(),
		RPM:                nan,
		InputVoltage:       nan,
		SteeringBusVoltage: nan,
		InputCurrent:       nan,
		SteeringBusCurrent: nan,
		Position:           nan,
		Velocity:           nan,
		At:                 now,
	}
	if p.Mode != nil {
		rec.Mode = p.Mode.Mode().String()
	}
	if p.Traction != nil {
		sum := p.Traction.Summary(now)
		rec.RPM, rec.InputVoltage, rec.InputCurrent = sum.RPM, sum.InputVoltage, sum.InputCurrent
	}
	if p.Steering != nil {
		if fb, ok := p.Steering.Feedback(now); ok {
			rec.SteeringBusVoltage = fb.BusVoltage
			rec.SteeringBusCurrent = fb.BusCurrent
			rec.Position = fb.Position
			rec.Velocity = fb.Velocity
		}
	}
	return rec
}

// Control implements framework.Controller.
func (p *Publisher) Control(cc fx.ControlContext) error {
	now := cc.Time()
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	if !p.last.IsZero() && now.Sub(p.last) < interval {
		return nil
	}
	p.last = now
	p.Publish(cc.Context(), p.Sample(now))
	return nil
}

// Publish sends a record to all sinks. Failures are logged once per
// streak and otherwise ignored.
func (p *Publisher) Publish(ctx context.Context, rec Record) {
	p.lock.Lock()
	sinks := p.sinks
	p.seq++
	p.lock.Unlock()
	for _, s := range sinks {
		err := s.sink.Publish(ctx, rec)
		switch {
		case err != nil && !s.failing:
			glog.Warningf("telemetry %s: %v", s.name, err)
			s.failing = true
		case err == nil && s.failing:
			glog.Infof("telemetry %s recovered", s.name)
			s.failing = false
		}
	}
	if glog.V(2) {
		glog.Infof("telemetry %s", rec.CSV())
	}
}

// Published returns the number of published records.
func (p *Publisher) Published() uint64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.seq
}
