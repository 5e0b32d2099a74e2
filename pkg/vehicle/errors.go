package vehicle

import (
	"context"
	"strconv"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	fx "github.com/evt-autonomy/vehicle.go/pkg/framework"
	"github.com/evt-autonomy/vehicle.go/pkg/msgs"
	"github.com/evt-autonomy/vehicle.go/pkg/mqtt"
	"github.com/evt-autonomy/vehicle.go/pkg/supervisor"
	"github.com/evt-autonomy/vehicle.go/pkg/telemetry"
)

// Error publishing defaults.
const (
	DefaultErrorTopic   = "errors"
	DefaultErrorKey     = "vehicle:error"
	DefaultErrorChannel = "vehicle:errors"
)

// ErrorSource reports the latched error.
type ErrorSource interface {
	LastError() (supervisor.ErrorRecord, bool)
}

// ErrorSink delivers error events. It may block.
type ErrorSink interface {
	PublishError(ctx context.Context, ev *msgs.ErrorEvent) error
}

// ErrorReporter publishes every newly latched error once.
type ErrorReporter struct {
	Source ErrorSource
	NodeID string

	sinks  []ErrorSink
	last   supervisor.ErrorRecord
	events chan *msgs.ErrorEvent
}

// NewErrorReporter creates an ErrorReporter.
func NewErrorReporter(src ErrorSource, nodeID string) *ErrorReporter {
	return &ErrorReporter{
		Source: src,
		NodeID: nodeID,
		events: make(chan *msgs.ErrorEvent, 4),
	}
}

// AddSink adds a sink. Must be called before the loop starts.
func (r *ErrorReporter) AddSink(sink ErrorSink) *ErrorReporter {
	r.sinks = append(r.sinks, sink)
	return r
}

// AddToLoop implements LoopAdder.
func (r *ErrorReporter) AddToLoop(loop *fx.Loop) {
	loop.AddController(fx.PrLvPostProc, r)
}

// Control implements framework.Controller.
func (r *ErrorReporter) Control(cc fx.ControlContext) error {
	rec, ok := r.Source.LastError()
	if !ok || rec == r.last {
		return nil
	}
	r.last = rec
	if len(r.sinks) == 0 {
		return nil
	}
	ev := &msgs.ErrorEvent{
		Location:    rec.Location,
		Reason:      rec.Reason,
		TimestampMs: rec.Time.UnixNano() / int64(time.Millisecond),
		NodeId:      r.NodeID,
	}
	select {
	case r.events <- ev:
	default:
		glog.Warningf("error event dropped: %s", ev)
	}
	return nil
}

// Run implements framework.Runnable.
func (r *ErrorReporter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.events:
			for _, sink := range r.sinks {
				if err := sink.PublishError(ctx, ev); err != nil {
					glog.Warningf("publish error event: %v", err)
				}
			}
		}
	}
}

// MQTTErrorSink publishes error events under the queue prefix.
type MQTTErrorSink struct {
	Queue telemetry.ProtoPublisher
	Topic string
}

// PublishError implements ErrorSink.
func (s *MQTTErrorSink) PublishError(ctx context.Context, ev *msgs.ErrorEvent) error {
	topic := s.Topic
	if topic == "" {
		topic = DefaultErrorTopic
	}
	token, err := s.Queue.PubProto(topic, ev, true)
	if err != nil {
		return err
	}
	return mqtt.Wait(ctx, token)
}

// RedisErrorSink keeps the last error in a hash and announces it.
type RedisErrorSink struct {
	Client telemetry.RedisClient
}

// PublishError implements ErrorSink.
func (s *RedisErrorSink) PublishError(ctx context.Context, ev *msgs.ErrorEvent) error {
	err := s.Client.HSet(ctx, DefaultErrorKey,
		"location", ev.Location,
		"reason", ev.Reason,
		"timestamp_ms", strconv.FormatInt(ev.TimestampMs, 10)).Err()
	if err != nil {
		return errors.Wrapf(err, "redis hset %s", DefaultErrorKey)
	}
	msg := ev.Location + ": " + ev.Reason
	return errors.Wrapf(s.Client.Publish(ctx, DefaultErrorChannel, msg).Err(), "redis publish %s", DefaultErrorChannel)
}
