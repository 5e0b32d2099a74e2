package vehicle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fx "github.com/evt-autonomy/vehicle.go/pkg/framework"
	"github.com/evt-autonomy/vehicle.go/pkg/msgs"
	"github.com/evt-autonomy/vehicle.go/pkg/supervisor"
)

type scriptedLister struct {
	keys    []string
	replies []*redis.StringSliceCmd
}

func (l *scriptedLister) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	l.keys = append(l.keys, keys...)
	if len(l.replies) == 0 {
		<-ctx.Done()
		return redis.NewStringSliceResult(nil, ctx.Err())
	}
	r := l.replies[0]
	l.replies = l.replies[1:]
	return r
}

type recordingLoop struct {
	lock     sync.Mutex
	messages []fx.Message
	triggers int
}

func (l *recordingLoop) PostMessage(msg fx.Message) {
	l.lock.Lock()
	l.messages = append(l.messages, msg)
	l.lock.Unlock()
}

func (l *recordingLoop) TriggerNext() {
	l.lock.Lock()
	l.triggers++
	l.lock.Unlock()
}

func (l *recordingLoop) posted() []fx.Message {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]fx.Message(nil), l.messages...)
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand(" RESET\n")
	require.NoError(t, err)
	assert.Equal(t, supervisor.CommandReset, cmd)
	cmd, err = ParseCommand("estop")
	require.NoError(t, err)
	assert.Equal(t, supervisor.CommandEstop, cmd)
	_, err = ParseCommand("launch")
	assert.Error(t, err)
}

func TestOperatorRun(t *testing.T) {
	lister := &scriptedLister{replies: []*redis.StringSliceCmd{
		redis.NewStringSliceResult(nil, redis.Nil),
		redis.NewStringSliceResult([]string{DefaultCommandKey, "reset"}, nil),
		redis.NewStringSliceResult([]string{DefaultCommandKey, "launch"}, nil),
		redis.NewStringSliceResult([]string{DefaultCommandKey, "estop"}, nil),
	}}
	lc := &recordingLoop{}
	op := NewOperator(lister)
	op.Clock = clock.NewMock()
	op.Loop = lc

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- op.Run(ctx) }()
	require.Eventually(t, func() bool {
		return len(lc.posted()) == 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.Equal(t, context.Canceled, <-done)

	assert.Equal(t, []fx.Message{supervisor.CommandReset, supervisor.CommandEstop}, lc.posted())
	assert.Equal(t, 2, lc.triggers)
	for _, key := range lister.keys {
		assert.Equal(t, DefaultCommandKey, key)
	}
}

func TestOperatorRetriesOnError(t *testing.T) {
	lister := &scriptedLister{replies: []*redis.StringSliceCmd{
		redis.NewStringSliceResult(nil, errors.New("connection refused")),
		redis.NewStringSliceResult([]string{DefaultCommandKey, "estop"}, nil),
	}}
	lc := &recordingLoop{}
	mock := clock.NewMock()
	op := NewOperator(lister)
	op.Clock = mock
	op.Loop = lc

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go op.Run(ctx)
	require.Eventually(t, func() bool {
		mock.Add(commandRetryDelay)
		return len(lc.posted()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, supervisor.CommandEstop, lc.posted()[0])
}

type fixedErrors struct {
	lock sync.Mutex
	rec  supervisor.ErrorRecord
	ok   bool
}

func (f *fixedErrors) set(rec supervisor.ErrorRecord) {
	f.lock.Lock()
	f.rec, f.ok = rec, true
	f.lock.Unlock()
}

func (f *fixedErrors) LastError() (supervisor.ErrorRecord, bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.rec, f.ok
}

type eventSink chan *msgs.ErrorEvent

func (s eventSink) PublishError(ctx context.Context, ev *msgs.ErrorEvent) error {
	s <- ev
	return nil
}

func TestErrorReporter(t *testing.T) {
	mock := clock.NewMock()
	src := &fixedErrors{}
	sink := make(eventSink, 4)
	r := NewErrorReporter(src, "node-1").AddSink(sink)
	loop := fx.NewLoopWithClock(mock).Add(r)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	loop.Step(ctx)
	at := time.Unix(1700000000, 0)
	src.set(supervisor.ErrorRecord{Location: supervisor.LocTraction, Reason: "over current", Time: at})
	loop.Step(ctx)
	loop.Step(ctx)

	select {
	case ev := <-sink:
		assert.Equal(t, supervisor.LocTraction, ev.Location)
		assert.Equal(t, "over current", ev.Reason)
		assert.Equal(t, int64(1700000000000), ev.TimestampMs)
		assert.Equal(t, "node-1", ev.NodeId)
	case <-time.After(time.Second):
		t.Fatal("no error event")
	}

	src.set(supervisor.ErrorRecord{Location: supervisor.LocOperator, Reason: "estop", Time: at.Add(time.Second)})
	loop.Step(ctx)
	select {
	case ev := <-sink:
		assert.Equal(t, "estop", ev.Reason)
	case <-time.After(time.Second):
		t.Fatal("no error event")
	}
	assert.Len(t, sink, 0)
}

type hashClient struct {
	hashes    map[string][]interface{}
	published map[string][]interface{}
}

func (c *hashClient) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	c.hashes[key] = values
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (c *hashClient) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	c.published[channel] = append(c.published[channel], message)
	return redis.NewIntResult(1, nil)
}

func TestRedisErrorSink(t *testing.T) {
	client := &hashClient{hashes: make(map[string][]interface{}), published: make(map[string][]interface{})}
	sink := &RedisErrorSink{Client: client}
	err := sink.PublishError(context.Background(), &msgs.ErrorEvent{
		Location:    supervisor.LocSteering,
		Reason:      "axis error 0x40",
		TimestampMs: 1234,
	})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"location", "odrive", "reason", "axis error 0x40", "timestamp_ms", "1234"}, client.hashes[DefaultErrorKey])
	assert.Equal(t, []interface{}{"odrive: axis error 0x40"}, client.published[DefaultErrorChannel])
}
