package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fx "github.com/evt-autonomy/vehicle.go/pkg/framework"
	"github.com/evt-autonomy/vehicle.go/pkg/msgs"
	"github.com/evt-autonomy/vehicle.go/pkg/steering"
	"github.com/evt-autonomy/vehicle.go/pkg/supervisor"
	"github.com/evt-autonomy/vehicle.go/pkg/traction"
)

var nan = float32(math.NaN())

func TestRecordCSV(t *testing.T) {
	rec := Record{
		Mode:               "RC",
		RPM:                3273.8095,
		InputVoltage:       48.04,
		SteeringBusVoltage: nan,
		InputCurrent:       -1.5,
		SteeringBusCurrent: nan,
		Position:           -0.665,
		Velocity:           0,
	}
	assert.Equal(t, "RC,3273.81,48.04,NaN,-1.50,NaN,-0.67,0.00", rec.CSV())

	at := time.Unix(7, 0)
	got, err := ParseCSV(rec.CSV()+"\n", at)
	require.NoError(t, err)
	assert.Equal(t, "RC", got.Mode)
	assert.InDelta(t, 3273.81, got.RPM, 1e-3)
	assert.True(t, math.IsNaN(float64(got.SteeringBusVoltage)))
	assert.Equal(t, float32(-1.5), got.InputCurrent)
	assert.Equal(t, at, got.At)

	for _, bad := range []string{"", "RC,1,2", ",1,2,3,4,5,6,7", "RC,1,2,3,4,5,6,x"} {
		_, err := ParseCSV(bad, at)
		assert.Equal(t, ErrBadRecord, err, bad)
	}
}

func TestRecordProto(t *testing.T) {
	rec := Record{Mode: "Idle", RPM: 10, InputVoltage: nan, At: time.Unix(1, 5e8)}
	m := rec.Proto("node")
	assert.Equal(t, int64(1500), m.TimestampMs)
	assert.Equal(t, "node", m.NodeId)
	back := FromProto(m)
	assert.Equal(t, "Idle", back.Mode)
	assert.Equal(t, float32(10), back.RPM)
	assert.True(t, math.IsNaN(float64(back.InputVoltage)))
	assert.Equal(t, rec.At, back.At)
}

type fakeMode supervisor.Mode

func (m fakeMode) Mode() supervisor.Mode { return supervisor.Mode(m) }

type fakeSteering struct {
	fb    steering.Feedback
	fresh bool
}

func (f *fakeSteering) Feedback(now time.Time) (steering.Feedback, bool) { return f.fb, f.fresh }

type fakeTraction traction.Summary

func (f fakeTraction) Summary(now time.Time) traction.Summary { return traction.Summary(f) }

type captureSink struct {
	recs []Record
	err  error
}

func (s *captureSink) Publish(ctx context.Context, rec Record) error {
	s.recs = append(s.recs, rec)
	return s.err
}

func TestPublisherInterval(t *testing.T) {
	mock := clock.NewMock()
	steer := &fakeSteering{fb: steering.Feedback{Position: 0.5, Velocity: -1, BusVoltage: 24, BusCurrent: 0.25}, fresh: true}
	pub := NewPublisher(fakeMode(supervisor.ModeRC), steer, fakeTraction{RPM: 1000, InputVoltage: 48, InputCurrent: 3})
	failing := &captureSink{err: errors.New("down")}
	sink := &captureSink{}
	pub.AddSink("failing", failing).AddSink("capture", sink)
	loop := fx.NewLoopWithClock(mock)
	loop.Add(pub)

	loop.Step(context.Background())
	mock.Add(50 * time.Millisecond)
	loop.Step(context.Background())
	mock.Add(50 * time.Millisecond)
	loop.Step(context.Background())
	require.Len(t, sink.recs, 2)
	assert.Len(t, failing.recs, 2)
	assert.Equal(t, uint64(2), pub.Published())
	assert.Equal(t, "RC,1000.00,48.00,24.00,3.00,0.25,0.50,-1.00", sink.recs[1].CSV())

	steer.fresh = false
	assert.Equal(t, "RC,1000.00,48.00,NaN,3.00,NaN,NaN,NaN", pub.Sample(mock.Now()).CSV())
}

func TestPublisherWithoutSources(t *testing.T) {
	pub := NewPublisher(nil, nil, nil)
	assert.Equal(t, "None,NaN,NaN,NaN,NaN,NaN,NaN,NaN", pub.Sample(time.Now()).CSV())
}

type fakeSender struct {
	dst *net.UDPAddr
	b   []byte
}

func (s *fakeSender) Send(dst *net.UDPAddr, b []byte) error {
	s.dst, s.b = dst, b
	return nil
}

func TestUDPSink(t *testing.T) {
	sender := &fakeSender{}
	dst := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 9001}
	sink := &UDPSink{Sender: sender, Dst: dst}
	require.NoError(t, sink.Publish(context.Background(), Record{Mode: "Error", RPM: nan, InputVoltage: nan,
		SteeringBusVoltage: nan, InputCurrent: nan, SteeringBusCurrent: nan, Position: nan, Velocity: nan}))
	assert.Equal(t, dst, sender.dst)
	assert.Equal(t, "Error,NaN,NaN,NaN,NaN,NaN,NaN,NaN", string(sender.b))
}

type blockingSink struct {
	release chan struct{}
	got     chan Record
	err     error
}

func (s *blockingSink) Publish(ctx context.Context, rec Record) error {
	<-s.release
	s.got <- rec
	return s.err
}

func TestAsyncKeepsNewest(t *testing.T) {
	inner := &blockingSink{release: make(chan struct{}), got: make(chan Record, 4), err: errors.New("slow")}
	async := NewAsync(inner)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, async.Publish(ctx, Record{Mode: "a"}))
	go async.Run(ctx)
	// "a" is taken by the worker, which blocks
	require.Eventually(t, func() bool { return len(async.recCh) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, async.Publish(ctx, Record{Mode: "b"}))
	require.NoError(t, async.Publish(ctx, Record{Mode: "c"}))
	assert.Equal(t, uint64(1), async.Skipped())

	close(inner.release)
	assert.Equal(t, "a", (<-inner.got).Mode)
	assert.Equal(t, "c", (<-inner.got).Mode)
	require.Eventually(t, func() bool {
		return async.Publish(ctx, Record{Mode: "d"}) != nil
	}, time.Second, time.Millisecond)
}

type fakeQueue struct {
	topic  string
	msg    proto.Message
	retain bool
}

func (q *fakeQueue) PubProto(topic string, msg proto.Message, retain bool) (paho.Token, error) {
	q.topic, q.msg, q.retain = topic, msg, retain
	return &paho.DummyToken{}, nil
}

func TestMQTTSink(t *testing.T) {
	q := &fakeQueue{}
	sink := &MQTTSink{Queue: q, NodeID: "car1"}
	require.NoError(t, sink.Publish(context.Background(), Record{Mode: "Autonomous", RPM: 500}))
	assert.Equal(t, DefaultMQTTTopic, q.topic)
	assert.True(t, q.retain)
	m, ok := q.msg.(*msgs.TelemetryRecord)
	require.True(t, ok)
	assert.Equal(t, "Autonomous", m.Mode)
	assert.Equal(t, float32(500), m.Rpm)
	assert.Equal(t, "car1", m.NodeId)
}

type fakeRedis struct {
	hsets     []map[string]interface{}
	published []string
	err       error
}

func (r *fakeRedis) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	r.hsets = append(r.hsets, values[0].(map[string]interface{}))
	return redis.NewIntResult(int64(len(r.hsets)), r.err)
}

func (r *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	r.published = append(r.published, channel+"="+message.(string))
	return redis.NewIntResult(1, nil)
}

func TestRedisSink(t *testing.T) {
	client := &fakeRedis{}
	sink := NewRedisSink(client)
	ctx := context.Background()
	rec := Record{Mode: "Idle", RPM: 0, InputVoltage: nan, At: time.Unix(2, 0)}
	require.NoError(t, sink.Publish(ctx, rec))
	require.NoError(t, sink.Publish(ctx, rec))
	rec.Mode = "RC"
	require.NoError(t, sink.Publish(ctx, rec))

	require.Len(t, client.hsets, 3)
	assert.Equal(t, "Idle", client.hsets[0]["mode"])
	assert.Equal(t, "NaN", client.hsets[0]["input_voltage"])
	assert.Equal(t, "0.00", client.hsets[0]["rpm"])
	assert.Equal(t, "2000", client.hsets[0]["timestamp_ms"])
	assert.Equal(t, []string{"vehicle:mode=Idle", "vehicle:mode=RC"}, client.published)

	client.err = errors.New("connection refused")
	err := sink.Publish(ctx, rec)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "redis hset vehicle:telemetry"))
}

func TestWebsocketSink(t *testing.T) {
	sink := NewWebsocketSink()
	server := httptest.NewServer(sink)
	defer server.Close()
	defer sink.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+DefaultWebsocketPath, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return sink.Clients() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, sink.Publish(context.Background(), Record{Mode: "RC", RPM: 42, InputVoltage: nan, At: time.Unix(3, 0)}))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "RC", got["mode"])
	assert.Equal(t, float64(42), got["rpm"])
	assert.Nil(t, got["input_voltage"])
	assert.Equal(t, float64(3000), got["timestamp_ms"])
	var rec JSONRecord
	require.NoError(t, json.Unmarshal(payload, &rec))
	assert.Equal(t, "RC,42.00,NaN,NaN,NaN,NaN,NaN,NaN", rec.Record().CSV())
	assert.True(t, time.Unix(3, 0).Equal(rec.Record().At))

	conn.Close()
	require.Eventually(t, func() bool { return sink.Clients() == 0 }, time.Second, time.Millisecond)
}
