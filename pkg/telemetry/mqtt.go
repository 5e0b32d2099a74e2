package telemetry

import (
	"context"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/protobuf/proto"

	"github.com/evt-autonomy/vehicle.go/pkg/mqtt"
)

// DefaultMQTTTopic is relative to the queue prefix.
const DefaultMQTTTopic = "telemetry"

// ProtoPublisher is implemented by mqtt.Queue.
type ProtoPublisher interface {
	PubProto(topic string, msg proto.Message, retain bool) (paho.Token, error)
}

// MQTTSink mirrors records as protobuf messages. It waits for the
// broker, so it's meant to run behind Async.
type MQTTSink struct {
	Queue  ProtoPublisher
	Topic  string
	NodeID string
}

// Publish implements Sink.
func (s *MQTTSink) Publish(ctx context.Context, rec Record) error {
	topic := s.Topic
	if topic == "" {
		topic = DefaultMQTTTopic
	}
	token, err := s.Queue.PubProto(topic, rec.Proto(s.NodeID), true)
	if err != nil {
		return err
	}
	return mqtt.Wait(ctx, token)
}
