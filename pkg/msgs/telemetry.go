// Package msgs defines the protobuf messages published by the vehicle.
package msgs

import (
	"github.com/golang/protobuf/proto"
)

// TelemetryRecord mirrors the telemetry datagram. Missing values are
// NaN.
type TelemetryRecord struct {
	Mode               string  `protobuf:"bytes,1,opt,name=mode,proto3" json:"mode,omitempty"`
	Rpm                float32 `protobuf:"fixed32,2,opt,name=rpm,proto3" json:"rpm"`
	InputVoltage       float32 `protobuf:"fixed32,3,opt,name=input_voltage,proto3" json:"input_voltage"`
	SteeringBusVoltage float32 `protobuf:"fixed32,4,opt,name=steering_bus_voltage,proto3" json:"steering_bus_voltage"`
	InputCurrent       float32 `protobuf:"fixed32,5,opt,name=input_current,proto3" json:"input_current"`
	SteeringBusCurrent float32 `protobuf:"fixed32,6,opt,name=steering_bus_current,proto3" json:"steering_bus_current"`
	SteeringPosition   float32 `protobuf:"fixed32,7,opt,name=steering_position,proto3" json:"steering_position"`
	SteeringVelocity   float32 `protobuf:"fixed32,8,opt,name=steering_velocity,proto3" json:"steering_velocity"`
	TimestampMs        int64   `protobuf:"varint,9,opt,name=timestamp_ms,proto3" json:"timestamp_ms,omitempty"`
	NodeId             string  `protobuf:"bytes,10,opt,name=node_id,proto3" json:"node_id,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *TelemetryRecord) ProtoMessage() {}

// Reset implements proto.Message.
func (m *TelemetryRecord) Reset() { *m = TelemetryRecord{} }

// String implements proto.Message.
func (m *TelemetryRecord) String() string { return proto.CompactTextString(m) }

// ErrorEvent is published when the supervisor latches an error.
type ErrorEvent struct {
	Location    string `protobuf:"bytes,1,opt,name=location,proto3" json:"location,omitempty"`
	Reason      string `protobuf:"bytes,2,opt,name=reason,proto3" json:"reason,omitempty"`
	TimestampMs int64  `protobuf:"varint,3,opt,name=timestamp_ms,proto3" json:"timestamp_ms,omitempty"`
	NodeId      string `protobuf:"bytes,4,opt,name=node_id,proto3" json:"node_id,omitempty"`
}

// ProtoMessage implements proto.Message.
func (m *ErrorEvent) ProtoMessage() {}

// Reset implements proto.Message.
func (m *ErrorEvent) Reset() { *m = ErrorEvent{} }

// String implements proto.Message.
func (m *ErrorEvent) String() string { return proto.CompactTextString(m) }

// Encode marshals a message.
func Encode(m proto.Message) ([]byte, error) {
	return proto.Marshal(m)
}

// Decode unmarshals a message.
func Decode(b []byte, m proto.Message) error {
	return proto.Unmarshal(b, m)
}
