// Package telemetry samples the vehicle status and publishes it as CSV
// datagrams and to optional mirrors.
package telemetry

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/evt-autonomy/vehicle.go/pkg/msgs"
)

// NumFields is the number of CSV fields.
const NumFields = 8

// ErrBadRecord indicates a malformed CSV record.
var ErrBadRecord = errors.New("telemetry: bad record")

// Record is one status sample. Missing values are NaN.
type Record struct {
	Mode               string
	RPM                float32
	InputVoltage       float32
	SteeringBusVoltage float32
	InputCurrent       float32 // summed over traction sessions
	SteeringBusCurrent float32
	Position           float32
	Velocity           float32
	At                 time.Time
}

func (r Record) values() []float32 {
	return []float32{
		r.RPM,
		r.InputVoltage,
		r.SteeringBusVoltage,
		r.InputCurrent,
		r.SteeringBusCurrent,
		r.Position,
		r.Velocity,
	}
}

// CSV formats the datagram: mode then the values with 2 decimals.
func (r Record) CSV() string {
	var sb strings.Builder
	sb.WriteString(r.Mode)
	for _, v := range r.values() {
		sb.WriteByte(',')
		sb.WriteString(formatValue(v))
	}
	return sb.String()
}

func formatValue(v float32) string {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return "NaN"
	}
	return strconv.FormatFloat(float64(v), 'f', 2, 32)
}

// ParseCSV parses a datagram produced by CSV.
func ParseCSV(s string, at time.Time) (Record, error) {
	tokens := strings.Split(strings.TrimSpace(s), ",")
	if len(tokens) != NumFields || tokens[0] == "" {
		return Record{}, ErrBadRecord
	}
	var vals [NumFields - 1]float32
	for i, token := range tokens[1:] {
		v, err := strconv.ParseFloat(token, 32)
		if err != nil {
			return Record{}, ErrBadRecord
		}
		vals[i] = float32(v)
	}
	return Record{
		Mode:               tokens[0],
		RPM:                vals[0],
		InputVoltage:       vals[1],
		SteeringBusVoltage: vals[2],
		InputCurrent:       vals[3],
		SteeringBusCurrent: vals[4],
		Position:           vals[5],
		Velocity:           vals[6],
		At:                 at,
	}, nil
}

// Proto converts to the protobuf message.
func (r Record) Proto(nodeID string) *msgs.TelemetryRecord {
	return &msgs.TelemetryRecord{
		Mode:               r.Mode,
		Rpm:                r.RPM,
		InputVoltage:       r.InputVoltage,
		SteeringBusVoltage: r.SteeringBusVoltage,
		InputCurrent:       r.InputCurrent,
		SteeringBusCurrent: r.SteeringBusCurrent,
		SteeringPosition:   r.Position,
		SteeringVelocity:   r.Velocity,
		TimestampMs:        r.At.UnixNano() / int64(time.Millisecond),
		NodeId:             nodeID,
	}
}

// FromProto converts from the protobuf message.
func FromProto(m *msgs.TelemetryRecord) Record {
	return Record{
		Mode:               m.Mode,
		RPM:                m.Rpm,
		InputVoltage:       m.InputVoltage,
		SteeringBusVoltage: m.SteeringBusVoltage,
		InputCurrent:       m.InputCurrent,
		SteeringBusCurrent: m.SteeringBusCurrent,
		Position:           m.SteeringPosition,
		Velocity:           m.SteeringVelocity,
		At:                 time.Unix(0, m.TimestampMs*int64(time.Millisecond)),
	}
}

// Fields returns the values keyed by name, formatted as in CSV.
func (r Record) Fields() map[string]string {
	names := []string{
		"rpm",
		"input_voltage",
		"steering_bus_voltage",
		"input_current",
		"steering_bus_current",
		"steering_position",
		"steering_velocity",
	}
	fields := map[string]string{"mode": r.Mode}
	for i, v := range r.values() {
		fields[names[i]] = formatValue(v)
	}
	return fields
}
