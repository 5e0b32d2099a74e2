package vehicle

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/evt-autonomy/vehicle.go/pkg/traction"
)

// Config holds the device paths and endpoints of the node.
type Config struct {
	NodeID string

	// TractionPorts is a comma separated list of serial ports. A port may
	// carry a CAN forward id as "path#id", then every command on that
	// port is forwarded to the controller behind the USB one.
	TractionPorts string
	SteeringPort  string
	// SteeringCAN selects the CAN protocol on this interface instead of
	// the serial text protocol.
	SteeringCAN  string
	SteeringNode uint
	SBUSPort     string

	AutonomyAddr  string
	TelemetryAddr string

	MQTTURL       string
	RedisAddr     string
	WebsocketAddr string

	GPIO         bool
	LoopInterval time.Duration
	MLock        bool
}

var defaultConfig = Config{
	TractionPorts: "/dev/ttyACM0",
	SteeringPort:  "/dev/ttyACM1",
	SBUSPort:      "/dev/ttyAMA0",
	AutonomyAddr:  ":5005",
	TelemetryAddr: "192.168.1.10:5006",
	GPIO:          true,
	LoopInterval:  10 * time.Millisecond,
}

func init() {
	for name, val := range map[string]*string{
		"VEHICLE_TRACTION_PORTS": &defaultConfig.TractionPorts,
		"VEHICLE_STEERING_PORT":  &defaultConfig.SteeringPort,
		"VEHICLE_STEERING_CAN":   &defaultConfig.SteeringCAN,
		"VEHICLE_SBUS_PORT":      &defaultConfig.SBUSPort,
		"VEHICLE_AUTONOMY_ADDR":  &defaultConfig.AutonomyAddr,
		"VEHICLE_TELEMETRY_ADDR": &defaultConfig.TelemetryAddr,
		"VEHICLE_MQTT_URL":       &defaultConfig.MQTTURL,
		"VEHICLE_REDIS_ADDR":     &defaultConfig.RedisAddr,
		"VEHICLE_WEBSOCKET_ADDR": &defaultConfig.WebsocketAddr,
		"VEHICLE_NODE_ID":        &defaultConfig.NodeID,
	} {
		if v := os.Getenv(name); v != "" {
			*val = v
		}
	}
	if defaultConfig.NodeID == "" {
		defaultConfig.NodeID = NodeID()
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.NodeID, "id", defaultConfig.NodeID, "Node ID")
	flag.StringVar(&defaultConfig.TractionPorts, "traction", defaultConfig.TractionPorts, "Traction serial ports, comma separated, path[#can-id]")
	flag.StringVar(&defaultConfig.SteeringPort, "steering", defaultConfig.SteeringPort, "Steering serial port")
	flag.StringVar(&defaultConfig.SteeringCAN, "steering-can", defaultConfig.SteeringCAN, "Steering CAN interface, overrides -steering")
	flag.UintVar(&defaultConfig.SteeringNode, "steering-node", defaultConfig.SteeringNode, "Steering CAN node id")
	flag.StringVar(&defaultConfig.SBUSPort, "sbus", defaultConfig.SBUSPort, "SBUS serial port, empty disables RC")
	flag.StringVar(&defaultConfig.AutonomyAddr, "autonomy", defaultConfig.AutonomyAddr, "Autonomy listen address")
	flag.StringVar(&defaultConfig.TelemetryAddr, "telemetry", defaultConfig.TelemetryAddr, "Telemetry destination address")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL, e.g. mqtt://host:1883/vehicle/")
	flag.StringVar(&defaultConfig.RedisAddr, "redis", defaultConfig.RedisAddr, "Redis address")
	flag.StringVar(&defaultConfig.WebsocketAddr, "ws", defaultConfig.WebsocketAddr, "Websocket telemetry listen address")
	flag.BoolVar(&defaultConfig.GPIO, "gpio", defaultConfig.GPIO, "Drive relays and LED on GPIO lines")
	flag.DurationVar(&defaultConfig.LoopInterval, "interval", defaultConfig.LoopInterval, "Control loop interval")
	flag.BoolVar(&defaultConfig.MLock, "mlock", defaultConfig.MLock, "Lock process memory")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// TractionPort is a parsed entry of Config.TractionPorts.
type TractionPort struct {
	Path      string
	ForwardID int
}

// ParseTractionPorts parses a comma separated port list.
func ParseTractionPorts(s string) ([]TractionPort, error) {
	var ports []TractionPort
	seen := make(map[string]bool)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		port := TractionPort{Path: item, ForwardID: traction.NoForward}
		if pos := strings.LastIndexByte(item, '#'); pos >= 0 {
			id, err := strconv.ParseUint(item[pos+1:], 10, 8)
			if err != nil {
				return nil, errors.Wrapf(err, "traction port %q: forward id", item)
			}
			port.Path, port.ForwardID = item[:pos], int(id)
		}
		if seen[port.Path] {
			return nil, errors.Errorf("traction port %s listed twice", port.Path)
		}
		seen[port.Path] = true
		ports = append(ports, port)
	}
	return ports, nil
}
