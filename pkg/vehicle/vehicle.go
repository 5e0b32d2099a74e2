// Package vehicle assembles the drivers, the supervisor and the telemetry
// publisher of a node into a control loop.
package vehicle

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"

	fx "github.com/evt-autonomy/vehicle.go/pkg/framework"
	"github.com/evt-autonomy/vehicle.go/pkg/autonomy"
	"github.com/evt-autonomy/vehicle.go/pkg/hw"
	"github.com/evt-autonomy/vehicle.go/pkg/l0/odrive"
	"github.com/evt-autonomy/vehicle.go/pkg/mqtt"
	"github.com/evt-autonomy/vehicle.go/pkg/netio"
	"github.com/evt-autonomy/vehicle.go/pkg/rc"
	"github.com/evt-autonomy/vehicle.go/pkg/steering"
	"github.com/evt-autonomy/vehicle.go/pkg/supervisor"
	"github.com/evt-autonomy/vehicle.go/pkg/telemetry"
	"github.com/evt-autonomy/vehicle.go/pkg/traction"
)

const connectTimeout = 3 * time.Second

// Endpoint carries autonomy commands in and telemetry datagrams out.
type Endpoint interface {
	autonomy.DatagramSource
	telemetry.DatagramSender
}

// Parts are the opened device links a Vehicle is assembled from.
type Parts struct {
	Axis     odrive.Axis
	Sessions []*traction.Session
	// RC may be nil when no receiver is attached.
	RC           io.Reader
	Endpoint     Endpoint
	TelemetryDst *net.UDPAddr
	Outputs      supervisor.Outputs
}

// Vehicle is the assembled node.
type Vehicle struct {
	Config *Config
	Loop   *fx.Loop

	Supervisor *supervisor.Supervisor
	Steering   *steering.Driver
	Traction   *traction.Driver
	RC         *rc.Provider
	Autonomy   *autonomy.Receiver
	Telemetry  *telemetry.Publisher
	Errors     *ErrorReporter
	Operator   *Operator

	parts     Parts
	runnables []fx.Runnable
	closers   []io.Closer
}

// Assemble wires the parts without opening anything. The loop is created
// by Build once the optional sinks are attached.
func Assemble(conf *Config, parts Parts, clk clock.Clock) *Vehicle {
	v := &Vehicle{Config: conf, parts: parts}

	v.Steering = steering.NewConfig().NewDriver(parts.Axis)
	v.Steering.Clock = clk
	v.Traction = traction.NewConfig().NewDriver(parts.Sessions...)
	v.RC = rc.NewProvider(parts.RC)
	v.RC.Clock = clk
	v.Autonomy = autonomy.NewReceiver(parts.Endpoint)

	v.Supervisor = supervisor.New(*supervisor.NewConfig(), v.Steering, v.Traction, parts.Outputs)
	v.Supervisor.Clock = clk
	v.Supervisor.RC = v.RC
	v.Supervisor.Commands = v.Autonomy

	v.Telemetry = telemetry.NewPublisher(v.Supervisor, v.Steering, v.Traction)
	if parts.TelemetryDst != nil {
		v.Telemetry.AddSink("udp", &telemetry.UDPSink{Sender: parts.Endpoint, Dst: parts.TelemetryDst})
	}
	v.Errors = NewErrorReporter(v.Supervisor, conf.NodeID)

	if r, ok := parts.Axis.(fx.Runnable); ok {
		v.runnables = append(v.runnables, fx.NamedRun("steering-link", r))
	}
	if r, ok := parts.Endpoint.(fx.Runnable); ok {
		v.runnables = append(v.runnables, fx.NamedRun("udp", r))
	}
	return v
}

// AddRunnable registers a background worker started with the loop.
func (v *Vehicle) AddRunnable(name string, r fx.Runnable) {
	v.runnables = append(v.runnables, fx.NamedRun(name, r))
}

// AddCloser registers a resource released by Close.
func (v *Vehicle) AddCloser(c io.Closer) {
	v.closers = append(v.closers, c)
}

// Build creates the loop. Components run in the order: RC and autonomy
// input, supervisor, drivers, telemetry.
func (v *Vehicle) Build(clk clock.Clock) *fx.Loop {
	loop := fx.NewLoopWithClock(clk)
	if v.Config.LoopInterval > 0 {
		loop.Interval = v.Config.LoopInterval
	}
	loop.AddController(fx.PrLvSense, v.RC, v.Autonomy)
	// the supervisor also runs Setup as a runnable once the links are up.
	loop.Add(v.Supervisor, v.Steering, v.Traction, v.Telemetry, v.Errors)
	loop.AddRunnable(v.runnables...)
	if v.Operator != nil {
		loop.AddRunnable(fx.NamedRun("operator", v.Operator))
	}
	v.Loop = loop
	return loop
}

// Close releases every opened resource.
func (v *Vehicle) Close() error {
	var err error
	for i := len(v.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, v.closers[i].Close())
	}
	v.closers = nil
	return err
}

// NewVehicle opens the devices and services named by the config and
// builds the loop.
func (c *Config) NewVehicle() (v *Vehicle, err error) {
	var closers []io.Closer
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i].Close()
			}
		}
	}()
	clk := clock.New()

	var parts Parts
	ports, err := ParseTractionPorts(c.TractionPorts)
	if err != nil {
		return nil, err
	}
	for _, p := range ports {
		port, err := hw.OpenSerial(hw.TractionPort(p.Path))
		if err != nil {
			return nil, errors.Wrap(err, "traction")
		}
		closers = append(closers, port)
		parts.Sessions = append(parts.Sessions, traction.NewSession(p.Path, port, p.ForwardID, clk))
	}

	if c.SteeringCAN != "" {
		conn, err := odrive.DialSocketCAN(c.SteeringCAN)
		if err != nil {
			return nil, errors.Wrap(err, "steering")
		}
		closers = append(closers, conn)
		parts.Axis = odrive.NewCANAxis(conn, uint8(c.SteeringNode))
	} else {
		port, err := hw.OpenSerial(hw.SteeringPort(c.SteeringPort))
		if err != nil {
			return nil, errors.Wrap(err, "steering")
		}
		closers = append(closers, port)
		parts.Axis = odrive.NewASCII(port)
	}

	if c.SBUSPort != "" {
		port, err := hw.OpenSerial(hw.SBUSPort(c.SBUSPort))
		if err != nil {
			return nil, errors.Wrap(err, "rc")
		}
		closers = append(closers, port)
		parts.RC = port
	} else {
		glog.Warning("no RC receiver configured")
	}

	endpoint, err := netio.Listen(c.AutonomyAddr, netio.TOSLowDelay)
	if err != nil {
		return nil, errors.Wrap(err, "autonomy")
	}
	closers = append(closers, endpoint)
	parts.Endpoint = endpoint
	if c.TelemetryAddr != "" {
		if parts.TelemetryDst, err = net.ResolveUDPAddr("udp4", c.TelemetryAddr); err != nil {
			return nil, errors.Wrapf(err, "telemetry %s", c.TelemetryAddr)
		}
	}

	if c.GPIO {
		lines, err := hw.OpenLines(hw.DefaultOutputs, "vehicled")
		if err != nil {
			return nil, errors.Wrap(err, "outputs")
		}
		closers = append(closers, lines)
		parts.Outputs = lines
	} else {
		parts.Outputs = hw.NewMemLines()
	}

	v = Assemble(c, parts, clk)

	if c.MQTTURL != "" {
		queue, err := mqtt.NewQueueFromURL(c.MQTTURL)
		if err != nil {
			return nil, errors.Wrap(err, "mqtt")
		}
		// a broker down at start only disables the mirror.
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		if err := queue.Connect(ctx); err != nil {
			glog.Warningf("mqtt %s: %v", c.MQTTURL, err)
		}
		cancel()
		closers = append(closers, queue)
		v.Telemetry.AddSink("mqtt", telemetry.NewAsync(&telemetry.MQTTSink{Queue: queue, NodeID: c.NodeID}))
		v.Errors.AddSink(&MQTTErrorSink{Queue: queue})
	}

	if c.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		if err := client.Ping(ctx).Err(); err != nil {
			glog.Warningf("redis %s: %v", c.RedisAddr, err)
		}
		cancel()
		closers = append(closers, client)
		v.Telemetry.AddSink("redis", telemetry.NewAsync(telemetry.NewRedisSink(client)))
		v.Errors.AddSink(&RedisErrorSink{Client: client})
		v.Operator = NewOperator(client)
	}

	if c.WebsocketAddr != "" {
		ws := telemetry.NewWebsocketSink()
		addr := c.WebsocketAddr
		v.AddRunnable("websocket", fx.RunFunc(func(ctx context.Context) error {
			return ws.Serve(ctx, addr)
		}))
		v.Telemetry.AddSink("websocket", telemetry.NewAsync(ws))
	}

	v.closers = closers
	v.Build(clk)
	glog.Infof("vehicle %s: traction %s, steering %s", c.NodeID, c.TractionPorts, steeringLink(c))
	return v, nil
}

// MustNewVehicle wraps NewVehicle and fails on error.
func (c *Config) MustNewVehicle() *Vehicle {
	v, err := c.NewVehicle()
	if err != nil {
		glog.Fatal(err)
	}
	return v
}

func steeringLink(c *Config) string {
	if c.SteeringCAN != "" {
		return "can:" + c.SteeringCAN
	}
	return c.SteeringPort
}
