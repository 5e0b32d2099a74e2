package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/abiosoft/ishell"
	"github.com/benbjohnson/clock"
	"github.com/golang/glog"

	fx "github.com/evt-autonomy/vehicle.go/pkg/framework"
	"github.com/evt-autonomy/vehicle.go/pkg/hw"
	"github.com/evt-autonomy/vehicle.go/pkg/l0/odrive"
	"github.com/evt-autonomy/vehicle.go/pkg/steering"
	"github.com/evt-autonomy/vehicle.go/pkg/traction"
	"github.com/evt-autonomy/vehicle.go/pkg/vehicle"
)

// Shell provides ishell backed interactive shell operating directly on
// the devices of a node.
type Shell struct {
	Interactive bool
	OutputJSON  bool

	Shell  *ishell.Shell
	Config *vehicle.Config

	Steering *steering.Driver
	Traction *traction.Session

	devices map[string]*Device
}

// Device is an opened link with its background workers.
type Device struct {
	Name   string
	Target string
	Cancel func()
	Closer io.Closer
	Runner *fx.Runner
}

// Close stops the workers and releases the link.
func (d *Device) Close() error {
	d.Cancel()
	err := d.Closer.Close()
	d.Runner.Wait()
	return err
}

// Device names.
const (
	DevSteering = "steering"
	DevTraction = "traction"
)

const (
	shellKey = "$shell"
	prompt   = "vehicle > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&DevicesCmd,
		&CloseCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *vehicle.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,

		Shell:   ishell.New(),
		Config:  conf,
		devices: make(map[string]*Device),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustHaveSteering wraps command func requires an opened steering link.
func MustHaveSteering(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Steering == nil {
			c.Err(fmt.Errorf("steering not opened"))
			return
		}
		fn(c)
	}
}

// MustHaveTraction wraps command func requires an opened traction link.
func MustHaveTraction(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Traction == nil {
			c.Err(fmt.Errorf("traction not opened"))
			return
		}
		fn(c)
	}
}

// Print prints a value, in JSON when requested.
func Print(c *ishell.Context, v interface{}) {
	if ShellFrom(c).OutputJSON {
		out, err := json.Marshal(v)
		if err != nil {
			c.Err(err)
			return
		}
		c.Println(string(out))
		return
	}
	c.Printf("%+v\n", v)
}

func (s *Shell) addDevice(name, target string, closer io.Closer, runnables ...fx.Runnable) *Device {
	s.CloseDevice(name)
	ctx, cancel := context.WithCancel(context.Background())
	dev := &Device{
		Name:   name,
		Target: target,
		Cancel: cancel,
		Closer: closer,
		Runner: fx.NewRunnerWith(ctx).Go(runnables...),
	}
	s.devices[name] = dev
	return dev
}

// OpenSteering opens the steering controller and runs discovery. A
// target "can:IFACE" selects the CAN protocol.
func (s *Shell) OpenSteering(ctx context.Context, target string) error {
	var (
		axis   odrive.Axis
		link   fx.Runnable
		closer io.Closer
	)
	if strings.HasPrefix(target, "can:") {
		conn, err := odrive.DialSocketCAN(strings.TrimPrefix(target, "can:"))
		if err != nil {
			return err
		}
		can := odrive.NewCANAxis(conn, uint8(s.Config.SteeringNode))
		axis, link, closer = can, can, conn
	} else {
		port, err := hw.OpenSerial(hw.SteeringPort(target))
		if err != nil {
			return err
		}
		ascii := odrive.NewASCII(port)
		axis, link, closer = ascii, ascii, port
	}
	drv := steering.NewConfig().NewDriver(axis)
	s.addDevice(DevSteering, target, closer, link, drv)
	if err := drv.Setup(ctx); err != nil {
		s.CloseDevice(DevSteering)
		return err
	}
	s.Steering = drv
	return nil
}

// OpenTraction opens a traction controller, "path#id" forwards over CAN.
func (s *Shell) OpenTraction(ctx context.Context, target string) error {
	ports, err := vehicle.ParseTractionPorts(target)
	if err != nil {
		return err
	}
	if len(ports) != 1 {
		return fmt.Errorf("exactly one traction port expected")
	}
	port, err := hw.OpenSerial(hw.TractionPort(ports[0].Path))
	if err != nil {
		return err
	}
	session := traction.NewSession(ports[0].Path, port, ports[0].ForwardID, clock.New())
	s.addDevice(DevTraction, target, port, session)
	if _, err := session.GetValues(ctx); err != nil {
		glog.Warningf("traction %s: %v", target, err)
	}
	s.Traction = session
	return nil
}

// CloseDevice closes an opened device.
func (s *Shell) CloseDevice(name string) error {
	dev, ok := s.devices[name]
	if !ok {
		return nil
	}
	delete(s.devices, name)
	switch name {
	case DevSteering:
		s.Steering = nil
	case DevTraction:
		s.Traction = nil
	}
	return dev.Close()
}

// Close closes all devices.
func (s *Shell) Close() {
	for name := range s.devices {
		if err := s.CloseDevice(name); err != nil {
			glog.Warningf("close %s: %v", name, err)
		}
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	defer s.Close()
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			glog.Exit(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	glog.Exit("command expected")
}

var (
	// DevicesCmd lists opened devices.
	DevicesCmd = ishell.Cmd{
		Name:    "devices",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			names := make([]string, 0, len(s.devices))
			for name := range s.devices {
				names = append(names, name)
			}
			sort.Strings(names)
			if s.OutputJSON {
				targets := make(map[string]string)
				for _, name := range names {
					targets[name] = s.devices[name].Target
				}
				Print(c, targets)
				return
			}
			if len(names) == 0 {
				c.Println("No devices opened")
				return
			}
			for _, name := range names {
				c.Printf("%s: %s\n", name, s.devices[name].Target)
			}
		},
	}

	// CloseCmd closes a device.
	CloseCmd = ishell.Cmd{
		Name:    "close",
		Aliases: []string{"d"},
		Help:    "DEVICE",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("DEVICE required"))
				return
			}
			if err := ShellFrom(c).CloseDevice(c.Args[0]); err != nil {
				c.Err(err)
			}
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(vehicle.NewConfig()).Run(flag.Args()...)
}
