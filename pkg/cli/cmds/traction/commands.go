package traction

import (
	"context"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/evt-autonomy/vehicle.go/pkg/cli/sh"
	"github.com/evt-autonomy/vehicle.go/pkg/vehicle"
)

func parseFloatArg(c *ishell.Context, name string) (float32, bool) {
	if len(c.Args) < 1 {
		c.Err(fmt.Errorf("%s required", name))
		return 0, false
	}
	val, err := strconv.ParseFloat(c.Args[0], 32)
	if err != nil {
		c.Err(fmt.Errorf("Invalid %s: %v", name, err))
		return 0, false
	}
	return float32(val), true
}

var (
	// TractionOpenCmd opens a traction controller.
	TractionOpenCmd = ishell.Cmd{
		Name:    "traction.open",
		Aliases: []string{"to"},
		Help:    "[PORT[#CAN-ID]]",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			var target string
			if len(c.Args) > 0 {
				target = c.Args[0]
			} else if ports, err := vehicle.ParseTractionPorts(s.Config.TractionPorts); err == nil && len(ports) > 0 {
				target = ports[0].Path
			}
			if target == "" {
				c.Err(fmt.Errorf("PORT required"))
				return
			}
			if err := s.OpenTraction(context.Background(), target); err != nil {
				c.Err(err)
				return
			}
			c.Printf("traction %s opened\n", target)
		},
	}

	// TractionRPMCmd commands an electrical RPM.
	TractionRPMCmd = ishell.Cmd{
		Name:    "traction.rpm",
		Aliases: []string{"tr"},
		Help:    "RPM",
		Func: sh.MustHaveTraction(func(c *ishell.Context) {
			rpm, ok := parseFloatArg(c, "RPM")
			if !ok {
				return
			}
			if err := sh.ShellFrom(c).Traction.SetRPM(rpm); err != nil {
				c.Err(err)
			}
		}),
	}

	// TractionDutyCmd commands a duty cycle.
	TractionDutyCmd = ishell.Cmd{
		Name:    "traction.duty",
		Aliases: []string{"td"},
		Help:    "DUTY(-1..1)",
		Func: sh.MustHaveTraction(func(c *ishell.Context) {
			duty, ok := parseFloatArg(c, "DUTY")
			if !ok {
				return
			}
			if duty < -1 || duty > 1 {
				c.Err(fmt.Errorf("DUTY out of range"))
				return
			}
			if err := sh.ShellFrom(c).Traction.SetDuty(duty); err != nil {
				c.Err(err)
			}
		}),
	}

	// TractionCurrentCmd commands a motor current.
	TractionCurrentCmd = ishell.Cmd{
		Name:    "traction.current",
		Aliases: []string{"tc"},
		Help:    "AMPS",
		Func: sh.MustHaveTraction(func(c *ishell.Context) {
			amps, ok := parseFloatArg(c, "AMPS")
			if !ok {
				return
			}
			if err := sh.ShellFrom(c).Traction.SetCurrent(amps); err != nil {
				c.Err(err)
			}
		}),
	}

	// TractionStopCmd commands zero RPM.
	TractionStopCmd = ishell.Cmd{
		Name:    "traction.stop",
		Aliases: []string{"ts"},
		Help:    "",
		Func: sh.MustHaveTraction(func(c *ishell.Context) {
			if err := sh.ShellFrom(c).Traction.SetRPM(0); err != nil {
				c.Err(err)
			}
		}),
	}

	// TractionValuesCmd reads the controller values.
	TractionValuesCmd = ishell.Cmd{
		Name:    "traction.values",
		Aliases: []string{"tv"},
		Help:    "",
		Func: sh.MustHaveTraction(func(c *ishell.Context) {
			v, err := sh.ShellFrom(c).Traction.GetValues(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			if sh.ShellFrom(c).OutputJSON {
				sh.Print(c, v)
				return
			}
			c.Printf("rpm %.0f input %.2fV %.2fA duty %.3f mosfet %.1fC motor %.1fC fault %s\n",
				v.RPM, v.InputVoltage, v.AvgInputCurrent, v.DutyCycle, v.TempMosfet, v.TempMotor, v.Fault)
		}),
	}
)

func init() {
	sh.AddCmds(
		&TractionOpenCmd,
		&TractionRPMCmd,
		&TractionDutyCmd,
		&TractionCurrentCmd,
		&TractionStopCmd,
		&TractionValuesCmd,
	)
}
