package steer

import (
	"context"
	"fmt"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/evt-autonomy/vehicle.go/pkg/cli/sh"
	"github.com/evt-autonomy/vehicle.go/pkg/l0/odrive"
)

// CalibrationStatus is printed after steer.calibrate.
type CalibrationStatus struct {
	State string  `json:"state"`
	Zero  float32 `json:"zero"`
	Min   float32 `json:"min"`
	Max   float32 `json:"max"`
}

// ErrorStatus is printed by steer.errors.
type ErrorStatus struct {
	Code  uint32   `json:"code"`
	Words string   `json:"words"`
	Names []string `json:"names,omitempty"`
}

var (
	// SteerOpenCmd opens the steering controller.
	SteerOpenCmd = ishell.Cmd{
		Name:    "steer.open",
		Aliases: []string{"so"},
		Help:    "[PORT|can:IFACE]",
		Func: func(c *ishell.Context) {
			s := sh.ShellFrom(c)
			target := s.Config.SteeringPort
			if s.Config.SteeringCAN != "" {
				target = "can:" + s.Config.SteeringCAN
			}
			if len(c.Args) > 0 {
				target = c.Args[0]
			}
			if err := s.OpenSteering(context.Background(), target); err != nil {
				c.Err(err)
				return
			}
			c.Printf("steering %s: %s\n", target, s.Steering.State())
		},
	}

	// SteerCalibrateCmd runs the calibration sequence.
	SteerCalibrateCmd = ishell.Cmd{
		Name:    "steer.calibrate",
		Aliases: []string{"scal"},
		Help:    "",
		Func: sh.MustHaveSteering(func(c *ishell.Context) {
			drv := sh.ShellFrom(c).Steering
			if err := drv.Calibrate(context.Background()); err != nil {
				c.Err(err)
				return
			}
			ss := drv.Session()
			sh.Print(c, CalibrationStatus{State: ss.State.String(), Zero: ss.Zero, Min: ss.Min, Max: ss.Max})
		}),
	}

	// SteerPosCmd sets an absolute position.
	SteerPosCmd = ishell.Cmd{
		Name:    "steer.pos",
		Aliases: []string{"sp"},
		Help:    "TURNS",
		Func: sh.MustHaveSteering(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("TURNS required"))
				return
			}
			val, err := strconv.ParseFloat(c.Args[0], 32)
			if err != nil {
				c.Err(fmt.Errorf("Invalid TURNS: %v", err))
				return
			}
			drv := sh.ShellFrom(c).Steering
			if err := drv.SetTargetAbs(float32(val)); err != nil {
				c.Err(err)
				return
			}
			if err := drv.Push(context.Background()); err != nil {
				c.Err(err)
				return
			}
			c.Printf("target %.3f\n", drv.Session().LastTarget)
		}),
	}

	// SteerErrorsCmd reads the error words.
	SteerErrorsCmd = ishell.Cmd{
		Name:    "steer.errors",
		Aliases: []string{"se"},
		Help:    "",
		Func: sh.MustHaveSteering(func(c *ishell.Context) {
			words, err := sh.ShellFrom(c).Steering.Axis().Errors(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			sh.Print(c, ErrorStatus{Code: words.Code(), Words: words.String(), Names: odrive.ErrorNames(words.Axis)})
		}),
	}

	// SteerClearCmd clears the controller errors.
	SteerClearCmd = ishell.Cmd{
		Name:    "steer.clear",
		Aliases: []string{"sc"},
		Help:    "",
		Func: sh.MustHaveSteering(func(c *ishell.Context) {
			if err := sh.ShellFrom(c).Steering.ClearFaults(context.Background()); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// SteerFeedbackCmd reads position, velocity and bus values.
	SteerFeedbackCmd = ishell.Cmd{
		Name:    "steer.feedback",
		Aliases: []string{"sf"},
		Help:    "",
		Func: sh.MustHaveSteering(func(c *ishell.Context) {
			fb, err := sh.ShellFrom(c).Steering.PollFeedback(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			sh.Print(c, fb)
		}),
	}
)

func init() {
	sh.AddCmds(
		&SteerOpenCmd,
		&SteerCalibrateCmd,
		&SteerPosCmd,
		&SteerErrorsCmd,
		&SteerClearCmd,
		&SteerFeedbackCmd,
	)
}
