package autonomy

import (
	"fmt"
	"net"
	"strconv"

	"github.com/abiosoft/ishell"

	"github.com/evt-autonomy/vehicle.go/pkg/autonomy"
	"github.com/evt-autonomy/vehicle.go/pkg/cli/sh"
	"github.com/evt-autonomy/vehicle.go/pkg/netio"
)

// Destination resolves the autonomy address of the node. A listen
// address without host is sent to localhost.
func Destination(addr string) (*net.UDPAddr, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return net.ResolveUDPAddr("udp4", net.JoinHostPort(host, port))
}

var (
	// AutoSendCmd sends one autonomy command datagram.
	AutoSendCmd = ishell.Cmd{
		Name:    "auto.send",
		Aliases: []string{"as"},
		Help:    "STEER(turns) THROTTLE(%) EMERGENCY(0|1) [ADDR]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 3 {
				c.Err(fmt.Errorf("STEER THROTTLE EMERGENCY required"))
				return
			}
			var cmd autonomy.Command
			val, err := strconv.ParseFloat(c.Args[0], 32)
			if err != nil {
				c.Err(fmt.Errorf("Invalid STEER: %v", err))
				return
			}
			cmd.Steering = float32(val)
			if val, err = strconv.ParseFloat(c.Args[1], 32); err != nil {
				c.Err(fmt.Errorf("Invalid THROTTLE: %v", err))
				return
			}
			cmd.ThrottlePct = float32(val)
			emergency, err := strconv.Atoi(c.Args[2])
			if err != nil {
				c.Err(fmt.Errorf("Invalid EMERGENCY: %v", err))
				return
			}
			cmd.Emergency = emergency != 0

			addr := sh.ShellFrom(c).Config.AutonomyAddr
			if len(c.Args) > 3 {
				addr = c.Args[3]
			}
			dst, err := Destination(addr)
			if err != nil {
				c.Err(err)
				return
			}
			ep, err := netio.Listen(":0", netio.TOSLowDelay)
			if err != nil {
				c.Err(err)
				return
			}
			defer ep.Close()
			data := autonomy.Format(cmd)
			if err := ep.Send(dst, data); err != nil {
				c.Err(err)
				return
			}
			c.Printf("%s -> %s\n", data, dst)
		},
	}
)

func init() {
	sh.AddCmds(&AutoSendCmd)
}
