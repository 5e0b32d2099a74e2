package telemetry

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"
	"golang.org/x/net/websocket"

	"github.com/evt-autonomy/vehicle.go/pkg/cli/sh"
	"github.com/evt-autonomy/vehicle.go/pkg/netio"
	"github.com/evt-autonomy/vehicle.go/pkg/telemetry"
)

const (
	defaultCount = 10
	pollInterval = 10 * time.Millisecond
	listenWait   = 5 * time.Second
)

func countArg(c *ishell.Context, n int) (int, error) {
	if len(c.Args) <= n {
		return defaultCount, nil
	}
	count, err := strconv.Atoi(c.Args[n])
	if err != nil {
		return 0, fmt.Errorf("Invalid COUNT: %v", err)
	}
	return count, nil
}

func printRecord(c *ishell.Context, rec telemetry.Record) {
	if sh.ShellFrom(c).OutputJSON {
		sh.Print(c, rec.JSON())
		return
	}
	c.Printf("%s %s\n", rec.At.Format("15:04:05.000"), rec.CSV())
}

// Receive reads a JSON record from a websocket.
func Receive(conn *websocket.Conn) (telemetry.Record, error) {
	var rec telemetry.JSONRecord
	if err := websocket.JSON.Receive(conn, &rec); err != nil {
		return telemetry.Record{}, err
	}
	return rec.Record(), nil
}

var (
	// TelemetryListenCmd prints received telemetry datagrams.
	TelemetryListenCmd = ishell.Cmd{
		Name:    "telemetry.listen",
		Aliases: []string{"tl"},
		Help:    "[ADDR] [COUNT]",
		Func: func(c *ishell.Context) {
			addr := sh.ShellFrom(c).Config.TelemetryAddr
			if len(c.Args) > 0 {
				addr = c.Args[0]
			}
			if _, port, err := net.SplitHostPort(addr); err == nil {
				addr = ":" + port
			}
			count, err := countArg(c, 1)
			if err != nil {
				c.Err(err)
				return
			}
			ep, err := netio.Listen(addr, 0)
			if err != nil {
				c.Err(err)
				return
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go ep.Run(ctx)
			deadline := time.Now().Add(listenWait)
			for n := 0; n < count; {
				d, ok := ep.Recv()
				if !ok {
					if time.Now().After(deadline) {
						c.Err(fmt.Errorf("no telemetry on %s", addr))
						return
					}
					time.Sleep(pollInterval)
					continue
				}
				deadline = time.Now().Add(listenWait)
				rec, err := telemetry.ParseCSV(string(d.Data), d.At)
				if err != nil {
					c.Printf("%v: %q\n", err, d.Data)
					continue
				}
				printRecord(c, rec)
				n++
			}
		},
	}

	// TelemetryWatchCmd prints records from the websocket endpoint.
	TelemetryWatchCmd = ishell.Cmd{
		Name:    "telemetry.watch",
		Aliases: []string{"tw"},
		Help:    "URL [COUNT]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("URL required"))
				return
			}
			count, err := countArg(c, 1)
			if err != nil {
				c.Err(err)
				return
			}
			conn, err := websocket.Dial(c.Args[0], "", "http://localhost/")
			if err != nil {
				c.Err(err)
				return
			}
			defer conn.Close()
			for n := 0; n < count; n++ {
				conn.SetReadDeadline(time.Now().Add(listenWait))
				rec, err := Receive(conn)
				if err != nil {
					c.Err(err)
					return
				}
				printRecord(c, rec)
			}
		},
	}
)

func init() {
	sh.AddCmds(
		&TelemetryListenCmd,
		&TelemetryWatchCmd,
	)
}
