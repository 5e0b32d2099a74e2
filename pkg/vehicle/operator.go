package vehicle

import (
	"context"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	fx "github.com/evt-autonomy/vehicle.go/pkg/framework"
	"github.com/evt-autonomy/vehicle.go/pkg/supervisor"
)

// DefaultCommandKey is the list operator commands are pushed to.
const DefaultCommandKey = "vehicle:command"

const (
	commandPollTimeout = 5 * time.Second
	commandRetryDelay  = time.Second
)

// CommandLister is the part of redis.Cmdable used by Operator.
type CommandLister interface {
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Operator pops operator commands from a Redis list and posts them to
// the loop.
type Operator struct {
	Client CommandLister
	Key    string
	Clock  clock.Clock
	// Loop defaults to the loop running the Operator.
	Loop fx.LoopControl
}

// NewOperator creates an Operator on DefaultCommandKey.
func NewOperator(client CommandLister) *Operator {
	return &Operator{Client: client, Key: DefaultCommandKey, Clock: clock.New()}
}

// ParseCommand maps a list entry to an operator command.
func ParseCommand(s string) (supervisor.OperatorCommand, error) {
	switch cmd := supervisor.OperatorCommand(strings.ToLower(strings.TrimSpace(s))); cmd {
	case supervisor.CommandReset, supervisor.CommandEstop:
		return cmd, nil
	}
	return "", errors.Errorf("unknown operator command %q", s)
}

// Run implements framework.Runnable.
func (o *Operator) Run(ctx context.Context) error {
	lc := o.Loop
	if lc == nil {
		lc = fx.LoopCtlFrom(ctx)
	}
	glog.Infof("operator commands on %s", o.Key)
	for {
		res, err := o.Client.BRPop(ctx, commandPollTimeout, o.Key).Result()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == redis.Nil {
			continue
		}
		if err != nil {
			glog.Warningf("operator BRPOP %s: %v", o.Key, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-o.Clock.After(commandRetryDelay):
			}
			continue
		}
		// [key, value]
		if len(res) < 2 {
			continue
		}
		cmd, err := ParseCommand(res[1])
		if err != nil {
			glog.Warning(err)
			continue
		}
		glog.Infof("operator command %s", cmd)
		lc.PostMessage(cmd)
		lc.TriggerNext()
	}
}
