package all

import (
	// import all command packages.
	_ "github.com/evt-autonomy/vehicle.go/pkg/cli/cmds/autonomy"
	_ "github.com/evt-autonomy/vehicle.go/pkg/cli/cmds/steer"
	_ "github.com/evt-autonomy/vehicle.go/pkg/cli/cmds/telemetry"
	_ "github.com/evt-autonomy/vehicle.go/pkg/cli/cmds/traction"
)
