package main

import (
	"github.com/evt-autonomy/vehicle.go/pkg/cli/sh"
	"github.com/evt-autonomy/vehicle.go/pkg/steering"
	"github.com/evt-autonomy/vehicle.go/pkg/vehicle"

	_ "github.com/evt-autonomy/vehicle.go/pkg/cli/cmds/all"
)

//go-build: CGO_ENABLED=0

func init() {
	vehicle.SetupFlags()
	steering.SetupFlags()
}

func main() {
	sh.Main()
}
