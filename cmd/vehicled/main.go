package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/evt-autonomy/vehicle.go/pkg/hw"
	"github.com/evt-autonomy/vehicle.go/pkg/steering"
	"github.com/evt-autonomy/vehicle.go/pkg/supervisor"
	"github.com/evt-autonomy/vehicle.go/pkg/traction"
	"github.com/evt-autonomy/vehicle.go/pkg/vehicle"
)

func init() {
	vehicle.SetupFlags()
	supervisor.SetupFlags()
	steering.SetupFlags()
	traction.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := vehicle.NewConfig()
	if conf.MLock {
		if err := hw.LockMemory(); err != nil {
			glog.Warningf("mlock: %v", err)
		}
	}
	v := conf.MustNewVehicle()
	defer v.Close()
	v.Loop.RunOrFail()
}
