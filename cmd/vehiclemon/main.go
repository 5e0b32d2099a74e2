package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/golang/protobuf/proto"

	"github.com/evt-autonomy/vehicle.go/pkg/msgs"
	"github.com/evt-autonomy/vehicle.go/pkg/mqtt"
	"github.com/evt-autonomy/vehicle.go/pkg/telemetry"
	"github.com/evt-autonomy/vehicle.go/pkg/vehicle"
)

var (
	mqttURL = "mqtt://localhost:1883/vehicle/"
)

func init() {
	if val := os.Getenv("VEHICLE_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = q.Connect(ctx)
	cancel()
	if err != nil {
		log.Fatalln(err)
	}

	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		var msg proto.Message
		switch topic {
		case telemetry.DefaultMQTTTopic:
			msg = &msgs.TelemetryRecord{}
		case vehicle.DefaultErrorTopic:
			msg = &msgs.ErrorEvent{}
		default:
			log.Printf("%s: %d bytes", topic, len(payload))
			return
		}
		if err := msgs.Decode(payload, msg); err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		if rec, ok := msg.(*msgs.TelemetryRecord); ok {
			log.Printf("%s: [%s] %s", topic, rec.NodeId, telemetry.FromProto(rec).CSV())
			return
		}
		log.Printf("%s: %s", topic, msg.String())
	}))
	<-(chan struct{})(nil)
}
