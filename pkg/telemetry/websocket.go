package telemetry

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// DefaultWebsocketPath is where dashboards connect.
const DefaultWebsocketPath = "/telemetry"

const wsWriteTimeout = time.Second

// JSONRecord is the websocket form of a record, missing values are null.
type JSONRecord struct {
	Mode               string   `json:"mode"`
	RPM                *float32 `json:"rpm"`
	InputVoltage       *float32 `json:"input_voltage"`
	SteeringBusVoltage *float32 `json:"steering_bus_voltage"`
	InputCurrent       *float32 `json:"input_current"`
	SteeringBusCurrent *float32 `json:"steering_bus_current"`
	Position           *float32 `json:"steering_position"`
	Velocity           *float32 `json:"steering_velocity"`
	TimestampMs        int64    `json:"timestamp_ms"`
}

func optional(v float32) *float32 {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return nil
	}
	return &v
}

// JSON converts a record for the websocket.
func (r Record) JSON() JSONRecord {
	return JSONRecord{
		Mode:               r.Mode,
		RPM:                optional(r.RPM),
		InputVoltage:       optional(r.InputVoltage),
		SteeringBusVoltage: optional(r.SteeringBusVoltage),
		InputCurrent:       optional(r.InputCurrent),
		SteeringBusCurrent: optional(r.SteeringBusCurrent),
		Position:           optional(r.Position),
		Velocity:           optional(r.Velocity),
		TimestampMs:        r.At.UnixNano() / int64(time.Millisecond),
	}
}

func value(v *float32) float32 {
	if v == nil {
		return float32(math.NaN())
	}
	return *v
}

// Record converts back, missing values become NaN.
func (j JSONRecord) Record() Record {
	return Record{
		Mode:               j.Mode,
		RPM:                value(j.RPM),
		InputVoltage:       value(j.InputVoltage),
		SteeringBusVoltage: value(j.SteeringBusVoltage),
		InputCurrent:       value(j.InputCurrent),
		SteeringBusCurrent: value(j.SteeringBusCurrent),
		Position:           value(j.Position),
		Velocity:           value(j.Velocity),
		At:                 time.Unix(0, j.TimestampMs*int64(time.Millisecond)),
	}
}

// WebsocketSink broadcasts records to connected dashboards.
type WebsocketSink struct {
	upgrader websocket.Upgrader

	lock    sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewWebsocketSink creates a WebsocketSink.
func NewWebsocketSink() *WebsocketSink {
	return &WebsocketSink{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Clients returns the number of connected clients.
func (s *WebsocketSink) Clients() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.clients)
}

// ServeHTTP implements http.Handler.
func (s *WebsocketSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("telemetry websocket upgrade: %v", err)
		return
	}
	s.lock.Lock()
	s.clients[conn] = struct{}{}
	s.lock.Unlock()
	glog.Infof("telemetry client %s connected", conn.RemoteAddr())

	// dashboards don't send anything, reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.drop(conn)
}

func (s *WebsocketSink) drop(conn *websocket.Conn) {
	s.lock.Lock()
	_, ok := s.clients[conn]
	delete(s.clients, conn)
	s.lock.Unlock()
	if ok {
		conn.Close()
		glog.Infof("telemetry client %s disconnected", conn.RemoteAddr())
	}
}

// Publish implements Sink.
func (s *WebsocketSink) Publish(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec.JSON())
	if err != nil {
		return err
	}
	s.lock.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.lock.Unlock()
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			glog.Warningf("telemetry client %s: %v", conn.RemoteAddr(), err)
			s.drop(conn)
		}
	}
	return nil
}

// Close disconnects all clients.
func (s *WebsocketSink) Close() error {
	s.lock.Lock()
	conns := s.clients
	s.clients = make(map[*websocket.Conn]struct{})
	s.lock.Unlock()
	for conn := range conns {
		conn.Close()
	}
	return nil
}

// Serve runs an HTTP server with the sink at DefaultWebsocketPath until
// the context is canceled.
func (s *WebsocketSink) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(DefaultWebsocketPath, s)
	server := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		s.Close()
		return ctx.Err()
	}
}
