// Package netio provides the datagram transport between the vehicle and
// the autonomy host.
package netio

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"
)

// MaxDatagramSize bounds received datagrams.
const MaxDatagramSize = 1500

// DefaultInboxSize is the number of datagrams buffered between reads.
const DefaultInboxSize = 16

// TOSLowDelay is DSCP EF, used for control traffic.
const TOSLowDelay = 0xb8

// Datagram is a received datagram.
type Datagram struct {
	Data []byte
	From *net.UDPAddr
	At   time.Time
}

// Endpoint is a UDP socket with a non-blocking receive side: a
// background reader fills a bounded inbox, the oldest datagram is
// dropped when it's full.
type Endpoint struct {
	Clock clock.Clock

	conn    *net.UDPConn
	inbox   chan Datagram
	dropped uint64
	lock    sync.Mutex
}

// Listen opens an endpoint on addr (e.g. ":9000", "0.0.0.0:0"). A
// non-zero tos marks outgoing datagrams.
func Listen(addr string, tos int) (*Endpoint, error) {
	laddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", addr)
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", addr)
	}
	if tos != 0 {
		if err := ipv4.NewConn(conn).SetTOS(tos); err != nil {
			glog.Warningf("set TOS 0x%x on %s: %v", tos, addr, err)
		}
	}
	return &Endpoint{
		Clock: clock.New(),
		conn:  conn,
		inbox: make(chan Datagram, DefaultInboxSize),
	}, nil
}

// LocalAddr returns the bound address.
func (e *Endpoint) LocalAddr() *net.UDPAddr {
	return e.conn.LocalAddr().(*net.UDPAddr)
}

// Run reads datagrams until the context is canceled.
func (e *Endpoint) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		e.conn.Close()
	}()
	buf := make([]byte, MaxDatagramSize)
	for {
		n, from, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "udp read")
		}
		e.push(Datagram{
			Data: append([]byte(nil), buf[:n]...),
			From: from,
			At:   e.Clock.Now(),
		})
	}
}

func (e *Endpoint) push(d Datagram) {
	for {
		select {
		case e.inbox <- d:
			return
		default:
		}
		select {
		case <-e.inbox:
			e.lock.Lock()
			e.dropped++
			e.lock.Unlock()
		default:
		}
	}
}

// Recv returns at most one datagram without blocking.
func (e *Endpoint) Recv() (Datagram, bool) {
	select {
	case d := <-e.inbox:
		return d, true
	default:
		return Datagram{}, false
	}
}

// Dropped is the number of datagrams dropped on a full inbox.
func (e *Endpoint) Dropped() uint64 {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.dropped
}

// Send writes a datagram. UDP writes don't wait for the peer.
func (e *Endpoint) Send(dst *net.UDPAddr, b []byte) error {
	_, err := e.conn.WriteToUDP(b, dst)
	return err
}

// Close closes the socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}
