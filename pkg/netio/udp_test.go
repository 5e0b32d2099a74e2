package netio

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointSendRecv(t *testing.T) {
	a, err := Listen("127.0.0.1:0", TOSLowDelay)
	require.NoError(t, err)
	b, err := Listen("127.0.0.1:0", 0)
	require.NoError(t, err)
	mock := clock.NewMock()
	b.Clock = mock

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)
	defer a.Close()

	_, ok := b.Recv()
	assert.False(t, ok)

	require.NoError(t, a.Send(b.LocalAddr(), []byte("0.5,20,0")))
	var d Datagram
	require.Eventually(t, func() bool {
		d, ok = b.Recv()
		return ok
	}, time.Second, time.Millisecond)
	assert.Equal(t, "0.5,20,0", string(d.Data))
	assert.Equal(t, a.LocalAddr().Port, d.From.Port)
	assert.Equal(t, mock.Now(), d.At)
}

func TestEndpointDropsOldest(t *testing.T) {
	e := &Endpoint{inbox: make(chan Datagram, 2)}
	for i := byte(0); i < 4; i++ {
		e.push(Datagram{Data: []byte{i}})
	}
	assert.Equal(t, uint64(2), e.Dropped())
	d, ok := e.Recv()
	require.True(t, ok)
	assert.Equal(t, []byte{2}, d.Data)
}

func TestEndpointRunStopsOnCancel(t *testing.T) {
	e, err := Listen("127.0.0.1:0", 0)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
