package rc

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evt-autonomy/vehicle.go/pkg/l0/sbus"
)

func TestProviderPoll(t *testing.T) {
	mock := clock.NewMock()
	p := NewProvider(nil)
	p.Clock = mock

	assert.False(t, p.Poll())
	_, ok := p.Snapshot()
	assert.False(t, ok)

	var f sbus.Frame
	f.Channels[ChSteering] = 410
	f.Channels[12] = 999
	f.Failsafe = true
	p.HandleFrame(f)
	assert.True(t, p.Poll())
	assert.False(t, p.Poll())

	s, ok := p.Snapshot()
	require.True(t, ok)
	assert.Equal(t, uint16(410), s.Channel(ChSteering))
	assert.Equal(t, uint16(0), s.Channel(12))
	assert.True(t, s.Failsafe)
	assert.True(t, s.Fresh(mock.Now(), DefaultStaleAfter))

	mock.Add(DefaultStaleAfter + time.Millisecond)
	assert.False(t, s.Fresh(mock.Now(), DefaultStaleAfter))
}

func TestProviderReadsSerial(t *testing.T) {
	var f sbus.Frame
	f.Channels[ChThrottle] = 1345
	p := NewProvider(bytes.NewReader(sbus.Encode(f)))
	assert.Equal(t, io.EOF, p.Run(context.Background()))
	require.True(t, p.Poll())
	s, _ := p.Snapshot()
	assert.Equal(t, uint16(1345), s.Channel(ChThrottle))
}
