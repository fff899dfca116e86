package connectivity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func reachable(v bool) *bool { return &v }

var (
	wifi    = State{IsConnected: true, IsInternetReachable: reachable(true), Type: "wifi"}
	captive = State{IsConnected: true, IsInternetReachable: reachable(false), Type: "wifi"}
	probing = State{IsConnected: true, Type: "cellular"}
	offline = State{Type: "none"}
)

func TestStateOnline(t *testing.T) {
	assert.True(t, wifi.Online())
	assert.True(t, probing.Online())
	assert.False(t, captive.Online())
	assert.False(t, offline.Online())
}

func TestUnknownCountsAsOnline(t *testing.T) {
	m := New(zap.NewNop())
	assert.True(t, m.Online())

	_, known := m.Current()
	assert.False(t, known)
}

func TestListenersFireOnTransitionOnly(t *testing.T) {
	ctx := context.Background()
	m := New(zap.NewNop())

	fired := 0
	m.OnOnline(func(context.Context) { fired++ })

	assert.True(t, m.Update(ctx, wifi), "first online report drains")
	assert.False(t, m.Update(ctx, wifi))
	assert.False(t, m.Update(ctx, probing))
	assert.Equal(t, 1, fired)

	assert.False(t, m.Update(ctx, offline))
	assert.False(t, m.Online())
	assert.False(t, m.Update(ctx, captive))

	assert.True(t, m.Update(ctx, wifi))
	assert.Equal(t, 2, fired)
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	m := New(zap.NewNop())
	fired := make(chan struct{}, 4)
	m.OnOnline(func(context.Context) { fired <- struct{}{} })

	updates := make(chan State, 3)
	updates <- offline
	updates <- wifi
	updates <- wifi
	close(updates)

	require.NoError(t, m.Run(context.Background(), updates))
	assert.Len(t, fired, 1)

	s, known := m.Current()
	assert.True(t, known)
	assert.Equal(t, wifi, s)
}

func TestRunStopsOnCancel(t *testing.T) {
	m := New(zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.Run(ctx, make(chan State))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
