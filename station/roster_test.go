package station

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/telegraph-engine/kobwire/internal/ktest"
)

func newRoster(t *testing.T, cfg RosterConfig) *Roster {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRoster(ctx, ktest.NewLogger(t), cfg)
	t.Cleanup(func() {
		cancel()
		r.Wait()
	})
	return r
}

func TestRoster_heardAddsOnce(t *testing.T) {
	t.Parallel()

	var arrived []string
	r := newRoster(t, RosterConfig{
		OnArrived: func(info Info) {
			arrived = append(arrived, info.ID)
		},
	})

	r.Heard("AC, Albany NY")
	r.Heard("AC, Albany NY")
	r.Heard("XQ, Quincy IL")
	r.Heard("")

	require.Equal(t, []string{"AC, Albany NY", "XQ, Quincy IL"}, arrived)
	require.Len(t, r.Stations(), 2)
}

func TestRoster_heardRefreshesLastHeard(t *testing.T) {
	t.Parallel()

	r := newRoster(t, RosterConfig{})

	r.Heard("AC")
	first := r.Stations()[0]

	time.Sleep(5 * time.Millisecond)
	r.Heard("AC")
	second := r.Stations()[0]

	require.Equal(t, first.FirstHeard, second.FirstHeard)
	require.True(t, second.LastHeard.After(first.LastHeard))
}

func TestRoster_senderChangedAddsUnknownStation(t *testing.T) {
	t.Parallel()

	var arrived []string
	r := newRoster(t, RosterConfig{
		OnArrived: func(info Info) {
			arrived = append(arrived, info.ID)
		},
	})

	r.SenderChanged("AC")

	require.Equal(t, []string{"AC"}, arrived)
	require.Equal(t, "AC", r.CurrentSender())
	require.False(t, r.Stations()[0].LastSent.IsZero())
}

func TestRoster_stationsOrder(t *testing.T) {
	t.Parallel()

	r := newRoster(t, RosterConfig{})

	r.Heard("AA")
	r.Heard("BB")
	r.Heard("DD")

	time.Sleep(2 * time.Millisecond)
	r.SenderChanged("AA")
	time.Sleep(2 * time.Millisecond)
	r.SenderChanged("BB")

	// Current sender first, then past senders oldest first,
	// then stations that have never sent.
	var ids []string
	for _, info := range r.Stations() {
		ids = append(ids, info.ID)
	}
	require.Equal(t, []string{"BB", "AA", "DD"}, ids)
}

func TestRoster_expireDepartsSilentStations(t *testing.T) {
	t.Parallel()

	var departed []string
	r := newRoster(t, RosterConfig{
		OnDeparted: func(info Info) {
			departed = append(departed, info.ID)
		},
	})

	r.Heard("AC")
	r.SenderChanged("AC")

	r.expire(time.Now().Add(time.Hour))

	require.Equal(t, []string{"AC"}, departed)
	require.Empty(t, r.Stations())
	require.Empty(t, r.CurrentSender())
}

func TestRoster_expiryTaskRuns(t *testing.T) {
	t.Parallel()

	departed := make(chan string, 4)
	r := newRoster(t, RosterConfig{
		TTL:           20 * time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
		OnDeparted: func(info Info) {
			departed <- info.ID
		},
	})

	r.Heard("AC")

	require.Equal(t, "AC", ktest.ReceiveSoon(t, departed))
}
