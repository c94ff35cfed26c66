// Package station tracks the stations active on a wire.
package station

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

const (
	// defaultTTL is how long a station stays on the roster after its
	// last ID announcement. Stations announce every ten seconds, so
	// this tolerates a few dropped announcements.
	defaultTTL = 40 * time.Second

	defaultSweepInterval = 5 * time.Second
)

// Info describes one station heard on the wire.
type Info struct {
	ID string

	// FirstHeard is when the station's first announcement arrived.
	FirstHeard time.Time

	// LastHeard is when the most recent announcement arrived.
	LastHeard time.Time

	// LastSent is when the station last sent code,
	// or the zero time if it has only announced itself.
	LastSent time.Time
}

// RosterConfig is the configuration for a [Roster].
//
// The callbacks are invoked synchronously from whatever goroutine
// delivered the update, or from the expiry task. They must not call
// back into the roster.
type RosterConfig struct {
	// TTL is how long a silent station stays listed.
	// Zero means the default.
	TTL time.Duration

	// SweepInterval is how often expired stations are removed.
	// Zero means the default.
	SweepInterval time.Duration

	OnArrived  func(Info)
	OnDeparted func(Info)
}

// Roster is the set of stations currently heard on a wire, expiring
// entries that stop announcing themselves. Wire the roster's Heard
// and SenderChanged methods to the corresponding client callbacks.
type Roster struct {
	log *slog.Logger

	ttl        time.Duration
	onArrived  func(Info)
	onDeparted func(Info)

	mu            sync.RWMutex
	stations      map[string]*Info
	currentSender string

	wg sync.WaitGroup
}

// NewRoster returns a Roster and starts its expiry task.
// Cancel ctx to stop the task, then use [(*Roster).Wait].
func NewRoster(ctx context.Context, log *slog.Logger, cfg RosterConfig) *Roster {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = defaultSweepInterval
	}

	r := &Roster{
		log: log,

		ttl:        ttl,
		onArrived:  cfg.OnArrived,
		onDeparted: cfg.OnDeparted,

		stations: make(map[string]*Info),
	}

	r.wg.Add(1)
	go r.runExpiry(ctx, sweep)

	return r
}

// Wait blocks until the expiry task has stopped.
func (r *Roster) Wait() {
	r.wg.Wait()
}

// Heard records a station announcement. New stations trigger the
// arrival callback.
func (r *Roster) Heard(id string) {
	if id == "" {
		return
	}
	now := time.Now()

	r.mu.Lock()
	info, ok := r.stations[id]
	if ok {
		info.LastHeard = now
		r.mu.Unlock()
		return
	}
	info = &Info{ID: id, FirstHeard: now, LastHeard: now}
	r.stations[id] = info
	arrived := *info
	r.mu.Unlock()

	r.log.Debug("Station arrived", "station", id)
	if r.onArrived != nil {
		r.onArrived(arrived)
	}
}

// SenderChanged records that a station began sending code.
// A sender that was never heard announcing is added to the roster.
func (r *Roster) SenderChanged(id string) {
	if id == "" {
		return
	}
	now := time.Now()

	r.mu.Lock()
	info, ok := r.stations[id]
	var arrived *Info
	if !ok {
		info = &Info{ID: id, FirstHeard: now}
		r.stations[id] = info
		a := *info
		arrived = &a
	}
	info.LastHeard = now
	info.LastSent = now
	r.currentSender = id
	r.mu.Unlock()

	if arrived != nil && r.onArrived != nil {
		r.onArrived(*arrived)
	}
}

// CurrentSender returns the station last reported as sending,
// or the empty string.
func (r *Roster) CurrentSender() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentSender
}

// Stations returns the roster in display order: the current sender
// first, then stations that have sent from least to most recently
// (so the next natural sender sorts high), then stations that have
// only announced themselves, oldest arrival first.
func (r *Roster) Stations() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.stations))
	for _, info := range r.stations {
		out = append(out, *info)
	}
	sender := r.currentSender
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.ID == sender) != (b.ID == sender) {
			return a.ID == sender
		}
		if a.LastSent.IsZero() != b.LastSent.IsZero() {
			return b.LastSent.IsZero()
		}
		if !a.LastSent.Equal(b.LastSent) {
			return a.LastSent.Before(b.LastSent)
		}
		return a.FirstHeard.Before(b.FirstHeard)
	})
	return out
}

func (r *Roster) runExpiry(ctx context.Context, sweep time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			r.expire(time.Now())
		}
	}
}

// expire removes stations whose last announcement is older than the
// TTL, invoking the departure callback for each.
func (r *Roster) expire(now time.Time) {
	cutoff := now.Add(-r.ttl)

	r.mu.Lock()
	var departed []Info
	for id, info := range r.stations {
		if info.LastHeard.Before(cutoff) {
			departed = append(departed, *info)
			delete(r.stations, id)
			if r.currentSender == id {
				r.currentSender = ""
			}
		}
	}
	r.mu.Unlock()

	for _, info := range departed {
		r.log.Debug("Station departed", "station", info.ID)
		if r.onDeparted != nil {
			r.onDeparted(info)
		}
	}
}
