package match

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pitchside/pitchside/metrics"
)

// DefaultTickInterval is the frame budget for every room in the process.
const DefaultTickInterval = 50 * time.Millisecond

// Scheduler drives the shared game loop: one ticker, every registered
// room advanced each frame through Manager.TickRoom. Registration is
// idempotent and safe from any goroutine.
type Scheduler struct {
	mu    sync.Mutex
	rooms map[string]struct{}

	interval time.Duration
	mgr      *Manager
	log      zerolog.Logger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func NewScheduler(mgr *Manager, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Scheduler{
		rooms:    make(map[string]struct{}),
		interval: interval,
		mgr:      mgr,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *Scheduler) Register(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[roomID] = struct{}{}
}

func (s *Scheduler) Unregister(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

func (s *Scheduler) roomIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Start runs the loop until Stop is called or ctx is cancelled. Frames are
// never skipped for slow ticks; a sweep that overruns the interval simply
// delays the next one.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case now := <-ticker.C:
				s.sweep(ctx, now)
			}
		}
	}()
}

func (s *Scheduler) sweep(ctx context.Context, now time.Time) {
	start := time.Now()
	for _, id := range s.roomIDs() {
		s.mgr.TickRoom(ctx, id, now)
	}
	metrics.EmitTickStat(start)
}

// Stop halts the loop and waits for the in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}
