package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/crosslock/relay-go/chainpoller"
	logger "github.com/sirupsen/logrus"
)

// Poller is one source chain's adapter. *chainpoller.Poller satisfies it.
type Poller interface {
	Name() string
	ChainID() uint64
	Cursor() uint64
	PollOnce(ctx context.Context) ([]chainpoller.LockEvent, error)
}

// Sink receives every discovered lock event. Must be safe for concurrent
// calls; one round polls all chains in parallel.
type Sink interface {
	HandleLockEvent(ev chainpoller.LockEvent)
}

type Config struct {
	// Interval between poll rounds
	Interval time.Duration

	// PollTimeout bounds each chain's poll within a round. Must stay below
	// Interval so a hanging chain cannot bleed into the next round.
	PollTimeout time.Duration
}

func (cfg *Config) withDefaults() *Config {
	out := *cfg
	if out.Interval <= 0 {
		out.Interval = 30 * time.Second
	}
	if out.PollTimeout <= 0 || out.PollTimeout >= out.Interval {
		out.PollTimeout = out.Interval * 2 / 3
	}
	return &out
}

// ChainHealth is the per-chain slice of the status view.
type ChainHealth struct {
	ChainID     uint64 `json:"chain_id"`
	Name        string `json:"name"`
	Connected   bool   `json:"connected"`
	LastScanned uint64 `json:"last_scanned"`
	LastError   string `json:"last_error,omitempty"`
}

// Scheduler triggers one concurrent poll round over all source chains per
// interval. Chain failures are independent: a timeout or rpc error on one
// chain never blocks or fails its siblings, and never stops the loop.
type Scheduler struct {
	cfg     *Config
	pollers []Poller
	sink    Sink

	mu     sync.RWMutex
	health map[uint64]*ChainHealth
}

func New(cfg *Config, pollers []Poller, sink Sink) *Scheduler {
	health := make(map[uint64]*ChainHealth, len(pollers))
	for _, p := range pollers {
		health[p.ChainID()] = &ChainHealth{
			ChainID:     p.ChainID(),
			Name:        p.Name(),
			LastScanned: p.Cursor(),
		}
	}

	return &Scheduler{
		cfg:     cfg.withDefaults(),
		pollers: pollers,
		sink:    sink,
		health:  health,
	}
}

// Run polls immediately, then once per interval until ctx is cancelled.
// Rounds are never compressed: a slow round simply delays nothing, the
// next one fires on the ticker regardless of partial failures.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.WithFields(logger.Fields{
		"chains":   len(s.pollers),
		"interval": s.cfg.Interval,
	}).Info("starting poll scheduler")
	defer logger.Info("stopping poll scheduler")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.round(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.round(ctx)
		}
	}
}

func (s *Scheduler) round(ctx context.Context) {
	wg := sync.WaitGroup{}
	for _, p := range s.pollers {
		wg.Add(1)
		go func(p Poller) {
			defer wg.Done()

			pctx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
			defer cancel()

			events, err := p.PollOnce(pctx)
			s.record(p, err)
			if err != nil {
				logger.WithField("chain", p.Name()).Warnf("poll failed: %v", err)
				return
			}

			for _, ev := range events {
				s.sink.HandleLockEvent(ev)
			}
		}(p)
	}
	wg.Wait()
}

func (s *Scheduler) record(p Poller, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.health[p.ChainID()]
	h.LastScanned = p.Cursor()
	if err != nil {
		h.Connected = false
		h.LastError = err.Error()
	} else {
		h.Connected = true
		h.LastError = ""
	}
}

// Health returns a snapshot of per-chain connectivity, sorted by chain id.
func (s *Scheduler) Health() []ChainHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ChainHealth, 0, len(s.health))
	for _, h := range s.health {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}
