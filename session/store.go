// Package session multiplexes independent HYMN machines behind opaque
// string identifiers.
//
// The store bounds its memory with a capacity limit (least-recently-
// accessed sessions evicted first) and a time-to-live (untouched
// sessions expire). Every operation against one session is serialized
// by that session's own lock; operations on distinct sessions never
// block each other. The directory lock guards only lookup and mutation
// of the identifier map and is never held while a machine executes.
package session

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hymnsim/hymn/cpu"
)

// Default configuration values.
const (
	DefaultCapacity    = 64
	DefaultTTL         = 30 * time.Minute
	DefaultSweepPeriod = time.Minute
)

// Config bounds the store.
type Config struct {
	Capacity    int           // Maximum live sessions before LRU eviction.
	TTL         time.Duration // Idle lifetime of a session.
	SweepPeriod time.Duration // Background sweep interval; see Start.
}

// DefaultConfig returns the default store bounds.
func DefaultConfig() Config {
	return Config{
		Capacity:    DefaultCapacity,
		TTL:         DefaultTTL,
		SweepPeriod: DefaultSweepPeriod,
	}
}

// entry is one stored session. The entry mutex serializes all machine
// operations for the session; lastAccess is guarded by the store's
// directory lock, not the entry lock.
type entry struct {
	mu         sync.Mutex
	machine    *cpu.Machine
	lastAccess time.Time
}

// Store is a capacity- and TTL-bounded directory of sessions.
type Store struct {
	Verbose bool // Set to enable verbose logging.

	cfg Config

	mu      sync.Mutex
	entries map[string]*entry

	// Lifecycle management for the background sweeper.
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	closed  atomic.Bool
}

// NewStore creates a store with the given bounds; zero fields fall
// back to the defaults. The background sweeper is not running until
// Start is called, but TTL and capacity are still enforced inline on
// every insert and lookup.
func NewStore(cfg Config) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepPeriod <= 0 {
		cfg.SweepPeriod = DefaultSweepPeriod
	}

	return &Store{
		cfg:     cfg,
		entries: make(map[string]*entry),
	}
}

// Start launches the background sweeper, which removes expired
// sessions every SweepPeriod even when the store sees no traffic.
func (s *Store) Start(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return nil
	}

	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.SweepPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()

	return nil
}

// Close stops the background sweeper and drops all sessions.
func (s *Store) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
}

// sweep removes every expired session.
func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked(time.Now())
}

// purgeLocked deletes entries idle past the TTL. Caller holds s.mu.
func (s *Store) purgeLocked(now time.Time) {
	for id, e := range s.entries {
		if now.Sub(e.lastAccess) > s.cfg.TTL {
			if s.Verbose {
				log.Printf("session %v: expired", id)
			}
			delete(s.entries, id)
		}
	}
}

// evictLocked deletes least-recently-accessed entries until the store
// is at capacity, never evicting keep. Caller holds s.mu.
func (s *Store) evictLocked(keep string) {
	for len(s.entries) > s.cfg.Capacity {
		var oldest string
		var oldestAt time.Time
		for id, e := range s.entries {
			if id == keep {
				continue
			}
			if oldest == "" || e.lastAccess.Before(oldestAt) {
				oldest = id
				oldestAt = e.lastAccess
			}
		}
		if oldest == "" {
			return
		}
		if s.Verbose {
			log.Printf("session %v: evicted", oldest)
		}
		delete(s.entries, oldest)
	}
}

// lockFor resolves the entry for id, optionally creating it, and
// refreshes its last-access time. TTL purge and capacity eviction run
// here, under the directory lock only; the caller acquires the entry
// lock after this returns, so machine execution never stalls the
// directory.
func (s *Store) lockFor(id string, create bool) *entry {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked(now)

	e, ok := s.entries[id]
	if !ok {
		if !create {
			return nil
		}
		e = &entry{}
		s.entries[id] = e
		s.evictLocked(id)
	}
	e.lastAccess = now

	return e
}

// Put upserts a machine under id, enforcing TTL purge and LRU
// eviction.
func (s *Store) Put(id string, m *cpu.Machine) {
	e := s.lockFor(id, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.machine = m
}

// Get returns the machine for id, refreshing its last-access time.
func (s *Store) Get(id string) (m *cpu.Machine, ok bool) {
	e := s.lockFor(id, false)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok = e.machine, e.machine != nil
	return
}

// Delete removes id unconditionally.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// withMachine runs fn against the session's machine under its lock and
// returns the resulting snapshot.
func (s *Store) withMachine(id string, fn func(*cpu.Machine) error) (snap *cpu.Snapshot, err error) {
	e := s.lockFor(id, false)
	if e == nil {
		err = ErrSessionNotFound
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.machine == nil {
		err = ErrNoProgram
		return
	}
	err = fn(e.machine)
	if err != nil {
		return
	}
	snap = e.machine.Snapshot()

	return
}

// Load assembles source into a fresh machine for id, seeding its input
// queue, and installs it only on success: a failed assembly leaves any
// previous program for the session untouched.
func (s *Store) Load(id, source string, input []int) (snap *cpu.Snapshot, err error) {
	e := s.lockFor(id, true)

	e.mu.Lock()
	defer e.mu.Unlock()

	m := cpu.NewMachine()
	err = m.Load(source, input)
	if err != nil {
		return
	}
	e.machine = m
	snap = m.Snapshot()

	return
}

// Step executes one instruction of the session's machine.
func (s *Store) Step(id string) (*cpu.Snapshot, error) {
	return s.withMachine(id, func(m *cpu.Machine) error {
		m.Step()
		return nil
	})
}

// Run steps the session's machine under a wall-clock budget. A timeout
// surfaces in the snapshot's error field, not as a call error.
func (s *Store) Run(id string, timeout time.Duration) (*cpu.Snapshot, error) {
	return s.withMachine(id, func(m *cpu.Machine) error {
		m.Run(timeout)
		return nil
	})
}

// ProvideInput appends a value to the session's input queue, resuming
// a machine paused on a read.
func (s *Store) ProvideInput(id string, value int) (*cpu.Snapshot, error) {
	return s.withMachine(id, func(m *cpu.Machine) error {
		return m.ProvideInput(value)
	})
}

// PatchMemory writes one memory slot of the session's machine.
func (s *Store) PatchMemory(id string, addr, value int) (*cpu.Snapshot, error) {
	return s.withMachine(id, func(m *cpu.Machine) error {
		return m.PatchMemory(addr, value)
	})
}

// PatchRegister sets the pc or ac register of the session's machine.
func (s *Store) PatchRegister(id, name string, value int) (*cpu.Snapshot, error) {
	return s.withMachine(id, func(m *cpu.Machine) error {
		return m.PatchRegister(name, value)
	})
}

// Reset discards the session entirely.
func (s *Store) Reset(id string) {
	s.Delete(id)
}
