package resolver

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"

	"flexfinder/internal/macaddr"
	"flexfinder/internal/models"
	"flexfinder/internal/neighbor"
	"flexfinder/internal/subnet"
)

// State is a step of a single resolution.
type State string

const (
	StateInit            State = "INIT"
	StateCheckCache      State = "CHECK_CACHE"
	StateScanning        State = "SCANNING"
	StateCheckCacheAgain State = "CHECK_CACHE_AGAIN"
	StateResolved        State = "RESOLVED"
	StateNotFound        State = "NOT_FOUND"
	StateScanAborted     State = "SCAN_ABORTED"
	StateFailed          State = "FAILED"
)

// Terminal reports whether no further transition can follow.
func (s State) Terminal() bool {
	switch s {
	case StateResolved, StateNotFound, StateScanAborted, StateFailed:
		return true
	default:
		return false
	}
}

// Options describe one discovery attempt.
type Options struct {
	Name   string
	Local  netip.Addr
	Policy subnet.Policy
	// Deadline bounds the sweep. Zero expires immediately, negative means
	// no deadline beyond the caller's context.
	Deadline time.Duration
}

// Session carries everything one resolution needs. It replaces process-wide
// state: each attempt builds its own.
type Session struct {
	ID       uuid.UUID
	Target   models.TargetDevice
	Local    netip.Addr
	Policy   subnet.Policy
	Deadline time.Duration

	State    State
	History  []State
	Snapshot neighbor.Snapshot
	Report   models.ScanReport
	Scanned  bool
	Started  time.Time
	Finished time.Time

	observer func(State)
}

// NewSession validates mac and opts. The MAC is stored canonicalized.
func NewSession(mac string, opts Options) (*Session, error) {
	canonical, err := macaddr.Normalize(mac)
	if err != nil {
		return nil, err
	}

	if !opts.Local.Is4() {
		return nil, fmt.Errorf("%w: local address %s is not IPv4", models.ErrInvalidAddress, opts.Local)
	}

	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}

	return &Session{
		ID:       uuid.New(),
		Target:   models.TargetDevice{Name: opts.Name, MAC: canonical},
		Local:    opts.Local,
		Policy:   opts.Policy,
		Deadline: opts.Deadline,
		State:    StateInit,
		History:  []State{StateInit},
	}, nil
}

// Observe registers fn to be called on every state change.
func (s *Session) Observe(fn func(State)) {
	s.observer = fn
}

func (s *Session) transition(next State) {
	s.State = next
	s.History = append(s.History, next)

	if next.Terminal() {
		s.Finished = time.Now()
	}

	if s.observer != nil {
		s.observer(next)
	}
}

// resolve records addr as the target's address. The caller has already
// matched it against a neighbor entry for the target MAC.
func (s *Session) resolve(addr netip.Addr) {
	s.Target.ResolvedIP = addr
	s.transition(StateResolved)
}

// Elapsed returns how long the session ran, or has run so far.
func (s *Session) Elapsed() time.Duration {
	if s.Started.IsZero() {
		return 0
	}

	if s.Finished.IsZero() {
		return time.Since(s.Started)
	}

	return s.Finished.Sub(s.Started)
}
