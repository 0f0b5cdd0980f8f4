// Package consent tracks whether the user has authorized remote
// synchronization of their data. The decision is persisted locally and
// re-validated on every read so an old grant cannot outlive its TTL.
package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/planline/planlink/iox"
	"github.com/planline/planlink/log"
)

// DefaultTTL is how long a grant stays valid before reverting to
// unknown.
const DefaultTTL = 30 * 24 * time.Hour

// State is the recorded permission decision.
type State string

const (
	StateUnknown State = "unknown"
	StateGranted State = "granted"
	StateDenied  State = "denied"
)

// Collector answers permission questions for the sync flow.
type Collector interface {
	// HasPermission reports whether a valid, unexpired grant exists.
	HasPermission() bool
	// RequestPermission returns the effective decision, prompting the
	// user when no decision is on record. May block on the prompt.
	RequestPermission(ctx context.Context) bool
	// ResetPermission discards the recorded decision.
	ResetPermission()
}

// PromptFunc asks the user for consent. True means granted.
type PromptFunc func(ctx context.Context) bool

// Config holds permission store configuration.
type Config struct {
	// Path is the state file location (required).
	Path string
	// TTL bounds grant validity. Zero means DefaultTTL.
	TTL time.Duration
	// Prompt is invoked when a decision is needed and none is
	// recorded. Nil treats every request as denied.
	Prompt PromptFunc
}

type stateFile struct {
	State     State     `json:"state"`
	GrantedAt time.Time `json:"grantedAt,omitempty"`
	DecidedAt time.Time `json:"decidedAt"`
}

// PermissionStore is a file-backed Collector. Reads re-apply the TTL,
// writes go through temp-and-rename.
type PermissionStore struct {
	config Config
	logger *log.Logger

	mu  sync.Mutex
	now func() time.Time
}

var _ Collector = (*PermissionStore)(nil)

// NewPermissionStore creates a store persisting to cfg.Path.
func NewPermissionStore(cfg Config) (*PermissionStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("permission store requires a state file path")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &PermissionStore{
		config: cfg,
		logger: log.NewLogger("consent"),
		now:    time.Now,
	}, nil
}

// State returns the effective decision after TTL expiry, plus the
// grant timestamp when granted.
func (s *PermissionStore) State() (State, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// HasPermission reports whether an unexpired grant is on record.
func (s *PermissionStore) HasPermission() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, _ := s.load()
	return state == StateGranted
}

// RequestPermission returns the recorded decision, prompting the user
// when the state is unknown. A fresh decision is persisted before
// returning.
func (s *PermissionStore) RequestPermission(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, _ := s.load()
	switch state {
	case StateGranted:
		return true
	case StateDenied:
		// A recorded denial stands until an explicit reset.
		return false
	}

	granted := false
	if s.config.Prompt != nil {
		granted = s.config.Prompt(ctx)
	}
	if ctx.Err() != nil {
		// Cancelled prompts leave no decision on record.
		return false
	}

	s.record(granted)
	return granted
}

// ResetPermission discards the recorded decision.
func (s *PermissionStore) ResetPermission() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.config.Path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to remove permission state", map[string]any{
			"path":  s.config.Path,
			"error": err.Error(),
		})
		return
	}
	s.logger.Info("permission state reset", map[string]any{"path": s.config.Path})
}

// load reads the state file and applies TTL expiry. Callers hold mu.
func (s *PermissionStore) load() (State, time.Time) {
	data, err := os.ReadFile(s.config.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read permission state", map[string]any{
				"path":  s.config.Path,
				"error": err.Error(),
			})
		}
		return StateUnknown, time.Time{}
	}

	var sf stateFile
	if err := json.Unmarshal(data, &sf); err != nil {
		s.logger.Warn("permission state file is corrupt, treating as unknown", map[string]any{
			"path":  s.config.Path,
			"error": err.Error(),
		})
		return StateUnknown, time.Time{}
	}

	switch sf.State {
	case StateGranted:
		if s.now().Sub(sf.GrantedAt) > s.config.TTL {
			s.logger.Info("permission grant expired", map[string]any{
				"grantedAt": sf.GrantedAt.Format(time.RFC3339),
				"ttl":       s.config.TTL.String(),
			})
			return StateUnknown, time.Time{}
		}
		return StateGranted, sf.GrantedAt
	case StateDenied:
		return StateDenied, time.Time{}
	default:
		return StateUnknown, time.Time{}
	}
}

// record persists a fresh decision. Callers hold mu.
func (s *PermissionStore) record(granted bool) {
	now := s.now().UTC()
	sf := stateFile{State: StateDenied, DecidedAt: now}
	if granted {
		sf.State = StateGranted
		sf.GrantedAt = now
	}

	data, err := json.Marshal(sf)
	if err != nil {
		s.logger.Error("failed to encode permission state", map[string]any{"error": err.Error()})
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.config.Path), ".tmp-consent-*")
	if err != nil {
		s.logger.Error("failed to stage permission state", map[string]any{"error": err.Error()})
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		iox.DiscardClose(tmp)
		iox.RemoveBestEffort(tmpPath)
		s.logger.Error("failed to write permission state", map[string]any{"error": err.Error()})
		return
	}
	if err := tmp.Close(); err != nil {
		iox.RemoveBestEffort(tmpPath)
		s.logger.Error("failed to close permission state", map[string]any{"error": err.Error()})
		return
	}
	if err := os.Rename(tmpPath, s.config.Path); err != nil {
		iox.RemoveBestEffort(tmpPath)
		s.logger.Error("failed to commit permission state", map[string]any{"error": err.Error()})
		return
	}

	s.logger.Info("permission decision recorded", map[string]any{
		"state": string(sf.State),
	})
}

// Static is a fixed-decision Collector for tests and headless use.
type Static struct {
	Granted bool
}

var _ Collector = (*Static)(nil)

func (s *Static) HasPermission() bool                        { return s.Granted }
func (s *Static) RequestPermission(ctx context.Context) bool { return s.Granted }
func (s *Static) ResetPermission()                           {}
