// Package state holds the values every surface shares: goal, cached intake,
// unit system, auth token, reminder settings and this node's identity.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/rcliao/hydrosync/internal/model"
)

// Key names a shared value.
type Key string

const (
	KeyGoal      Key = "goal"
	KeyIntake    Key = "intake"
	KeyUnit      Key = "unit"
	KeyAuthToken Key = "auth_token"
	KeyReminder  Key = "reminder"
	KeyNodeID    Key = "node_id"
)

// Change describes a value that was written with a different value than
// before. Value is the stored text form.
type Change struct {
	Key   Key
	Value string
}

// Listener receives changes after they are stored.
type Listener func(Change)

// Backend persists string values. store.SQLiteStore satisfies it.
type Backend interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Store is the shared-state store. Volumes are milliliters.
type Store interface {
	Goal(ctx context.Context) (float64, error)
	SetGoal(ctx context.Context, ml float64) error
	Intake(ctx context.Context) (float64, error)
	SetIntake(ctx context.Context, ml float64) error
	Unit(ctx context.Context) (model.UnitSystem, error)
	SetUnit(ctx context.Context, u model.UnitSystem) error
	AuthToken(ctx context.Context) (string, error)
	EnsureAuthToken(ctx context.Context) (string, error)
	RegenerateAuthToken(ctx context.Context) (string, error)
	Reminder(ctx context.Context) (model.ReminderConfig, error)
	SetReminder(ctx context.Context, cfg model.ReminderConfig) error
	NodeID(ctx context.Context) (string, error)
	Subscribe(fn Listener) (cancel func())
}

// Shared implements Store over a Backend. Every read and write goes through
// one mutex, so concurrent HTTP handlers and message handlers never observe
// a half-written value; the last write wins.
type Shared struct {
	backend Backend

	mu sync.Mutex

	lmu       sync.RWMutex
	nextID    int
	listeners map[int]Listener

	// Changes are queued under mu and delivered by one goroutine at a time,
	// so listeners see them in write order.
	qmu      sync.Mutex
	queue    []Change
	draining bool
}

var _ Store = (*Shared)(nil)

// New wraps backend.
func New(backend Backend) *Shared {
	return &Shared{backend: backend, listeners: make(map[int]Listener)}
}

// Subscribe registers fn for future changes and returns a function that
// removes it.
func (s *Shared) Subscribe(fn Listener) func() {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

func (s *Shared) enqueue(c Change) {
	s.qmu.Lock()
	s.queue = append(s.queue, c)
	s.qmu.Unlock()
}

// drain delivers queued changes unless another goroutine is already doing
// so. A listener that writes has its own change delivered after it returns.
func (s *Shared) drain() {
	s.qmu.Lock()
	if s.draining {
		s.qmu.Unlock()
		return
	}
	s.draining = true
	for len(s.queue) > 0 {
		c := s.queue[0]
		s.queue = s.queue[1:]
		s.qmu.Unlock()
		s.notify(c)
		s.qmu.Lock()
	}
	s.draining = false
	s.qmu.Unlock()
}

func (s *Shared) notify(c Change) {
	s.lmu.RLock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.lmu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (s *Shared) get(ctx context.Context, key Key) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok, err := s.backend.GetSetting(ctx, string(key))
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return v, ok, nil
}

// set stores value and notifies listeners when it differs from the
// previous value.
func (s *Shared) set(ctx context.Context, key Key, value string) error {
	s.mu.Lock()
	prev, ok, err := s.backend.GetSetting(ctx, string(key))
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("read %s: %w", key, err)
	}
	if ok && prev == value {
		s.mu.Unlock()
		return nil
	}
	if err := s.backend.SetSetting(ctx, string(key), value); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("write %s: %w", key, err)
	}
	s.enqueue(Change{Key: key, Value: value})
	s.mu.Unlock()

	s.drain()
	return nil
}

func (s *Shared) getFloat(ctx context.Context, key Key) (float64, error) {
	v, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", key, v, err)
	}
	return f, nil
}

func (s *Shared) Goal(ctx context.Context) (float64, error) {
	return s.getFloat(ctx, KeyGoal)
}

func (s *Shared) SetGoal(ctx context.Context, ml float64) error {
	return s.set(ctx, KeyGoal, model.FormatAmount(ml))
}

func (s *Shared) Intake(ctx context.Context) (float64, error) {
	return s.getFloat(ctx, KeyIntake)
}

func (s *Shared) SetIntake(ctx context.Context, ml float64) error {
	if ml < 0 {
		ml = 0
	}
	return s.set(ctx, KeyIntake, model.FormatAmount(ml))
}

func (s *Shared) Unit(ctx context.Context) (model.UnitSystem, error) {
	v, ok, err := s.get(ctx, KeyUnit)
	if err != nil || !ok {
		return model.Metric, err
	}
	return model.ParseUnitSystem(v)
}

func (s *Shared) SetUnit(ctx context.Context, u model.UnitSystem) error {
	return s.set(ctx, KeyUnit, u.String())
}

// AuthToken returns the stored token, or "" when none was generated yet.
func (s *Shared) AuthToken(ctx context.Context) (string, error) {
	v, _, err := s.get(ctx, KeyAuthToken)
	return v, err
}

// EnsureAuthToken returns the stored token, generating one on first use.
func (s *Shared) EnsureAuthToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	v, ok, err := s.backend.GetSetting(ctx, string(KeyAuthToken))
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("read %s: %w", KeyAuthToken, err)
	}
	if ok && v != "" {
		s.mu.Unlock()
		return v, nil
	}
	token := uuid.NewString()
	if err := s.backend.SetSetting(ctx, string(KeyAuthToken), token); err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("write %s: %w", KeyAuthToken, err)
	}
	s.enqueue(Change{Key: KeyAuthToken, Value: token})
	s.mu.Unlock()

	s.drain()
	return token, nil
}

// RegenerateAuthToken replaces the token. The previous token stops working
// immediately.
func (s *Shared) RegenerateAuthToken(ctx context.Context) (string, error) {
	token := uuid.NewString()
	if err := s.set(ctx, KeyAuthToken, token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Shared) Reminder(ctx context.Context) (model.ReminderConfig, error) {
	v, ok, err := s.get(ctx, KeyReminder)
	if err != nil || !ok {
		return model.DefaultReminderConfig(), err
	}
	cfg := model.DefaultReminderConfig()
	if err := json.Unmarshal([]byte(v), &cfg); err != nil {
		return model.DefaultReminderConfig(), fmt.Errorf("parse %s: %w", KeyReminder, err)
	}
	return cfg, nil
}

func (s *Shared) SetReminder(ctx context.Context, cfg model.ReminderConfig) error {
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.set(ctx, KeyReminder, string(b))
}

// NodeID returns this node's transport identity, generating it once.
func (s *Shared) NodeID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok, err := s.backend.GetSetting(ctx, string(KeyNodeID))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", KeyNodeID, err)
	}
	if ok && v != "" {
		return v, nil
	}
	id := uuid.NewString()
	if err := s.backend.SetSetting(ctx, string(KeyNodeID), id); err != nil {
		return "", fmt.Errorf("write %s: %w", KeyNodeID, err)
	}
	return id, nil
}
