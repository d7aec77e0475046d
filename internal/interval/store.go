// Package interval holds the named cadences the control loop polls on.
package interval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// Refresh is the server check-in cadence.
	Refresh = "RefreshInterval"
	// Status is the printer status probe cadence.
	Status = "StatusInterval"

	// Default applies to any name that has never been set.
	Default = 10 * time.Second

	stateName = "intervals"
)

// ErrInvalidInterval is returned when a value is not a finite, non-negative number of seconds.
var ErrInvalidInterval = errors.New("invalid interval")

// maxSeconds keeps seconds*1000 ms inside time.Duration.
var maxSeconds = float64(math.MaxInt64/int64(time.Millisecond)) / 1000

// Persister saves and restores interval overrides. *state.Store satisfies it.
type Persister interface {
	Get(ctx context.Context, name string) (json.RawMessage, error)
	ShallowMerge(ctx context.Context, name string, updates json.RawMessage) (json.RawMessage, error)
}

// Option configures a Store.
type Option func(*Store)

// WithPersistence saves every successful Set through p.
func WithPersistence(p Persister) Option {
	return func(s *Store) { s.persist = p }
}

// WithInitial seeds name with d, typically from the config file.
func WithInitial(name string, d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.values[name] = d
		}
	}
}

// Store maps interval names to durations. It is owned by the control loop
// and not safe for concurrent mutation.
type Store struct {
	values  map[string]time.Duration
	logger  *slog.Logger
	persist Persister
}

func NewStore(logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		values: make(map[string]time.Duration),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the interval for name, or Default when unset.
func (s *Store) Get(name string) time.Duration {
	if d, ok := s.values[name]; ok {
		return d
	}
	return Default
}

// Set parses arg as seconds and stores it under name. On error the store is unchanged.
func (s *Store) Set(name, arg string) error {
	d, err := ParseSeconds(arg)
	if err != nil {
		return err
	}
	s.values[name] = d
	s.logger.Info(fmt.Sprintf("Interval updated to: %s", d), "interval", name, "ms", d.Milliseconds())

	if s.persist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.save(ctx, name, d); err != nil {
			s.logger.Warn("interval not persisted", "interval", name, "error", err)
		}
	}
	return nil
}

// ParseSeconds converts a decimal number of seconds to a whole-millisecond duration.
func ParseSeconds(arg string) (time.Duration, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, fmt.Errorf("%w: missing value", ErrInvalidInterval)
	}
	secs, err := strconv.ParseFloat(arg, 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("%w: %q is not a number of seconds", ErrInvalidInterval, arg)
	}
	if secs < 0 {
		return 0, fmt.Errorf("%w: %q is negative", ErrInvalidInterval, arg)
	}
	if secs > maxSeconds {
		return 0, fmt.Errorf("%w: %q is too large", ErrInvalidInterval, arg)
	}
	return time.Duration(math.Round(secs*1000)) * time.Millisecond, nil
}

func (s *Store) save(ctx context.Context, name string, d time.Duration) error {
	update, err := json.Marshal(map[string]int64{name: d.Milliseconds()})
	if err != nil {
		return err
	}
	_, err = s.persist.ShallowMerge(ctx, stateName, update)
	return err
}

// Load restores previously persisted overrides. Without persistence it is a no-op.
func (s *Store) Load(ctx context.Context) error {
	if s.persist == nil {
		return nil
	}
	raw, err := s.persist.Get(ctx, stateName)
	if err != nil {
		return fmt.Errorf("load intervals: %w", err)
	}
	var saved map[string]int64
	if err := json.Unmarshal(raw, &saved); err != nil {
		return fmt.Errorf("decode intervals: %w", err)
	}
	for name, ms := range saved {
		if ms < 0 {
			s.logger.Warn("ignoring negative persisted interval", "interval", name, "ms", ms)
			continue
		}
		s.values[name] = time.Duration(ms) * time.Millisecond
	}
	return nil
}

// Named is one entry of Snapshot.
type Named struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
}

// Snapshot lists the explicitly set intervals sorted by name.
func (s *Store) Snapshot() []Named {
	out := make([]Named, 0, len(s.values))
	for name, d := range s.values {
		out = append(out, Named{Name: name, Interval: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
