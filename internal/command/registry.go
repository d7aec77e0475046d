// Package command maps console lines to handlers.
package command

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrDuplicateTrigger is returned by Register when the trigger is already taken.
var ErrDuplicateTrigger = errors.New("duplicate command trigger")

// Command is one console verb.
type Command interface {
	Trigger() string
	Execute(args []string)
}

// Describer is implemented by commands that can explain their arguments in help output.
type Describer interface {
	Usage() string
}

// Registry holds the console commands in registration order.
type Registry struct {
	byTrigger map[string]Command
	order     []string
	logger    *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byTrigger: make(map[string]Command),
		logger:    logger,
	}
}

// Register adds cmd. A trigger that is already present is rejected and the
// existing handler is kept.
func (r *Registry) Register(cmd Command) error {
	trigger := cmd.Trigger()
	if strings.TrimSpace(trigger) == "" || strings.ContainsAny(trigger, " \t") {
		return fmt.Errorf("invalid command trigger %q", trigger)
	}
	if _, exists := r.byTrigger[trigger]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTrigger, trigger)
	}
	r.byTrigger[trigger] = cmd
	r.order = append(r.order, trigger)
	r.logger.Debug("command registered", "trigger", trigger)
	return nil
}

// MustRegister registers every cmd and panics on the first failure.
// Duplicate built-in triggers are a programming error.
func (r *Registry) MustRegister(cmds ...Command) {
	for _, c := range cmds {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Dispatch runs the command named by the first word of line with the
// remaining words as arguments. It reports false when nothing matched.
func (r *Registry) Dispatch(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, ok := r.lookup(fields[0])
	if !ok {
		return false
	}
	cmd.Execute(fields[1:])
	return true
}

func (r *Registry) lookup(word string) (Command, bool) {
	if cmd, ok := r.byTrigger[word]; ok {
		return cmd, true
	}
	for _, trigger := range r.order {
		if strings.EqualFold(trigger, word) {
			return r.byTrigger[trigger], true
		}
	}
	return nil, false
}

// Triggers lists the registered triggers in registration order.
func (r *Registry) Triggers() []string {
	return append([]string(nil), r.order...)
}

// Lookup returns the command registered under trigger, compared case-insensitively.
func (r *Registry) Lookup(trigger string) (Command, bool) {
	return r.lookup(trigger)
}
