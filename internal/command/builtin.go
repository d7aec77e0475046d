package command

import (
	"fmt"
	"log/slog"
	"strings"
)

// StopCommand ends the control loop.
type StopCommand struct {
	stop func()
}

func NewStopCommand(stop func()) *StopCommand {
	return &StopCommand{stop: stop}
}

func (c *StopCommand) Trigger() string { return "stop" }
func (c *StopCommand) Usage() string   { return "stop - shut the bridge down" }

func (c *StopCommand) Execute([]string) {
	c.stop()
}

// IntervalSetter is the part of interval.Store the set-* commands need.
type IntervalSetter interface {
	Set(name, arg string) error
}

// SetIntervalCommand changes one named interval from the console.
type SetIntervalCommand struct {
	trigger   string
	name      string
	subject   string
	intervals IntervalSetter
	logger    *slog.Logger
}

// NewSetIntervalCommand binds trigger to the interval called name. subject
// completes the usage text, e.g. "requests to the server".
func NewSetIntervalCommand(trigger, name, subject string, intervals IntervalSetter, logger *slog.Logger) *SetIntervalCommand {
	if logger == nil {
		logger = slog.Default()
	}
	return &SetIntervalCommand{
		trigger:   trigger,
		name:      name,
		subject:   subject,
		intervals: intervals,
		logger:    logger,
	}
}

func (c *SetIntervalCommand) Trigger() string { return c.trigger }

func (c *SetIntervalCommand) Usage() string {
	return fmt.Sprintf("%s <seconds> - number of seconds between %s", c.trigger, c.subject)
}

func (c *SetIntervalCommand) Execute(args []string) {
	if len(args) != 1 {
		c.logger.Error("Invalid command format: " + c.Usage())
		return
	}
	if err := c.intervals.Set(c.name, args[0]); err != nil {
		c.logger.Error("Invalid command format: "+c.Usage(), "error", err)
	}
}

// HelpCommand lists the registered commands.
type HelpCommand struct {
	registry *Registry
	logger   *slog.Logger
}

func NewHelpCommand(registry *Registry, logger *slog.Logger) *HelpCommand {
	if logger == nil {
		logger = slog.Default()
	}
	return &HelpCommand{registry: registry, logger: logger}
}

func (c *HelpCommand) Trigger() string { return "help" }
func (c *HelpCommand) Usage() string   { return "help - list commands" }

func (c *HelpCommand) Execute([]string) {
	lines := make([]string, 0, len(c.registry.order))
	for _, trigger := range c.registry.Triggers() {
		cmd := c.registry.byTrigger[trigger]
		if d, ok := cmd.(Describer); ok {
			lines = append(lines, d.Usage())
			continue
		}
		lines = append(lines, trigger)
	}
	c.logger.Info("Available commands: " + strings.Join(lines, "; "))
}

// StatusCommand logs a one-line summary produced by describe.
type StatusCommand struct {
	describe func() (string, []any)
	logger   *slog.Logger
}

// NewStatusCommand logs describe()'s message and attributes whenever `status` is entered.
func NewStatusCommand(describe func() (string, []any), logger *slog.Logger) *StatusCommand {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusCommand{describe: describe, logger: logger}
}

func (c *StatusCommand) Trigger() string { return "status" }
func (c *StatusCommand) Usage() string {
	return "status - show printer status, failure counters and intervals"
}

func (c *StatusCommand) Execute([]string) {
	msg, attrs := c.describe()
	c.logger.Info(msg, attrs...)
}
