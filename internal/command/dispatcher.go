// Package command routes bot commands through rate limiting, admin checks and
// access control, and meters free-tier time for metered commands.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dukerupert/gatekeeper/internal/auth"
	"github.com/dukerupert/gatekeeper/internal/clock"
	"github.com/dukerupert/gatekeeper/internal/metrics"
	"github.com/dukerupert/gatekeeper/internal/ratelimit"
	"github.com/dukerupert/gatekeeper/internal/subscription"
)

var (
	ErrNotAdmin = errors.New("not authorized")
	ErrUsage    = errors.New("invalid format")
)

const (
	replyNotAdmin     = "❌ Not authorized."
	replyAccessDenied = "❌ Access Denied\nContact admin to get access."
	replyThrottled    = "⏳ Too many commands. Please slow down."
	replyFailed       = "❌ Something went wrong. Please try again."
	replyBadDuration  = "❌ Days must be a positive number."
)

// Request is one inbound message.
type Request struct {
	UserID      int64
	ChatID      int64
	BotIdentity string
	Text        string
	// Media names the attachment on a non-text message, such as "document".
	Media string
}

// Call is a parsed request handed to a command.
type Call struct {
	Request
	Name string
	Args []string
}

type RunFunc func(ctx context.Context, call Call) (string, error)

type Command struct {
	Name        string
	Usage       string
	Description string
	// AdminOnly commands are refused before Run for anyone outside the admin set.
	AdminOnly bool
	// Metered commands require an access grant and consume free-tier time.
	Metered bool
	Run     RunFunc
}

type Authorizer interface {
	IsAdmin(userID int64) bool
	Decide(ctx context.Context, userID int64, botIdentity string, now time.Time) auth.Decision
}

type Charger interface {
	AddUsage(ctx context.Context, userID int64, botIdentity string, seconds int, now time.Time) error
}

type Dispatcher struct {
	mu       sync.RWMutex
	commands map[string]Command
	fallback *Command

	auth    Authorizer
	meter   Charger
	limiter *ratelimit.Limiter
	clock   clock.Clock
	metrics *metrics.Collector
	logger  *slog.Logger
}

func NewDispatcher(a Authorizer, meter Charger, limiter *ratelimit.Limiter, clk clock.Clock, m *metrics.Collector, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		commands: make(map[string]Command),
		auth:     a,
		meter:    meter,
		limiter:  limiter,
		clock:    clk,
		metrics:  m,
		logger:   logger,
	}
}

// Register adds or replaces a command by name.
func (d *Dispatcher) Register(cmds ...Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range cmds {
		d.commands[strings.ToLower(c.Name)] = c
	}
}

// SetDefault sets the command that handles attachments sent without a
// command.
func (d *Dispatcher) SetDefault(cmd Command) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = &cmd
}

func (d *Dispatcher) defaultCommand() (Command, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.fallback == nil {
		return Command{}, false
	}
	return *d.fallback, true
}

func (d *Dispatcher) lookup(name string) (Command, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.commands[name]
	return c, ok
}

// Commands lists registered commands sorted by name.
func (d *Dispatcher) Commands() []Command {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cmds := make([]Command, 0, len(d.commands))
	for _, c := range d.commands {
		cmds = append(cmds, c)
	}
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
	return cmds
}

// Dispatch runs the command in req and returns the reply. Attachments without
// a command go to the default command. An empty reply means the message was
// not for this bot.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) string {
	name, args, ok := ParseCommand(req.Text, req.BotIdentity)
	if !ok {
		if req.Media == "" {
			return ""
		}
		cmd, ok := d.defaultCommand()
		if !ok {
			return ""
		}
		if !d.allow(cmd.Name, req.UserID) {
			return replyThrottled
		}
		return d.execute(ctx, cmd, Call{Request: req, Name: cmd.Name})
	}

	cmd, found := d.lookup(name)
	if !found && name != "help" {
		return ""
	}
	if !d.allow(name, req.UserID) {
		return replyThrottled
	}
	if !found {
		return d.help(req.UserID)
	}
	return d.execute(ctx, cmd, Call{Request: req, Name: name, Args: args})
}

func (d *Dispatcher) allow(name string, userID int64) bool {
	if d.limiter.Allow(userID) {
		return true
	}
	d.metrics.Command(name, "throttled")
	d.logger.Warn("command throttled", "command", name, "user_id", userID)
	return false
}

func (d *Dispatcher) execute(ctx context.Context, cmd Command, call Call) string {
	req := call.Request
	logger := d.logger.With("command", call.Name, "user_id", req.UserID)

	if cmd.AdminOnly && !d.auth.IsAdmin(req.UserID) {
		d.metrics.Command(call.Name, "not_admin")
		return replyNotAdmin
	}

	caller := auth.Caller{UserID: req.UserID, BotIdentity: req.BotIdentity}
	if cmd.Metered {
		caller.Decision = d.auth.Decide(ctx, req.UserID, req.BotIdentity, d.clock.Now())
		d.metrics.Decision(string(caller.Decision.Reason))
		if !caller.Decision.Authorized {
			d.metrics.Command(call.Name, "denied")
			logger.Info("access denied")
			return replyAccessDenied
		}
	}
	ctx = auth.WithCaller(ctx, caller)

	start := d.clock.Now()
	reply, err := d.run(ctx, cmd, call)
	if cmd.Metered && caller.Decision.Reason == auth.ReasonFreeTier {
		d.charge(ctx, logger, req, d.clock.Now().Sub(start))
	}

	if err != nil {
		return d.errorReply(logger, cmd, err)
	}
	d.metrics.Command(call.Name, "ok")
	return reply
}

func (d *Dispatcher) run(ctx context.Context, cmd Command, call Call) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command %s panicked: %v", cmd.Name, r)
		}
	}()
	return cmd.Run(ctx, call)
}

// ChargeSeconds converts elapsed time into billable free-tier seconds:
// rounded up, at least one.
func ChargeSeconds(elapsed time.Duration) int {
	return max(1, int(math.Ceil(elapsed.Seconds())))
}

func (d *Dispatcher) charge(ctx context.Context, logger *slog.Logger, req Request, elapsed time.Duration) {
	seconds := ChargeSeconds(elapsed)
	if err := d.meter.AddUsage(ctx, req.UserID, req.BotIdentity, seconds, d.clock.Now()); err != nil {
		logger.Error("charge free tier", "seconds", seconds, "error", err)
		return
	}
	d.metrics.UsageCharged(req.BotIdentity, seconds)
	logger.Debug("free tier charged", "seconds", seconds)
}

func (d *Dispatcher) errorReply(logger *slog.Logger, cmd Command, err error) string {
	switch {
	case errors.Is(err, ErrNotAdmin):
		d.metrics.Command(cmd.Name, "not_admin")
		return replyNotAdmin
	case errors.Is(err, ErrUsage):
		d.metrics.Command(cmd.Name, "usage")
		return "❌ Invalid format!\nUse: " + cmd.Usage
	case errors.Is(err, subscription.ErrInvalidDuration):
		d.metrics.Command(cmd.Name, "usage")
		return replyBadDuration
	default:
		d.metrics.Command(cmd.Name, "error")
		logger.Error("command failed", "error", err)
		return replyFailed
	}
}

func (d *Dispatcher) help(userID int64) string {
	admin := d.auth.IsAdmin(userID)
	var b strings.Builder
	b.WriteString("📖 Commands\n")
	for _, c := range d.Commands() {
		if c.AdminOnly && !admin {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		fmt.Fprintf(&b, "\n%s - %s", usage, c.Description)
	}
	b.WriteString("\n/help - Show this message")
	return b.String()
}
