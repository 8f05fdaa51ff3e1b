// Package router turns received transport messages into state changes and
// replies, and publishes local changes to companion devices.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rcliao/hydrosync/internal/model"
	"github.com/rcliao/hydrosync/internal/state"
	"github.com/rcliao/hydrosync/internal/transport"
)

// ErrUnparseable marks a payload that was dropped. The protocol has no
// acknowledgement, so such messages are only logged.
var ErrUnparseable = errors.New("unparseable payload")

// Tracker is the intake source of truth.
type Tracker interface {
	Today(ctx context.Context) float64
	Add(ctx context.Context, ml float64, source string) (float64, error)
}

// RedrawFunc refreshes surfaces (widget, display) after a pushed value was
// stored.
type RedrawFunc func(path transport.Path)

// Router dispatches messages by path. Volumes on the wire are in the user's
// display unit; everything stored is milliliters.
type Router struct {
	tracker Tracker
	state   state.Store
	link    transport.Sender
	redraw  RedrawFunc
	log     *slog.Logger
}

var _ transport.Handler = (*Router)(nil)

// Option configures a Router.
type Option func(*Router)

// WithRedraw sets the redraw callback.
func WithRedraw(fn RedrawFunc) Option {
	return func(r *Router) { r.redraw = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

// New returns a Router.
func New(tracker Tracker, st state.Store, link transport.Sender, opts ...Option) *Router {
	r := &Router{
		tracker: tracker,
		state:   st,
		link:    link,
		redraw:  func(transport.Path) {},
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// HandleMessage implements transport.Handler. Failures are logged and the
// message is dropped.
func (r *Router) HandleMessage(ctx context.Context, msg transport.Message) {
	if err := r.Dispatch(ctx, msg); err != nil {
		r.log.Warn("drop message", "path", msg.Path, "from", msg.From, "payload", msg.Payload, "error", err)
	}
}

// Dispatch runs the handler for msg.Path.
func (r *Router) Dispatch(ctx context.Context, msg transport.Message) error {
	switch msg.Path {
	case transport.RequestIntake:
		r.report(transport.PushIntake, r.PushIntake(ctx))
		return nil
	case transport.PushIntake:
		return r.onPushIntake(ctx, msg.Payload)
	case transport.PushGoal:
		return r.onPushGoal(ctx, msg.Payload)
	case transport.PushUnit:
		return r.onPushUnit(ctx, msg.Payload)
	case transport.AddIntake:
		return r.onAddIntake(ctx, msg.Payload)
	}
	return fmt.Errorf("%w: %q", transport.ErrUnknownPath, msg.Path)
}

func (r *Router) unit(ctx context.Context) model.UnitSystem {
	u, err := r.state.Unit(ctx)
	if err != nil {
		r.log.Warn("read unit", "error", err)
	}
	return u
}

func parseVolume(payload string) (float64, error) {
	v, err := transport.DecodeAmount(payload)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%w: negative volume %v", ErrUnparseable, v)
	}
	return v, nil
}

func (r *Router) onPushIntake(ctx context.Context, payload string) error {
	v, err := parseVolume(payload)
	if err != nil {
		return err
	}
	if err := r.state.SetIntake(ctx, r.unit(ctx).FromDisplay(v)); err != nil {
		return err
	}
	r.redraw(transport.PushIntake)
	return nil
}

func (r *Router) onPushGoal(ctx context.Context, payload string) error {
	v, err := parseVolume(payload)
	if err != nil {
		return err
	}
	if v == 0 {
		return fmt.Errorf("%w: goal must be positive", ErrUnparseable)
	}
	if err := r.state.SetGoal(ctx, r.unit(ctx).FromDisplay(v)); err != nil {
		return err
	}
	r.redraw(transport.PushGoal)
	return nil
}

func (r *Router) onPushUnit(ctx context.Context, payload string) error {
	u, err := model.ParseUnitSystem(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if err := r.state.SetUnit(ctx, u); err != nil {
		return err
	}
	r.redraw(transport.PushUnit)
	return nil
}

func (r *Router) onAddIntake(ctx context.Context, payload string) error {
	v, err := parseVolume(payload)
	if err != nil {
		return err
	}
	unit := r.unit(ctx)
	total, err := r.tracker.Add(ctx, unit.FromDisplay(v), model.SourceCompanion)
	if err != nil {
		return err
	}
	r.report(transport.PushIntake, r.link.Send(ctx, transport.PushIntake, transport.EncodeAmount(unit.ToDisplay(total))))
	return nil
}

// PushIntake re-derives today's total and sends it to every peer.
func (r *Router) PushIntake(ctx context.Context) transport.Result {
	total := r.tracker.Today(ctx)
	return r.link.Send(ctx, transport.PushIntake, transport.EncodeAmount(r.unit(ctx).ToDisplay(total)))
}

// PushGoal sends the stored goal to every peer.
func (r *Router) PushGoal(ctx context.Context) transport.Result {
	goal, err := r.state.Goal(ctx)
	if err != nil {
		return transport.Result{Kind: transport.Failed, Cause: err}
	}
	return r.link.Send(ctx, transport.PushGoal, transport.EncodeAmount(r.unit(ctx).ToDisplay(goal)))
}

// PushUnit sends the stored unit system to every peer.
func (r *Router) PushUnit(ctx context.Context) transport.Result {
	return r.link.Send(ctx, transport.PushUnit, r.unit(ctx).String())
}

func (r *Router) report(path transport.Path, res transport.Result) {
	switch res.Kind {
	case transport.Success:
	case transport.NoNodesFound:
		r.log.Debug("no companion reachable", "path", path)
	default:
		r.log.Warn("send to companions", "path", path, "result", res.String())
	}
}
