// Package transport carries named messages between this node and its
// companion devices and classifies the outcome of every send.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"
)

// Path identifies a logical message type. The set is closed; values
// serialize to the same wire strings paired devices already use.
type Path string

const (
	RequestIntake Path = "request-intake"
	PushIntake    Path = "push-intake"
	AddIntake     Path = "add-intake"
	PushGoal      Path = "push-goal"
	PushUnit      Path = "push-unit"
)

// Paths lists every known message type.
var Paths = []Path{RequestIntake, PushIntake, AddIntake, PushGoal, PushUnit}

// ErrUnknownPath is returned by ParsePath for strings outside the protocol.
var ErrUnknownPath = errors.New("unknown message path")

// ParsePath maps a wire string onto a Path.
func ParsePath(s string) (Path, error) {
	for _, p := range Paths {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPath, s)
}

// Message is a received message.
type Message struct {
	From    string
	Path    Path
	Payload string
}

// Handler consumes received messages.
type Handler interface {
	HandleMessage(ctx context.Context, msg Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message)

func (f HandlerFunc) HandleMessage(ctx context.Context, msg Message) { f(ctx, msg) }

// Kind classifies the outcome of a send.
type Kind int

const (
	Success Kind = iota
	NoNodesFound
	APINotAvailable
	Failed
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case NoNodesFound:
		return "no_nodes_found"
	case APINotAvailable:
		return "api_not_available"
	case Failed:
		return "error"
	}
	return "unknown"
}

// Result is the typed outcome of Send. Cause is set only for Failed.
type Result struct {
	Kind  Kind
	Cause error
}

// Err returns nil for Success and a descriptive error otherwise.
func (r Result) Err() error {
	switch r.Kind {
	case Success:
		return nil
	case Failed:
		return fmt.Errorf("send failed: %w", r.Cause)
	case APINotAvailable:
		return ErrUnavailable
	default:
		return errors.New(r.Kind.String())
	}
}

func (r Result) String() string {
	if r.Kind == Failed && r.Cause != nil {
		return r.Kind.String() + ": " + r.Cause.Error()
	}
	return r.Kind.String()
}

// ErrUnavailable reports that the messaging capability itself is missing,
// as opposed to there being no reachable peers.
var ErrUnavailable = errors.New("messaging api not available")

// Node is a reachable companion device. It is only valid for the send that
// enumerated it.
type Node struct {
	ID string
}

// NodeClient is the underlying messaging capability.
type NodeClient interface {
	// Nodes enumerates currently reachable peers. It returns ErrUnavailable
	// when the capability is missing.
	Nodes(ctx context.Context) ([]Node, error)

	// Deliver sends one message to one node.
	Deliver(ctx context.Context, node Node, path Path, payload string) error
}

// Sender is what the rest of the daemon needs from the link.
type Sender interface {
	Send(ctx context.Context, path Path, payload string) Result
}

// Link implements Sender over a NodeClient. A nil client means the
// capability is unavailable on this host.
type Link struct {
	client  NodeClient
	timeout time.Duration
	log     *slog.Logger
}

var _ Sender = (*Link)(nil)

// NewLink returns a Link. timeout bounds one whole send; zero means no bound
// beyond ctx.
func NewLink(client NodeClient, timeout time.Duration, log *slog.Logger) *Link {
	if log == nil {
		log = slog.Default()
	}
	return &Link{client: client, timeout: timeout, log: log}
}

// Send delivers payload under path to every reachable node, sequentially.
// Nothing is retried; callers re-issue at their next natural sync point.
func (l *Link) Send(ctx context.Context, path Path, payload string) Result {
	if l.client == nil {
		return Result{Kind: APINotAvailable}
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	nodes, err := l.client.Nodes(ctx)
	if errors.Is(err, ErrUnavailable) {
		return Result{Kind: APINotAvailable}
	}
	if err != nil {
		return Result{Kind: Failed, Cause: fmt.Errorf("enumerate nodes: %w", err)}
	}
	if len(nodes) == 0 {
		return Result{Kind: NoNodesFound}
	}

	for _, n := range nodes {
		if err := l.client.Deliver(ctx, n, path, payload); err != nil {
			return Result{Kind: Failed, Cause: fmt.Errorf("deliver %s to %s: %w", path, n.ID, err)}
		}
	}
	l.log.Debug("message sent", "path", path, "nodes", len(nodes))
	return Result{Kind: Success}
}

// EncodeAmount renders a number in its canonical base-10 text form.
func EncodeAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DecodeAmount parses a base-10 number, rejecting NaN and infinities.
func DecodeAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite amount %q", s)
	}
	return v, nil
}
