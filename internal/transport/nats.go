package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	subjectPrefix   = "hydrosync"
	presenceSubject = subjectPrefix + ".presence"

	// HeaderFrom carries the sender's node ID.
	HeaderFrom = "Hydrosync-From"

	defaultFlushTimeout   = 2 * time.Second
	defaultHandlerTimeout = 5 * time.Second
)

func nodeSubject(nodeID string, path Path) string {
	return subjectPrefix + ".node." + nodeID + "." + string(path)
}

// Connect opens a NATS connection that keeps retrying in the background,
// so a daemon started before the broker comes up still links later. extra
// options are applied last.
func Connect(url, name string, log *slog.Logger, extra ...nats.Option) (*nats.Conn, error) {
	if log == nil {
		log = slog.Default()
	}
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(5 * time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			log.Error("nats error", "subject", subject, "error", err)
		}),
		nats.DrainTimeout(10 * time.Second),
	}
	opts = append(opts, extra...)

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// NATSClient implements NodeClient on a NATS connection. Peers announce
// themselves by answering presence requests; each peer listens on its own
// subject per message path.
type NATSClient struct {
	nc        *nats.Conn
	nodeID    string
	discovery time.Duration
	log       *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

var _ NodeClient = (*NATSClient)(nil)

// NewNATSClient returns a client identified by nodeID. discovery is how long
// Nodes waits for presence replies.
func NewNATSClient(nc *nats.Conn, nodeID string, discovery time.Duration, log *slog.Logger) *NATSClient {
	if log == nil {
		log = slog.Default()
	}
	return &NATSClient{nc: nc, nodeID: nodeID, discovery: discovery, log: log}
}

// Available reports whether the broker connection is usable.
func (c *NATSClient) Available() bool {
	return c.nc != nil && c.nc.IsConnected()
}

// Nodes broadcasts a presence request and collects the IDs that answer
// within the discovery window.
func (c *NATSClient) Nodes(ctx context.Context) ([]Node, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}

	inbox := nats.NewInbox()
	sub, err := c.nc.SubscribeSync(inbox)
	if err != nil {
		return nil, fmt.Errorf("subscribe inbox: %w", err)
	}
	defer sub.Unsubscribe()

	if err := c.nc.PublishRequest(presenceSubject, inbox, []byte(c.nodeID)); err != nil {
		return nil, fmt.Errorf("publish presence: %w", err)
	}

	deadline := time.Now().Add(c.discovery)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	seen := make(map[string]bool)
	var nodes []Node
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		msg, err := sub.NextMsg(remaining)
		if errors.Is(err, nats.ErrTimeout) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read presence: %w", err)
		}
		id := strings.TrimSpace(string(msg.Data))
		if id == "" || id == c.nodeID || seen[id] {
			continue
		}
		seen[id] = true
		nodes = append(nodes, Node{ID: id})
	}
	return nodes, nil
}

// Deliver publishes to the node's subject and flushes, so transmission
// errors surface here instead of being lost in the client buffer.
func (c *NATSClient) Deliver(ctx context.Context, node Node, path Path, payload string) error {
	if !c.Available() {
		return ErrUnavailable
	}
	msg := nats.NewMsg(nodeSubject(node.ID, path))
	msg.Data = []byte(payload)
	msg.Header.Set(HeaderFrom, c.nodeID)
	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}
	if _, ok := ctx.Deadline(); ok {
		return c.nc.FlushWithContext(ctx)
	}
	return c.nc.FlushTimeout(defaultFlushTimeout)
}

// Listen answers presence requests and hands every message addressed to this
// node to h. Messages on unknown paths are logged and dropped.
func (c *NATSClient) Listen(h Handler) error {
	if c.nc == nil {
		return ErrUnavailable
	}

	presence, err := c.nc.Subscribe(presenceSubject, func(m *nats.Msg) {
		if string(m.Data) == c.nodeID || m.Reply == "" {
			return
		}
		if err := m.Respond([]byte(c.nodeID)); err != nil {
			c.log.Warn("answer presence", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe presence: %w", err)
	}

	inbound, err := c.nc.Subscribe(nodeSubject(c.nodeID, "*"), func(m *nats.Msg) {
		token := m.Subject[strings.LastIndexByte(m.Subject, '.')+1:]
		path, err := ParsePath(token)
		if err != nil {
			c.log.Warn("drop message", "subject", m.Subject, "error", err)
			return
		}
		from := ""
		if m.Header != nil {
			from = m.Header.Get(HeaderFrom)
		}
		ctx, cancel := context.WithTimeout(context.Background(), defaultHandlerTimeout)
		defer cancel()
		h.HandleMessage(ctx, Message{From: from, Path: path, Payload: string(m.Data)})
	})
	if err != nil {
		presence.Unsubscribe()
		return fmt.Errorf("subscribe inbound: %w", err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, presence, inbound)
	c.mu.Unlock()

	// Presence requests sent before the server registers the interest would
	// go unanswered.
	if err := c.nc.Flush(); err != nil {
		return fmt.Errorf("flush subscriptions: %w", err)
	}
	c.log.Info("listening for companion messages", "node", c.nodeID)
	return nil
}

// Close removes this client's subscriptions. The connection is left to its
// owner.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.subs {
		if err := s.Unsubscribe(); err != nil {
			c.log.Debug("unsubscribe", "subject", s.Subject, "error", err)
		}
	}
	c.subs = nil
}
