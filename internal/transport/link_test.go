package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	node    string
	path    Path
	payload string
}

type fakeClient struct {
	nodes     []Node
	nodesErr  error
	failOn    string
	delivered []delivery
}

func (f *fakeClient) Nodes(context.Context) ([]Node, error) {
	return f.nodes, f.nodesErr
}

func (f *fakeClient) Deliver(_ context.Context, n Node, p Path, payload string) error {
	if n.ID == f.failOn {
		return errors.New("link dropped")
	}
	f.delivered = append(f.delivered, delivery{n.ID, p, payload})
	return nil
}

func TestSendNoNodes(t *testing.T) {
	l := NewLink(&fakeClient{}, time.Second, nil)
	for _, p := range Paths {
		res := l.Send(context.Background(), p, "1")
		assert.Equal(t, NoNodesFound, res.Kind, p)
		assert.NoError(t, res.Cause)
	}
}

func TestSendUnavailable(t *testing.T) {
	res := NewLink(nil, 0, nil).Send(context.Background(), PushGoal, "2000")
	assert.Equal(t, APINotAvailable, res.Kind)
	assert.ErrorIs(t, res.Err(), ErrUnavailable)

	res = NewLink(&fakeClient{nodesErr: ErrUnavailable}, 0, nil).Send(context.Background(), PushGoal, "2000")
	assert.Equal(t, APINotAvailable, res.Kind)
}

func TestSendSuccessReachesEveryNode(t *testing.T) {
	c := &fakeClient{nodes: []Node{{ID: "watch"}, {ID: "widget"}}}
	res := NewLink(c, time.Second, nil).Send(context.Background(), PushIntake, "750")
	require.Equal(t, Success, res.Kind)
	assert.NoError(t, res.Err())
	assert.Equal(t, []delivery{
		{"watch", PushIntake, "750"},
		{"widget", PushIntake, "750"},
	}, c.delivered)
}

func TestSendPartialFailureIsError(t *testing.T) {
	c := &fakeClient{nodes: []Node{{ID: "a"}, {ID: "b"}, {ID: "c"}}, failOn: "b"}
	res := NewLink(c, time.Second, nil).Send(context.Background(), PushUnit, "true")
	assert.Equal(t, Failed, res.Kind)
	assert.Error(t, res.Cause)
	assert.Contains(t, res.String(), "link dropped")
	// Delivery stops at the first failure; no retry.
	assert.Len(t, c.delivered, 1)
}

func TestSendEnumerationError(t *testing.T) {
	c := &fakeClient{nodesErr: errors.New("broker said no")}
	res := NewLink(c, 0, nil).Send(context.Background(), RequestIntake, "")
	assert.Equal(t, Failed, res.Kind)
}

func TestParsePath(t *testing.T) {
	for _, p := range Paths {
		got, err := ParsePath(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ParsePath("push-mood")
	assert.ErrorIs(t, err, ErrUnknownPath)
}

func TestDecodeAmount(t *testing.T) {
	v, err := DecodeAmount("250.5")
	require.NoError(t, err)
	assert.Equal(t, 250.5, v)

	for _, bad := range []string{"not-a-number", "", "NaN", "+Inf"} {
		_, err := DecodeAmount(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "1500", EncodeAmount(1500))
}

func TestNodeSubject(t *testing.T) {
	assert.Equal(t, "hydrosync.node.abc-123.add-intake", nodeSubject("abc-123", AddIntake))
}

func TestNATSClientWithoutConnection(t *testing.T) {
	c := NewNATSClient(nil, "self", 10*time.Millisecond, nil)
	assert.False(t, c.Available())
	_, err := c.Nodes(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, c.Listen(HandlerFunc(func(context.Context, Message) {})), ErrUnavailable)

	res := NewLink(c, 0, nil).Send(context.Background(), PushIntake, "1")
	assert.Equal(t, APINotAvailable, res.Kind)
}
