package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/hydrosync/internal/model"
)

func TestReminderBody(t *testing.T) {
	r := Reminder{IntakeML: 750, GoalML: 2000, Unit: model.Metric}
	assert.Equal(t, "You've had 750 mL of 2000 mL today.", r.Body())

	r.GoalML = 0
	assert.Equal(t, "You've had 750 mL today.", r.Body())
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Log: slog.New(slog.NewTextHandler(&buf, nil))}
	require.NoError(t, n.Notify(context.Background(), Reminder{IntakeML: 500, GoalML: 2000}))
	assert.Contains(t, buf.String(), "Time to hydrate")
	assert.Contains(t, buf.String(), "intake_ml=500")
}

type fakeNotifier struct {
	err   error
	calls int
}

func (f *fakeNotifier) Notify(context.Context, Reminder) error {
	f.calls++
	return f.err
}

func TestMultiReachesEveryNotifier(t *testing.T) {
	bad := &fakeNotifier{err: errors.New("offline")}
	good := &fakeNotifier{}
	err := Multi{bad, good}.Notify(context.Background(), Reminder{})
	assert.ErrorContains(t, err, "offline")
	assert.Equal(t, 1, bad.calls)
	assert.Equal(t, 1, good.calls)

	assert.NoError(t, Multi{good}.Notify(context.Background(), Reminder{}))
}

type fakePublisher struct {
	in  *sns.PublishInput
	err error
}

func (f *fakePublisher) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestSNSNotifier(t *testing.T) {
	pub := &fakePublisher{}
	n := NewSNSNotifierWithClient(pub, "arn:aws:sns:us-east-1:123456789012:hydrosync")
	r := Reminder{IntakeML: 8 * model.MillilitersPerFluidOunce, GoalML: 64 * model.MillilitersPerFluidOunce, Unit: model.Imperial}
	require.NoError(t, n.Notify(context.Background(), r))

	require.NotNil(t, pub.in)
	assert.Equal(t, "json", aws.ToString(pub.in.MessageStructure))
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:hydrosync", aws.ToString(pub.in.TargetArn))

	var msg map[string]string
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(pub.in.Message)), &msg))
	assert.Equal(t, r.Body(), msg["default"])

	var gcm struct {
		Notification map[string]string `json:"notification"`
		Data         map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg["GCM"]), &gcm))
	assert.Equal(t, "Time to hydrate", gcm.Notification["title"])
	assert.Equal(t, "64", gcm.Data["goal"])
}

func TestSNSNotifierError(t *testing.T) {
	n := NewSNSNotifierWithClient(&fakePublisher{err: errors.New("throttled")}, "arn")
	assert.ErrorContains(t, n.Notify(context.Background(), Reminder{}), "throttled")
}
