package sqs

import (
	"context"
	"errors"
	"testing"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"sluice/source"
)

type fakeClient struct {
	receiveErrs []error // popped per call; nil entry = success
	received    []*sqs.ReceiveMessageInput
	messages    []sqstypes.Message

	deleteErr error
	deleted   []string

	sendErr error
}

func (f *fakeClient) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.received = append(f.received, in)
	if len(f.receiveErrs) > 0 {
		err := f.receiveErrs[0]
		f.receiveErrs = f.receiveErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeClient) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, awsv2.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeClient) SendMessage(context.Context, *sqs.SendMessageInput, ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &sqs.SendMessageOutput{MessageId: awsv2.String("sent-1")}, nil
}

func testDriver(client Client) *SQSDriver {
	return NewDriverWithClient(Config{
		QueueURL: "https://sqs.us-east-1.amazonaws.com/1/q",
		WaitTime: 5 * time.Second,
		Backoff:  BackoffCfg{Base: time.Millisecond, Factor: 2, Cap: 5 * time.Millisecond, Attempts: 3},
	}, client)
}

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func TestConfigure_AppliesDefaults(t *testing.T) {
	fc := &fakeClient{}
	d := &SQSDriver{client: fc}
	if err := d.Configure(Config{QueueURL: "https://sqs.us-east-1.amazonaws.com/1/q"}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if d.cfg.Backoff.Attempts != 5 || d.cfg.Backoff.Base != 500*time.Millisecond {
		t.Fatalf("backoff defaults not applied: %+v", d.cfg.Backoff)
	}
	if d.cfg.WaitTime != 20*time.Second {
		t.Fatalf("wait_time default = %s", d.cfg.WaitTime)
	}

	// a zero attempt budget would surface here as an error with no receive call
	if _, err := d.Poll(context.Background(), 10); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(fc.received) != 1 {
		t.Fatalf("receive calls = %d, want 1", len(fc.received))
	}
}

func TestConfigure_RequiresQueueURL(t *testing.T) {
	d := &SQSDriver{client: &fakeClient{}}
	if err := d.Configure(Config{}); err == nil {
		t.Fatal("expected error for missing queue_url")
	}
}

func TestPoll_ConvertsMessages(t *testing.T) {
	fc := &fakeClient{messages: []sqstypes.Message{{
		MessageId:     awsv2.String("m1"),
		Body:          awsv2.String(`{"a":1}`),
		ReceiptHandle: awsv2.String("rh-1"),
		Attributes: map[string]string{
			"ApproximateReceiveCount": "3",
			"SentTimestamp":           "1700000000000",
		},
	}}}
	d := testDriver(fc)

	batch, err := d.Poll(context.Background(), 10)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("got %d messages", len(batch))
	}
	m := batch[0]
	if m.ID != "m1" || string(m.Body) != `{"a":1}` || m.AckToken != "rh-1" {
		t.Fatalf("unexpected message: %+v", m)
	}
	if m.ReceiveCount != 3 {
		t.Fatalf("receive_count = %d, want 3", m.ReceiveCount)
	}
	if m.EnqueuedAt != time.UnixMilli(1700000000000) {
		t.Fatalf("enqueued_at = %v", m.EnqueuedAt)
	}
}

func TestPoll_ClampsBatchSize(t *testing.T) {
	fc := &fakeClient{}
	d := testDriver(fc)

	if _, err := d.Poll(context.Background(), 50); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got := fc.received[0].MaxNumberOfMessages; got != 10 {
		t.Fatalf("MaxNumberOfMessages = %d, want hard limit 10", got)
	}

	if _, err := d.Poll(context.Background(), 0); err != nil {
		t.Fatalf("poll: %v", err)
	}
	if got := fc.received[1].MaxNumberOfMessages; got != 1 {
		t.Fatalf("MaxNumberOfMessages = %d, want floor 1", got)
	}
}

func TestPoll_RetriesThenSucceeds(t *testing.T) {
	fc := &fakeClient{receiveErrs: []error{errors.New("conn reset"), nil}}
	d := testDriver(fc)

	if _, err := d.Poll(context.Background(), 10); err != nil {
		t.Fatalf("poll after retry: %v", err)
	}
	if len(fc.received) != 2 {
		t.Fatalf("receive calls = %d, want 2", len(fc.received))
	}
}

func TestPoll_ExhaustedRetriesReturnConnectionError(t *testing.T) {
	fc := &fakeClient{receiveErrs: []error{
		errors.New("e1"), errors.New("e2"), errors.New("e3"),
	}}
	d := testDriver(fc)

	_, err := d.Poll(context.Background(), 10)
	var ce *source.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConnectionError, got %v", err)
	}
	if len(fc.received) != 3 {
		t.Fatalf("receive calls = %d, want 3 attempts", len(fc.received))
	}
}

func TestPoll_AuthErrorImmediate(t *testing.T) {
	fc := &fakeClient{receiveErrs: []error{apiErr("AccessDenied")}}
	d := testDriver(fc)

	_, err := d.Poll(context.Background(), 10)
	var ae *source.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("want AuthError, got %v", err)
	}
	if len(fc.received) != 1 {
		t.Fatalf("auth failures must not be retried, got %d calls", len(fc.received))
	}
}

func TestAcknowledge(t *testing.T) {
	fc := &fakeClient{}
	d := testDriver(fc)

	if err := d.Acknowledge(context.Background(), "rh-1"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if len(fc.deleted) != 1 || fc.deleted[0] != "rh-1" {
		t.Fatalf("deleted = %v", fc.deleted)
	}
}

func TestAcknowledge_ErrorClasses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want func(error) bool
	}{
		{"invalid handle", apiErr("ReceiptHandleIsInvalid"), func(err error) bool {
			var e *source.AckError
			return errors.As(err, &e)
		}},
		{"auth", apiErr("ExpiredToken"), func(err error) bool {
			var e *source.AuthError
			return errors.As(err, &e)
		}},
		{"transport", errors.New("conn reset"), func(err error) bool {
			var e *source.ConnectionError
			return errors.As(err, &e)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := testDriver(&fakeClient{deleteErr: tc.err})
			if err := d.Acknowledge(context.Background(), "rh"); !tc.want(err) {
				t.Fatalf("wrong error class: %v", err)
			}
		})
	}
}

func TestSend(t *testing.T) {
	d := testDriver(&fakeClient{})
	id, err := d.Send(context.Background(), []byte("payload"))
	if err != nil || id != "sent-1" {
		t.Fatalf("send: id=%q err=%v", id, err)
	}
}

func TestBackoffProgression(t *testing.T) {
	d := testDriver(nil)
	d.cfg.Backoff = BackoffCfg{Base: 100 * time.Millisecond, Factor: 2, Cap: 300 * time.Millisecond, Attempts: 5}

	want := []time.Duration{
		100 * time.Millisecond, // attempt 1
		200 * time.Millisecond, // attempt 2
		300 * time.Millisecond, // attempt 3, capped
		300 * time.Millisecond, // attempt 4, capped
	}
	for i, w := range want {
		if got := d.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
}
