package sqs

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"sluice/internal/logging"
	"sluice/source"
)

// Client defines the SQS operations used by the driver.
type Client interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSDriver pulls from one AWS SQS queue. Receives are retried with bounded
// exponential backoff; auth failures surface immediately.
type SQSDriver struct {
	cfg    Config
	client Client
}

func (d *SQSDriver) Configure(raw any) error {
	cfg, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("sqs-source: want Config, got %T", raw)
	}
	if cfg.QueueURL == "" {
		return errors.New("sqs-source: queue_url is required")
	}
	applyDefaults(&cfg)
	d.cfg = cfg

	if d.client != nil { // injected for tests
		return nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	} else {
		logging.For("sqs-source").Info("no static credentials, using default chain")
	}
	ac, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("sqs-source: load aws config: %w", err)
	}
	d.client = sqs.NewFromConfig(ac, func(o *sqs.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = awsv2.String(cfg.Endpoint)
		}
	})
	return nil
}

// NewDriverWithClient builds a driver around a custom client.
func NewDriverWithClient(cfg Config, client Client) *SQSDriver {
	applyDefaults(&cfg)
	return &SQSDriver{cfg: cfg, client: client}
}

func (d *SQSDriver) Poll(ctx context.Context, max int) ([]source.Message, error) {
	if max < 1 {
		max = 1
	}
	if max > 10 {
		max = 10 // ReceiveMessage hard limit
	}
	in := &sqs.ReceiveMessageInput{
		QueueUrl:            awsv2.String(d.cfg.QueueURL),
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     int32(d.cfg.WaitTime / time.Second),
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameAll,
		},
		MessageAttributeNames: []string{"All"},
	}
	if d.cfg.VisibilityTimeout > 0 {
		in.VisibilityTimeout = int32(d.cfg.VisibilityTimeout / time.Second)
	}

	var lastErr error
	for attempt := 0; attempt < d.cfg.Backoff.Attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, d.backoff(attempt)); err != nil {
				return nil, err
			}
		}
		out, err := d.client.ReceiveMessage(ctx, in)
		if err == nil {
			return convertBatch(out.Messages), nil
		}
		if isAuthErr(err) {
			return nil, &source.AuthError{Op: "receive", Err: err}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		logging.For("sqs-source").Warn("receive failed", "attempt", attempt+1, "err", err)
	}
	return nil, &source.ConnectionError{Op: "receive", Err: lastErr}
}

func (d *SQSDriver) Acknowledge(ctx context.Context, ackToken string) error {
	_, err := d.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      awsv2.String(d.cfg.QueueURL),
		ReceiptHandle: awsv2.String(ackToken),
	})
	if err == nil {
		return nil
	}
	if isInvalidHandle(err) {
		return &source.AckError{Token: ackToken, Err: err}
	}
	if isAuthErr(err) {
		return &source.AuthError{Op: "delete", Err: err}
	}
	return &source.ConnectionError{Op: "delete", Err: err}
}

func (d *SQSDriver) Send(ctx context.Context, body []byte) (string, error) {
	out, err := d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    awsv2.String(d.cfg.QueueURL),
		MessageBody: awsv2.String(string(body)),
	})
	if err != nil {
		if isAuthErr(err) {
			return "", &source.AuthError{Op: "send", Err: err}
		}
		return "", &source.ConnectionError{Op: "send", Err: err}
	}
	return awsv2.ToString(out.MessageId), nil
}

func (d *SQSDriver) Close() error { return nil }

/*──────── helpers ───────*/

func (d *SQSDriver) backoff(attempt int) time.Duration {
	delay := d.cfg.Backoff.Base
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * d.cfg.Backoff.Factor)
		if delay >= d.cfg.Backoff.Cap {
			return d.cfg.Backoff.Cap
		}
	}
	if delay > d.cfg.Backoff.Cap {
		delay = d.cfg.Backoff.Cap
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func convertBatch(msgs []sqstypes.Message) []source.Message {
	now := time.Now()
	out := make([]source.Message, 0, len(msgs))
	for _, m := range msgs {
		sm := source.Message{
			ID:           awsv2.ToString(m.MessageId),
			Body:         []byte(awsv2.ToString(m.Body)),
			AckToken:     awsv2.ToString(m.ReceiptHandle),
			ReceiveCount: 1,
			ReceivedAt:   now,
		}
		if len(m.Attributes) > 0 {
			sm.Attributes = make(map[string]string, len(m.Attributes))
			for k, v := range m.Attributes {
				sm.Attributes[k] = v
			}
			if rc, err := strconv.Atoi(m.Attributes["ApproximateReceiveCount"]); err == nil && rc > 0 {
				sm.ReceiveCount = rc
			}
			if ms, err := strconv.ParseInt(m.Attributes["SentTimestamp"], 10, 64); err == nil {
				sm.EnqueuedAt = time.UnixMilli(ms)
			}
		}
		out = append(out, sm)
	}
	return out
}

func isAuthErr(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "AccessDenied", "AccessDeniedException",
		"InvalidClientTokenId", "UnrecognizedClientException",
		"ExpiredToken", "SignatureDoesNotMatch":
		return true
	}
	return false
}

func isInvalidHandle(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "ReceiptHandleIsInvalid", "InvalidParameterValue":
		return true
	}
	return false
}

func init() { source.Register("sqs", func() source.Adapter { return &SQSDriver{} }) }
