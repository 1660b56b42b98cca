package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sluice/sink"
	"sluice/source"
)

// Func turns one source message into the record to publish. A *FormatError
// marks the message as invalid: it is neither published nor acknowledged.
type Func func(ctx context.Context, msg source.Message) (sink.Record, error)

// FormatError is the per-message, non-fatal validation failure class.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string { return "transform: " + e.Reason }

// EnvelopeConfig tunes the default enrichment transformer.
type EnvelopeConfig struct {
	Source       string `yaml:"source"`         // provenance tag, default "aws-sqs"
	StrictJSON   bool   `yaml:"strict_json"`    // reject bodies that are not valid JSON
	MaxBodyBytes int    `yaml:"max_body_bytes"` // 0 = unlimited
}

type envelope struct {
	MessageID string          `json:"message_id"`
	Source    string          `json:"source"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Envelope wraps each body in a JSON envelope keyed by the message ID:
// {message_id, source, timestamp, data}. A JSON body is embedded as-is; a
// non-JSON body is either rejected (strict mode) or wrapped as
// {"raw_message": …}.
func Envelope(cfg EnvelopeConfig) Func {
	if cfg.Source == "" {
		cfg.Source = "aws-sqs"
	}
	return func(_ context.Context, msg source.Message) (sink.Record, error) {
		if cfg.MaxBodyBytes > 0 && len(msg.Body) > cfg.MaxBodyBytes {
			return sink.Record{}, &FormatError{
				Reason: fmt.Sprintf("body of %d bytes exceeds limit %d", len(msg.Body), cfg.MaxBodyBytes),
			}
		}

		data := json.RawMessage(msg.Body)
		if !json.Valid(msg.Body) {
			if cfg.StrictJSON {
				return sink.Record{}, &FormatError{Reason: "body is not valid JSON"}
			}
			wrapped, err := json.Marshal(map[string]string{"raw_message": string(msg.Body)})
			if err != nil {
				return sink.Record{}, &FormatError{Reason: "body cannot be wrapped: " + err.Error()}
			}
			data = wrapped
		}

		value, err := json.Marshal(envelope{
			MessageID: msg.ID,
			Source:    cfg.Source,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Data:      data,
		})
		if err != nil {
			return sink.Record{}, fmt.Errorf("transform: marshal envelope: %w", err)
		}
		return sink.Record{Key: []byte(msg.ID), Value: value}, nil
	}
}
