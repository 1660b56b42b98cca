package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"sluice/internal/logging"
	"sluice/sink"
)

type Config struct {
	Brokers []string `yaml:"brokers"`
	Acks    int16    `yaml:"required_acks"` // 0,1,-1; forced to -1 when idempotent
	Version string   `yaml:"version"`

	TLSEn    bool   `yaml:"tls_enabled"`
	SASLUser string `yaml:"sasl_user"`
	SASLPass string `yaml:"sasl_pass"`

	Retries         int           `yaml:"retries"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
	MaxMessageBytes int           `yaml:"max_message_bytes"`
	Idempotent      *bool         `yaml:"idempotent"` // default true
}

// driver publishes synchronously through an idempotent sarama producer, so a
// retried attempt cannot create duplicate broker entries for the same send.
type driver struct {
	cfg   Config
	p     sarama.SyncProducer
	admin sarama.ClusterAdmin
}

func (d *driver) Configure(raw any) error {
	cfg, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", raw)
	}
	applyDefaults(&cfg)
	d.cfg = cfg

	sc := sarama.NewConfig()
	if cfg.Version != "" {
		ver, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return err
		}
		sc.Version = ver
	}
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Retry.Max = cfg.Retries
	sc.Producer.Retry.Backoff = cfg.RetryBackoff
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	if cfg.Idempotent == nil || *cfg.Idempotent {
		// broker-level dedup needs acks=all and one in-flight request
		sc.Producer.Idempotent = true
		sc.Producer.RequiredAcks = sarama.WaitForAll
		sc.Net.MaxOpenRequests = 1
	}
	if cfg.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if cfg.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = cfg.SASLUser, cfg.SASLPass
	}

	var err error
	if d.p, err = sarama.NewSyncProducer(cfg.Brokers, sc); err != nil {
		return fmt.Errorf("kafka-sink: producer: %w", err)
	}
	if d.admin, err = sarama.NewClusterAdmin(cfg.Brokers, sc); err != nil {
		_ = d.p.Close()
		d.p = nil
		return fmt.Errorf("kafka-sink: admin: %w", err)
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Acks == 0 {
		c.Acks = int16(sarama.WaitForAll)
	}
	if c.Retries <= 0 {
		c.Retries = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1_000_000
	}
}

func (d *driver) EnsureTopic(_ context.Context, name string, partitions, replication int, configs map[string]string) error {
	if partitions < 1 {
		return &sink.ConfigError{Reason: fmt.Sprintf("partitions must be >= 1, got %d", partitions)}
	}
	if replication < 1 {
		return &sink.ConfigError{Reason: fmt.Sprintf("replication must be >= 1, got %d", replication)}
	}
	if err := ValidateTopicName(name); err != nil {
		return &sink.ConfigError{Reason: err.Error()}
	}
	if discouragedPrefix(name) {
		logging.For("kafka-sink").Warn("topic name starts with '.' or '_'", "topic", name)
	}

	existing, err := d.admin.ListTopics()
	if err != nil {
		return fmt.Errorf("kafka-sink: list topics: %w", err)
	}
	if _, ok := existing[name]; ok {
		return nil
	}

	detail := &sarama.TopicDetail{
		NumPartitions:     int32(partitions),
		ReplicationFactor: int16(replication),
	}
	if len(configs) > 0 {
		detail.ConfigEntries = make(map[string]*string, len(configs))
		for k, v := range configs {
			v := v
			detail.ConfigEntries[k] = &v
		}
	}
	if err := d.admin.CreateTopic(name, detail, false); err != nil {
		// lost a create race; somebody else made it
		if errors.Is(err, sarama.ErrTopicAlreadyExists) {
			return nil
		}
		var te *sarama.TopicError
		if errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists {
			return nil
		}
		return fmt.Errorf("kafka-sink: create topic %q: %w", name, err)
	}
	logging.For("kafka-sink").Info("created topic", "topic", name, "partitions", partitions, "replication", replication)
	return nil
}

func (d *driver) Publish(ctx context.Context, topic string, rec sink.Record) (sink.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return sink.Receipt{}, err
	}
	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.ByteEncoder(rec.Key),
		Value: sarama.ByteEncoder(rec.Value),
	}
	for k, v := range rec.Headers {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: v})
	}
	partition, offset, err := d.p.SendMessage(msg)
	if err != nil {
		return sink.Receipt{}, &sink.PublishError{Topic: topic, Err: err}
	}
	return sink.Receipt{Partition: partition, Offset: offset}, nil
}

func (d *driver) Close() error {
	var first error
	if d.p != nil {
		first = d.p.Close()
		d.p = nil
	}
	if d.admin != nil {
		if err := d.admin.Close(); err != nil && first == nil {
			first = err
		}
		d.admin = nil
	}
	return first
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
