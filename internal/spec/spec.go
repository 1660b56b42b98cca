package spec

type SinkConfigs struct {
	Kafka  KafkaSinkSpec  `yaml:"kafka"`
	Stdout StdoutSinkSpec `yaml:"stdout"`
}

type KafkaSinkSpec struct {
	Brokers         []string `yaml:"brokers"`
	RequiredAcks    int16    `yaml:"required_acks"` // 0,1,-1
	Version         string   `yaml:"version"`
	TLSEnabled      bool     `yaml:"tls_enabled"`
	SASLUser        string   `yaml:"sasl_user"`
	SASLPass        string   `yaml:"sasl_pass"`
	Retries         int      `yaml:"retries"`
	RetryBackoffMS  int      `yaml:"retry_backoff_ms"`
	MaxMessageBytes int      `yaml:"max_message_bytes"`
	Idempotent      *bool    `yaml:"idempotent"`
}

type StdoutSinkSpec struct {
	DelayMS       int  `yaml:"delay_ms"`
	PrintCounter  bool `yaml:"print_counter"`
	PrintValue    bool `yaml:"print_value"`
	ValueMaxBytes int  `yaml:"value_max_bytes"`
}

// MemorySourceSpec configures the in-process simulator queue inline; the sqs
// driver reads its own config file instead.
type MemorySourceSpec struct {
	VisibilityTimeoutMS int `yaml:"visibility_timeout_ms"`
	WaitTimeMS          int `yaml:"wait_time_ms"`
}

type TransformSpec struct {
	Source       string `yaml:"source"` // provenance tag in the envelope
	StrictJSON   bool   `yaml:"strict_json"`
	MaxBodyBytes int    `yaml:"max_body_bytes"`
}

type ProcessorSpec struct {
	Topic            string `yaml:"topic"`
	TopicPartitions  int    `yaml:"topic_partitions"`
	TopicReplication int    `yaml:"topic_replication"`
	DeadLetterTopic  string `yaml:"dead_letter_topic"`

	BatchSize         int `yaml:"batch_size"`
	PollTimeoutMS     int `yaml:"poll_timeout_ms"`
	IdleIntervalMS    int `yaml:"idle_interval_ms"`
	PublishRetryLimit int `yaml:"publish_retry_limit"`
	PublishTimeoutMS  int `yaml:"publish_timeout_ms"`
	RetryPolicy       struct {
		BackoffMS int     `yaml:"backoff_ms"`
		Factor    float64 `yaml:"factor"`
		CapMS     int     `yaml:"cap_ms"`
	} `yaml:"retry_policy"`
	PoisonThreshold int `yaml:"poison_threshold"`

	SampleIntervalMS int `yaml:"sample_interval_ms"`
	HistoryCapacity  int `yaml:"history_capacity"`
	FreshnessMS      int `yaml:"freshness_ms"`
	ErrorDecayMS     int `yaml:"error_decay_ms"`
}

type File struct {
	SchemaVersion string `yaml:"schema_version"`

	Source struct {
		Driver string           `yaml:"driver"` // "sqs", "memory", …
		Config string           `yaml:"config"` // driver config file (sqs)
		Memory MemorySourceSpec `yaml:"memory"`
	} `yaml:"source"`

	Processor ProcessorSpec `yaml:"processor"`
	Transform TransformSpec `yaml:"transform"`

	Sink        string      `yaml:"sink"` // "kafka", "stdout", …
	SinkConfigs SinkConfigs `yaml:"sink_configs"`

	// Autostart launches the stream at boot instead of waiting for the
	// control plane to call start.
	Autostart bool `yaml:"autostart"`
}
