package pipeline

import (
	"fmt"
	"time"

	"sluice/internal/config"
	"sluice/internal/metrics"
	"sluice/internal/processor"
	"sluice/internal/spec"
	"sluice/internal/transform"
	"sluice/sink"
	sinkkafka "sluice/sink/kafka"
	"sluice/sink/stdout"
	"sluice/source"
	"sluice/source/memory"
)

// Compile parses a pipeline YAML, wires the source and sink drivers through
// their registries, and returns the ready-to-start engine.
func Compile(path string) (*processor.Engine, bool, error) {
	cfg, confPath, err := config.LoadPipelineSpec(path)
	if err != nil {
		return nil, false, err
	}

	src, err := buildSource(cfg, confPath)
	if err != nil {
		return nil, false, err
	}
	snk, err := buildSink(cfg)
	if err != nil {
		return nil, false, err
	}

	xform := transform.Envelope(transform.EnvelopeConfig{
		Source:       cfg.Transform.Source,
		StrictJSON:   cfg.Transform.StrictJSON,
		MaxBodyBytes: cfg.Transform.MaxBodyBytes,
	})
	reg := metrics.NewRegistry(cfg.Processor.HistoryCapacity)

	eng := processor.New(processorConfig(cfg.Processor), src, snk, xform, reg)
	return eng, cfg.Autostart, nil
}

func buildSource(cfg spec.File, confPath string) (source.Adapter, error) {
	src, err := source.NewAdapter(cfg.Source.Driver)
	if err != nil {
		return nil, err
	}
	switch cfg.Source.Driver {
	case "sqs":
		sc, err := config.LoadSQSConfig(confPath)
		if err != nil {
			return nil, err
		}
		if err := src.Configure(sc); err != nil {
			return nil, err
		}
	case "memory":
		mc := memory.Config{
			VisibilityTimeout: ms(cfg.Source.Memory.VisibilityTimeoutMS),
			WaitTime:          ms(cfg.Source.Memory.WaitTimeMS),
		}
		if err := src.Configure(mc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("no config mapping for source %q", cfg.Source.Driver)
	}
	return src, nil
}

func buildSink(cfg spec.File) (sink.Adapter, error) {
	name := cfg.Sink
	if name == "" {
		name = "kafka"
	}
	snk, err := sink.NewAdapter(name)
	if err != nil {
		return nil, err
	}
	switch name {
	case "kafka":
		kc := cfg.SinkConfigs.Kafka
		err = snk.Configure(sinkkafka.Config{
			Brokers:         kc.Brokers,
			Acks:            kc.RequiredAcks,
			Version:         kc.Version,
			TLSEn:           kc.TLSEnabled,
			SASLUser:        kc.SASLUser,
			SASLPass:        kc.SASLPass,
			Retries:         kc.Retries,
			RetryBackoff:    ms(kc.RetryBackoffMS),
			MaxMessageBytes: kc.MaxMessageBytes,
			Idempotent:      kc.Idempotent,
		})
	case "stdout":
		sc := cfg.SinkConfigs.Stdout
		err = snk.Configure(stdout.Config{
			DelayMS:       sc.DelayMS,
			PrintCounter:  sc.PrintCounter,
			PrintValue:    sc.PrintValue,
			ValueMaxBytes: sc.ValueMaxBytes,
		})
	default:
		err = fmt.Errorf("no config block for sink %q", name)
	}
	if err != nil {
		return nil, err
	}
	return snk, nil
}

func processorConfig(p spec.ProcessorSpec) processor.Config {
	return processor.Config{
		Topic:             p.Topic,
		TopicPartitions:   p.TopicPartitions,
		TopicReplication:  p.TopicReplication,
		DeadLetterTopic:   p.DeadLetterTopic,
		BatchSize:         p.BatchSize,
		PollTimeout:       ms(p.PollTimeoutMS),
		IdleInterval:      ms(p.IdleIntervalMS),
		PublishRetryLimit: p.PublishRetryLimit,
		PublishTimeout:    ms(p.PublishTimeoutMS),
		PublishBackoff:    ms(p.RetryPolicy.BackoffMS),
		BackoffFactor:     p.RetryPolicy.Factor,
		BackoffCap:        ms(p.RetryPolicy.CapMS),
		PoisonThreshold:   p.PoisonThreshold,
		SampleInterval:    ms(p.SampleIntervalMS),
		Freshness:         ms(p.FreshnessMS),
		ErrorDecay:        ms(p.ErrorDecayMS),
	}
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
