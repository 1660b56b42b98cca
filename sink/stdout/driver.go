package stdout

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"sluice/sink"
)

/* ────────── public YAML config ────────── */
type Config struct {
	DelayMS       int  `yaml:"delay_ms"`        // artificial per-record delay
	PrintCounter  bool `yaml:"print_counter"`   // prepend seq#
	PrintValue    bool `yaml:"print_value"`     // dump record value
	ValueMaxBytes int  `yaml:"value_max_bytes"` // truncate printed value (0 = 256)
}

/* ────────── driver ────────── */

// driver is a debugging sink: every record is "durable" the moment it is
// printed, with a fake monotonically increasing offset.
type driver struct {
	cfg Config
	seq uint64
}

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	if c.ValueMaxBytes <= 0 {
		c.ValueMaxBytes = 256
	}
	d.cfg = c
	return nil
}

func (d *driver) EnsureTopic(context.Context, string, int, int, map[string]string) error {
	return nil
}

func (d *driver) Publish(ctx context.Context, topic string, rec sink.Record) (sink.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return sink.Receipt{}, err
	}
	if d.cfg.DelayMS > 0 {
		time.Sleep(time.Duration(d.cfg.DelayMS) * time.Millisecond)
	}

	seq := atomic.AddUint64(&d.seq, 1)
	if d.cfg.PrintCounter {
		fmt.Printf("[sink %06d] %s key=%s", seq, topic, rec.Key)
	} else {
		fmt.Printf("[sink] %s key=%s", topic, rec.Key)
	}
	if d.cfg.PrintValue {
		v := rec.Value
		if len(v) > d.cfg.ValueMaxBytes {
			v = v[:d.cfg.ValueMaxBytes]
		}
		fmt.Printf(" value=%s", v)
	}
	fmt.Println()

	return sink.Receipt{Partition: 0, Offset: int64(seq - 1)}, nil
}

func (d *driver) Close() error { return nil }

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
