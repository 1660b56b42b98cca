package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sluice",
		Name:      "messages_processed_total",
		Help:      "Messages published to the sink and acknowledged at the source.",
	})
	ProcessingErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sluice",
		Name:      "processing_errors_total",
		Help:      "Poll failures plus per-message validation/transform failures.",
	})
	SinkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sluice",
		Name:      "sink_errors_total",
		Help:      "Failed publish attempts, counted per attempt.",
	})
	AckErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sluice",
		Name:      "ack_errors_total",
		Help:      "Source acknowledgements rejected after a confirmed publish.",
	})
	Unprocessable = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sluice",
		Name:      "unprocessable_total",
		Help:      "Poison messages dropped or dead-lettered past the receive threshold.",
	})
)

func Expose(port int) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
	}()
}
