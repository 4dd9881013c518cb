package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Series are exported as kafka_consumer_* and kafka_producer_*.
var (
	consumerLabels = []string{"topic", "consumer_group"}
	producerLabels = []string{"topic"}
)

func consumerCounter(name, help string, labels []string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka",
		Subsystem: "consumer",
		Name:      name,
		Help:      help,
	}, labels)
}

func producerCounter(name, help string) *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kafka",
		Subsystem: "producer",
		Name:      name,
		Help:      help,
	}, producerLabels)
}

var (
	// ConsumerMessagesReceived counts fetches, before decoding or dedup.
	ConsumerMessagesReceived = consumerCounter("messages_received_total",
		"Messages fetched from the broker by a consumer group", consumerLabels)

	// ConsumerMessagesProcessed counts messages whose handler returned nil.
	ConsumerMessagesProcessed = consumerCounter("messages_processed_total",
		"Messages handled successfully, e.g. a verification mail sent", consumerLabels)

	// ConsumerMessagesFailed counts messages given up on after the last retry.
	ConsumerMessagesFailed = consumerCounter("messages_failed_total",
		"Messages whose handler still failed after every retry", consumerLabels)

	// ConsumerMessagesDuplicate is labeled by event type rather than topic.
	ConsumerMessagesDuplicate = consumerCounter("messages_duplicate_total",
		"Redelivered events skipped because their id was already seen",
		[]string{"event_type", "consumer_group"})

	// ConsumerDLQPublished counts failed messages parked on the DLQTopic.
	ConsumerDLQPublished = consumerCounter("dlq_published_total",
		"Failed messages forwarded to the dead-letter topic", consumerLabels)

	ConsumerProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kafka",
		Subsystem: "consumer",
		Name:      "processing_duration_seconds",
		Help:      "Time spent in the message handler, retries included",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, consumerLabels)

	ProducerMessagesPublished = producerCounter("messages_published_total",
		"Auth and contact events written to Kafka")

	ProducerPublishErrors = producerCounter("publish_errors_total",
		"Event writes rejected by the broker or timed out")

	ProducerPublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kafka",
		Subsystem: "producer",
		Name:      "publish_duration_seconds",
		Help:      "Latency of a single event write",
		Buckets:   prometheus.DefBuckets,
	}, producerLabels)
)
