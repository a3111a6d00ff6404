package checkout

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// WebhookResult is the metric dimension value for a webhook outcome.
type WebhookResult string

const (
	ResultAccepted  WebhookResult = "accepted"
	ResultDuplicate WebhookResult = "duplicate"
	ResultRejected  WebhookResult = "rejected"
	ResultError     WebhookResult = "error"
)

// Metrics records checkout lifecycle events. Implementations must be safe
// for concurrent use and must never fail a business operation.
type Metrics interface {
	RecordSessionCreated(ctx context.Context)
	RecordWebhook(ctx context.Context, eventType string, result WebhookResult)
	RecordWebhookLatency(ctx context.Context, duration time.Duration)
	RecordCartClearRetry(ctx context.Context)
}

// NoopMetrics discards all metrics. Used for local development and tests.
type NoopMetrics struct{}

func (NoopMetrics) RecordSessionCreated(context.Context)                 {}
func (NoopMetrics) RecordWebhook(context.Context, string, WebhookResult) {}
func (NoopMetrics) RecordWebhookLatency(context.Context, time.Duration)  {}
func (NoopMetrics) RecordCartClearRetry(context.Context)                 {}

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics emits checkout metrics to CloudWatch. Emission failures
// are logged and swallowed; metrics never block or fail checkout flows.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatchMetrics creates a metrics recorder publishing under the
// given namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordSessionCreated counts a newly minted checkout session.
func (m *CloudWatchMetrics) RecordSessionCreated(ctx context.Context) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String("CheckoutSessionCreated"),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	})
}

// RecordWebhook counts a webhook outcome with EventType and Result
// dimensions.
func (m *CloudWatchMetrics) RecordWebhook(ctx context.Context, eventType string, result WebhookResult) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String("WebhookEvent"),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: aws.String("EventType"), Value: aws.String(eventType)},
			{Name: aws.String("Result"), Value: aws.String(string(result))},
		},
	})
}

// RecordWebhookLatency records end-to-end webhook handling time.
func (m *CloudWatchMetrics) RecordWebhookLatency(ctx context.Context, duration time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String("WebhookLatency"),
		Value:      aws.Float64(float64(duration.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

// RecordCartClearRetry counts a sweeper retry of a failed post-payment
// cart clear.
func (m *CloudWatchMetrics) RecordCartClearRetry(ctx context.Context) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String("CartClearRetry"),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "failed to emit checkout metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err,
		)
	}
}

var (
	_ Metrics = (*CloudWatchMetrics)(nil)
	_ Metrics = NoopMetrics{}
)
