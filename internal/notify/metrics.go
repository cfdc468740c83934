package notify

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"dealwire/internal/types"
)

// Metric and dimension names.
const (
	metricCycleItems      = "CycleItems"
	metricDispatchLatency = "DispatchLatency"
	metricFanoutSent      = "MentionFanoutSent"

	dimTrigger = "Trigger"
	dimOutcome = "Outcome"
)

// PipelineMetrics abstracts telemetry for the notification pipeline.
type PipelineMetrics interface {
	// RecordCycle emits the per-outcome item counters for one drain cycle.
	RecordCycle(ctx context.Context, report CycleReport)
	// RecordDispatchLatency emits the duration of one gateway submission.
	RecordDispatchLatency(ctx context.Context, trigger TriggerKind, duration time.Duration)
	// RecordFanout emits the number of entries dispatched by one mention event.
	RecordFanout(ctx context.Context, sent int)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchMetrics implements PipelineMetrics.
var _ PipelineMetrics = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics implements PipelineMetrics against AWS CloudWatch.
// Metric emission is best-effort: failures are logged, never propagated; a
// metrics outage must not fail a delivery cycle.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing under the
// given namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordCycle emits one CycleItems datum per outcome dimension.
func (m *CloudWatchMetrics) RecordCycle(ctx context.Context, report CycleReport) {
	outcomes := []struct {
		name  string
		value int
	}{
		{"processed", report.Processed},
		{"sent", report.Sent},
		{"skipped", report.Skipped},
		{"rescheduled", report.Rescheduled},
		{"dead_lettered", report.DeadLettered},
	}

	data := make([]cwtypes.MetricDatum, 0, len(outcomes))
	for _, o := range outcomes {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(metricCycleItems),
			Value:      aws.Float64(float64(o.value)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{Name: aws.String(dimTrigger), Value: aws.String(string(TriggerDrain))},
				{Name: aws.String(dimOutcome), Value: aws.String(o.name)},
			},
		})
	}

	if _, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}); err != nil {
		m.logger.Error("failed to record cycle metrics", "error", err.Error())
	}
}

// RecordDispatchLatency emits one gateway submission duration in
// milliseconds, dimensioned by trigger kind.
func (m *CloudWatchMetrics) RecordDispatchLatency(ctx context.Context, trigger TriggerKind, duration time.Duration) {
	if _, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDispatchLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(dimTrigger), Value: aws.String(string(trigger))},
				},
			},
		},
	}); err != nil {
		m.logger.Error("failed to record dispatch latency metric",
			"error", err.Error(),
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// RecordFanout emits the number of dispatch entries produced by one mention
// fan-out event.
func (m *CloudWatchMetrics) RecordFanout(ctx context.Context, sent int) {
	if _, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricFanoutSent),
				Value:      aws.Float64(float64(sent)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(dimTrigger), Value: aws.String(string(TriggerMention))},
				},
			},
		},
	}); err != nil {
		m.logger.Error("failed to record fanout metric", "error", err.Error(), "sent", sent)
	}
}

// NoopMetrics discards all telemetry. Used in tests and local mode.
type NoopMetrics struct{}

var _ PipelineMetrics = NoopMetrics{}

func (NoopMetrics) RecordCycle(context.Context, CycleReport)                           {}
func (NoopMetrics) RecordDispatchLatency(context.Context, TriggerKind, time.Duration) {}
func (NoopMetrics) RecordFanout(context.Context, int)                                 {}
