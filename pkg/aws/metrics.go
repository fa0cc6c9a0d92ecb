package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricPutter is the subset of *cloudwatch.Client used by MetricsClient.
type MetricPutter interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsClient wraps AWS CloudWatch Metrics operations
type MetricsClient struct {
	client    MetricPutter
	namespace string
	enabled   bool
}

// NewMetricsClient creates a CloudWatch metrics client. A disabled client
// accepts every call and sends nothing.
func NewMetricsClient(client MetricPutter, namespace string, enabled bool) *MetricsClient {
	if namespace == "" {
		namespace = "DonationPlatform"
	}
	return &MetricsClient{client: client, namespace: namespace, enabled: enabled}
}

// NewMetricsClientFromConfig builds a MetricsClient on a real CloudWatch client.
func NewMetricsClientFromConfig(cfg sdkaws.Config, namespace string, enabled bool) *MetricsClient {
	return NewMetricsClient(cloudwatch.NewFromConfig(cfg), namespace, enabled)
}

// PutMetric sends a single metric data point to CloudWatch
func (m *MetricsClient) PutMetric(ctx context.Context, metricName string, value float64, unit types.StandardUnit, dimensions map[string]string) error {
	if !m.enabled {
		return nil
	}

	dims := make([]types.Dimension, 0, len(dimensions))
	for k, v := range dimensions {
		dims = append(dims, types.Dimension{
			Name:  sdkaws.String(k),
			Value: sdkaws.String(v),
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: sdkaws.String(metricName),
				Value:      sdkaws.Float64(value),
				Unit:       unit,
				Timestamp:  sdkaws.Time(time.Now()),
				Dimensions: dims,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to put metric: %w", err)
	}
	return nil
}

// RecordCount increments a counter metric
func (m *MetricsClient) RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error {
	return m.PutMetric(ctx, metricName, 1, types.StandardUnitCount, dimensions)
}

// RecordLatency records a latency/duration metric in milliseconds
func (m *MetricsClient) RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error {
	return m.PutMetric(ctx, metricName, float64(duration.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
}

func (m *MetricsClient) IsEnabled() bool {
	return m != nil && m.enabled
}

const (
	// HTTP metrics
	MetricHTTPRequests = "HTTPRequests"
	MetricHTTPLatency  = "HTTPLatency"
	MetricHTTP4xx      = "HTTP4xxErrors"
	MetricHTTP5xx      = "HTTP5xxErrors"

	// Donation metrics
	MetricDonationsInitiated = "DonationsInitiated"
	MetricDonationsSucceeded = "DonationsSucceeded"
	MetricDonationsFailed    = "DonationsFailed"
	MetricDonationsExpired   = "DonationsExpired"
	MetricSTKPushErrors      = "STKPushErrors"

	// Provider reports a payment that never produced a callback.
	MetricDonationsUnconfirmedPaid = "DonationsUnconfirmedPaid"

	// Callback metrics
	MetricCallbacksReceived  = "MpesaCallbacksReceived"
	MetricCallbacksDuplicate = "MpesaCallbacksDuplicate"
	MetricCallbacksUnmatched = "MpesaCallbacksUnmatched"
	MetricCallbacksMalformed = "MpesaCallbacksMalformed"
)
