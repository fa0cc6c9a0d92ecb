package aws

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Archiver_Archive(t *testing.T) {
	putter := &fakePutter{}
	a := NewS3Archiver(putter, "callbacks")
	a.now = func() time.Time { return time.Date(2024, 3, 9, 10, 0, 0, 42, time.UTC) }

	err := a.Archive(context.Background(), "callback", "ws_CO_1", []byte(`{"Body":{}}`))
	require.NoError(t, err)

	assert.Equal(t, "callbacks", *putter.input.Bucket)
	assert.Equal(t, "mpesa/callback/2024/03/09/ws_CO_1-1709978400000000042.json", *putter.input.Key)
	assert.Equal(t, "application/json", *putter.input.ContentType)
	assert.Equal(t, `{"Body":{}}`, string(putter.body))
}

func TestS3Archiver_UnknownCheckoutID(t *testing.T) {
	a := NewS3Archiver(&fakePutter{}, "b")
	a.now = func() time.Time { return time.Unix(0, 0) }
	assert.Equal(t, "mpesa/timeout/1970/01/01/unknown-0.json", a.objectKey("timeout", ""))
	assert.Equal(t, "mpesa/timeout/1970/01/01/a_b-0.json", a.objectKey("timeout", "a/b"))
}

func TestS3Archiver_Error(t *testing.T) {
	a := NewS3Archiver(&fakePutter{err: errors.New("denied")}, "b")
	err := a.Archive(context.Background(), "callback", "ws_CO_1", []byte(`{}`))
	assert.ErrorContains(t, err, "denied")
}

type fakeMetricPutter struct {
	calls []*cloudwatch.PutMetricDataInput
}

func (f *fakeMetricPutter) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.calls = append(f.calls, params)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestMetricsClient_RecordCount(t *testing.T) {
	putter := &fakeMetricPutter{}
	m := NewMetricsClient(putter, "", true)

	err := m.RecordCount(context.Background(), MetricDonationsInitiated, map[string]string{"Service": "donation-service"})
	require.NoError(t, err)
	require.Len(t, putter.calls, 1)

	in := putter.calls[0]
	assert.Equal(t, "DonationPlatform", *in.Namespace)
	require.Len(t, in.MetricData, 1)
	assert.Equal(t, MetricDonationsInitiated, *in.MetricData[0].MetricName)
	assert.Equal(t, types.StandardUnitCount, in.MetricData[0].Unit)
	assert.Equal(t, float64(1), *in.MetricData[0].Value)
	require.Len(t, in.MetricData[0].Dimensions, 1)
	assert.Equal(t, "Service", *in.MetricData[0].Dimensions[0].Name)
}

func TestMetricsClient_Disabled(t *testing.T) {
	putter := &fakeMetricPutter{}
	m := NewMetricsClient(putter, "ns", false)

	require.NoError(t, m.RecordLatency(context.Background(), MetricHTTPLatency, time.Second, nil))
	assert.Empty(t, putter.calls)
	assert.False(t, m.IsEnabled())
}
