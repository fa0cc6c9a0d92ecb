package aws

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewS3Client creates a new S3 client from AWS config.
func NewS3Client(cfg sdkaws.Config) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		// LocalStack only serves path-style URLs.
		o.UsePathStyle = cfg.BaseEndpoint != nil
	})
}

// S3Putter is the subset of *s3.Client used by S3Archiver.
type S3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes raw M-Pesa notifications to a bucket under
// mpesa/<kind>/<yyyy>/<mm>/<dd>/<checkout id>-<nanos>.json.
type S3Archiver struct {
	client S3Putter
	bucket string
	now    func() time.Time
}

func NewS3Archiver(client S3Putter, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, now: time.Now}
}

func (a *S3Archiver) Archive(ctx context.Context, kind, checkoutRequestID string, payload []byte) error {
	key := a.objectKey(kind, checkoutRequestID)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      sdkaws.String(a.bucket),
		Key:         sdkaws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: sdkaws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive %s to s3://%s: %w", key, a.bucket, err)
	}
	return nil
}

func (a *S3Archiver) objectKey(kind, checkoutRequestID string) string {
	now := a.now().UTC()
	id := strings.Map(func(r rune) rune {
		if r == '/' || r == ' ' {
			return '_'
		}
		return r
	}, checkoutRequestID)
	if id == "" {
		id = "unknown"
	}
	return fmt.Sprintf("mpesa/%s/%s/%s-%d.json", kind, now.Format("2006/01/02"), id, now.UnixNano())
}
