package vault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/logging"

	"fswatcher/internal/mirror"
)

// S3Options configures S3 sessions.
type S3Options struct {
	Bucket          string
	Region          string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	// MaxAttempts is the transport retry budget per request.
	MaxAttempts int
	// MaxConns sizes the HTTP connection pool; keep it equal to the worker pool.
	MaxConns int
	// Debug logs SDK retries and requests through Logger.
	Debug  bool
	Logger mirror.Logger
}

// LoadAWSConfig resolves credentials and builds the shared SDK config. It is
// called on every session issue so rotated credentials are picked up.
func LoadAWSConfig(ctx context.Context, opts S3Options) (aws.Config, error) {
	httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
		if opts.MaxConns > 0 {
			tr.MaxIdleConnsPerHost = opts.MaxConns
			tr.MaxConnsPerHost = opts.MaxConns
		}
	})

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient),
	}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}
	if opts.MaxAttempts > 0 {
		loadOpts = append(loadOpts, awsconfig.WithRetryMaxAttempts(opts.MaxAttempts))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	if opts.Debug && opts.Logger != nil {
		loadOpts = append(loadOpts,
			awsconfig.WithLogger(sdkLogger{l: opts.Logger}),
			awsconfig.WithClientLogMode(aws.LogRetries|aws.LogRequest),
		)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading aws config: %w", err)
	}
	return cfg, nil
}

// NewS3SessionFactory returns a factory that issues S3 stores with freshly
// loaded credentials and verifies the bucket exists.
func NewS3SessionFactory(opts S3Options) mirror.SessionFactory {
	return func(ctx context.Context) (mirror.ObjectStore, error) {
		cfg, err := LoadAWSConfig(ctx, opts)
		if err != nil {
			return nil, err
		}
		store := NewS3Store(s3.NewFromConfig(cfg), opts.Bucket)
		if err := store.CheckBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
}

// S3Store implements ObjectStore on an S3 bucket.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewS3Store wraps an S3 client for bucket.
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

// CheckBucket returns an error wrapping mirror.ErrBucketNotFound if the bucket
// is missing.
func (s *S3Store) CheckBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", mirror.ErrBucketNotFound, s.bucket)
	}
	return fmt.Errorf("checking bucket %s: %w", s.bucket, classifyError(err))
}

// Put uploads body with the tag string attached, using multipart uploads for
// large bodies.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, tags string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if tags != "" {
		input.Tagging = aws.String(tags)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("uploading %s: %w", key, classifyError(err))
	}
	return nil
}

// Delete removes key. S3 reports success for missing keys.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", key, classifyError(err))
	}
	return nil
}

// List returns every key under prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, input)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", s.bucket, classifyError(err))
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", key, classifyError(err))
}

// classifyError tags SDK errors with the mirror error the pipeline routes on.
// Exhausted retries and server errors are transient; other API errors are
// client errors.
func classifyError(err error) error {
	var maxAttempts *retry.MaxAttemptsError
	if errors.As(err, &maxAttempts) {
		return fmt.Errorf("%w: %w", mirror.ErrRetriesExhausted, err)
	}

	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		if re.HTTPStatusCode() >= 500 {
			return fmt.Errorf("%w: %w", mirror.ErrRetriesExhausted, err)
		}
		return fmt.Errorf("%w: %w", mirror.ErrClient, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorFault() == smithy.FaultServer {
			return fmt.Errorf("%w: %w", mirror.ErrRetriesExhausted, err)
		}
		return fmt.Errorf("%w: %w", mirror.ErrClient, err)
	}

	if retry.IsErrorRetryables(retry.DefaultRetryables).IsErrorRetryable(err) == aws.TrueTernary {
		return fmt.Errorf("%w: %w", mirror.ErrRetriesExhausted, err)
	}
	return err
}

func isNotFound(err error) bool {
	var re *awshttp.ResponseError
	if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchBucket", "NoSuchKey":
			return true
		}
	}
	return false
}

// sdkLogger routes SDK wire logging to the application logger.
type sdkLogger struct {
	l mirror.Logger
}

func (s sdkLogger) Logf(classification logging.Classification, format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	if classification == logging.Warn {
		s.l.Warn("aws sdk", "detail", msg)
		return
	}
	s.l.Debug("aws sdk", "detail", msg)
}

var (
	_ mirror.ObjectStore = (*S3Store)(nil)
	_ logging.Logger     = sdkLogger{}
)
