package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"castreel/internal/config"
	"castreel/internal/services"
	"castreel/internal/textutil"
)

// ObjectAPI is the subset of the S3 client used by S3Publisher.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
}

// S3Publisher copies rendered videos into a bucket.
type S3Publisher struct {
	objects     ObjectAPI
	http        services.HTTPDoer
	bucket      string
	prefix      string
	urlTemplate string
	timeout     time.Duration
	maxBytes    int64
}

// NewS3Publisher builds an S3 client from cfg using the SDK default credential
// chain unless static keys are configured.
func NewS3Publisher(ctx context.Context, cfg config.Publisher, client services.HTTPDoer) (*S3Publisher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3PublisherWithAPI(s3Client, cfg, client), nil
}

// NewS3PublisherWithAPI wires an S3Publisher around an existing object client.
func NewS3PublisherWithAPI(objects ObjectAPI, cfg config.Publisher, client services.HTTPDoer) *S3Publisher {
	if client == nil {
		client = &http.Client{}
	}
	return &S3Publisher{
		objects:     objects,
		http:        client,
		bucket:      cfg.Bucket,
		prefix:      cfg.Prefix,
		urlTemplate: cfg.PublicURLTemplate,
		timeout:     cfg.TimeoutDuration(),
		maxBytes:    cfg.MaxUploadBytes(),
	}
}

// Publish stores the video under <prefix>/<job id><ext>. Videos already in S3
// are copied server side; http(s) videos are downloaded and uploaded.
func (p *S3Publisher) Publish(ctx context.Context, req Request) (Ref, error) {
	if req.JobID == "" || req.VideoURI == "" {
		return Ref{}, services.Wrap(services.ErrPermanent, serviceName, "publish", "job id and video uri required", nil)
	}
	source, err := url.Parse(req.VideoURI)
	if err != nil {
		return Ref{}, services.Wrap(services.ErrPermanent, serviceName, "publish", "parse video uri", err)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	key := p.objectKey(req.JobID, path.Ext(source.Path))
	switch source.Scheme {
	case "s3":
		_, err = p.objects.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(p.bucket),
			Key:        aws.String(key),
			CopySource: aws.String(source.Host + "/" + strings.TrimPrefix(source.Path, "/")),
		})
		if err != nil {
			return Ref{}, classifyS3Error("copy", err)
		}
	case "http", "https":
		if err := p.upload(ctx, req.VideoURI, key); err != nil {
			return Ref{}, err
		}
	default:
		return Ref{}, services.Wrap(services.ErrPermanent, serviceName, "publish", fmt.Sprintf("unsupported video uri scheme %q", source.Scheme), nil)
	}

	ref := Ref{Ref: fmt.Sprintf("s3://%s/%s", p.bucket, key)}
	if p.urlTemplate != "" {
		ref.URL = strings.NewReplacer("{bucket}", p.bucket, "{key}", key).Replace(p.urlTemplate)
	}
	return ref, nil
}

func (p *S3Publisher) upload(ctx context.Context, videoURL, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, videoURL, nil)
	if err != nil {
		return services.Wrap(services.ErrPermanent, serviceName, "download", "build request", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, serviceName, "download", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return services.WrapStatus(serviceName, "download", videoURL, resp.StatusCode)
	}
	if p.maxBytes > 0 && resp.ContentLength > p.maxBytes {
		return p.tooLarge(resp.ContentLength)
	}
	// The SDK needs a seekable body to sign uploads over plain-HTTP endpoints.
	reader := io.Reader(resp.Body)
	if p.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, p.maxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return services.Wrap(services.ErrTransient, serviceName, "download", "read body", err)
	}
	if p.maxBytes > 0 && int64(len(body)) > p.maxBytes {
		return p.tooLarge(int64(len(body)))
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		input.ContentType = aws.String(ct)
	}
	if _, err := p.objects.PutObject(ctx, input); err != nil {
		return classifyS3Error("put", err)
	}
	return nil
}

func (p *S3Publisher) tooLarge(size int64) error {
	msg := fmt.Sprintf("video exceeds upload limit of %d bytes (got at least %d)", p.maxBytes, size)
	return services.Wrap(services.ErrPermanent, serviceName, "download", msg, nil)
}

func (p *S3Publisher) objectKey(jobID, ext string) string {
	if ext == "" {
		ext = ".mp4"
	}
	name := textutil.SanitizeToken(jobID) + ext
	if p.prefix == "" {
		return name
	}
	return p.prefix + "/" + name
}

// classifyS3Error maps S3 API error codes onto transient/permanent markers.
func classifyS3Error(operation string, err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return services.Wrap(services.ErrTransient, serviceName, operation, "s3 request failed", err)
	}
	switch apiErr.ErrorCode() {
	case "SlowDown", "Throttling", "RequestLimitExceeded", "ServiceUnavailable", "InternalError", "RequestTimeout":
		return services.Wrap(services.ErrTransient, serviceName, operation, apiErr.ErrorCode(), err)
	case "AccessDenied", "Forbidden", "NoSuchBucket", "NoSuchKey", "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidBucketName":
		return services.Wrap(services.ErrPermanent, serviceName, operation, apiErr.ErrorCode(), err)
	}
	if apiErr.ErrorFault() == smithy.FaultClient {
		return services.Wrap(services.ErrPermanent, serviceName, operation, apiErr.ErrorCode(), err)
	}
	return services.Wrap(services.ErrTransient, serviceName, operation, apiErr.ErrorCode(), err)
}
