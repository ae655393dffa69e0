package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/invoicekeeper/internal/invoice"
	"github.com/dmitrijs2005/invoicekeeper/internal/logging"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) error {
		_, err := c.PutObject(ctx, in)
		return err
	}
)

var ErrNoBucket = errors.New("archive: bucket not configured")

type S3Options struct {
	Bucket string
	Region string
	// BaseEndpoint switches the client to path-style addressing, as needed
	// by MinIO and other self-hosted stores.
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
	Prefix       string
}

type S3Archive struct {
	client *s3.Client
	bucket string
	prefix string
	logger logging.Logger
}

// NewS3 builds an archive backed by the given bucket. Static credentials are
// used when both keys are set, otherwise the default AWS chain applies.
func NewS3(ctx context.Context, opts S3Options, l logging.Logger) (*S3Archive, error) {
	if opts.Bucket == "" {
		return nil, ErrNoBucket
	}
	if l == nil {
		l = logging.NopLogger{}
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := loadDefaultAWSConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{
		client: client,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
		logger: l.With("component", "archive", "bucket", opts.Bucket),
	}, nil
}

func (a *S3Archive) Put(ctx context.Context, rec invoice.Record, pdf []byte) (string, error) {
	key := Key(a.prefix, rec)

	err := putObject(a.client, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(pdf),
		ContentLength: aws.Int64(int64(len(pdf))),
		ContentType:   aws.String(ContentTypePDF),
		Metadata: map[string]string{
			"invoice-id": rec.ID,
			"issue-date": rec.IssueDateISO(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	a.logger.Info(ctx, "invoice archived", "invoice_id", rec.ID, "key", key, "size", len(pdf))
	return key, nil
}
