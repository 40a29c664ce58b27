package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"dds-go/internal/dds"
	"dds-go/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	appconfig "dds-go/internal/config"
)

// S3Gateway signs transfer URLs against an S3-compatible backend. The
// engine never moves bytes itself: clients PUT and GET directly against the
// signed URLs, and the gateway only probes object state.
type S3Gateway struct {
	client  *s3.Client
	presign *s3.PresignClient
	expires time.Duration
}

// NewS3Gateway builds a gateway from config. A custom endpoint supports
// MinIO-style backends.
func NewS3Gateway(ctx context.Context, cfg appconfig.StorageConfig) (*S3Gateway, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKeyID,
			cfg.S3SecretAccessKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3Endpoint != ""
	})

	expires := time.Duration(cfg.SignedURLMinutes) * time.Minute
	if expires <= 0 {
		expires = 15 * time.Minute
	}

	return &S3Gateway{
		client:  client,
		presign: s3.NewPresignClient(client),
		expires: expires,
	}, nil
}

func (g *S3Gateway) Allocate(ctx context.Context, provider *model.StorageProvider, upload *model.Upload) (*dds.TransferInstruction, error) {
	req, err := g.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(provider.Bucket),
		Key:           aws.String(upload.StorageKey),
		ContentLength: aws.Int64(upload.Size),
	}, s3.WithPresignExpires(g.expires))
	if err != nil {
		return nil, &dds.StorageUnavailableError{Provider: provider.Name, Err: err}
	}

	parsed, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing signed url: %w", err)
	}

	return &dds.TransferInstruction{
		HTTPVerb: req.Method,
		Host:     parsed.Scheme + "://" + parsed.Host,
		Path:     parsed.RequestURI(),
		URL:      req.URL,
	}, nil
}

func (g *S3Gateway) VerifyUpload(ctx context.Context, provider *model.StorageProvider, upload *model.Upload) error {
	out, err := g.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(provider.Bucket),
		Key:    aws.String(upload.StorageKey),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return fmt.Errorf("object %s not found in backend", upload.StorageKey)
		}
		// Anything else means the backend itself did not answer.
		return &dds.StorageUnavailableError{Provider: provider.Name, Err: err}
	}

	if size := aws.ToInt64(out.ContentLength); size != upload.Size {
		return fmt.Errorf("object size %d does not match reported size %d", size, upload.Size)
	}
	return nil
}

func (g *S3Gateway) TemporaryURL(ctx context.Context, provider *model.StorageProvider, upload *model.Upload, filename string) (string, error) {
	disposition := fmt.Sprintf("attachment; filename=%q", url.PathEscape(filename))
	req, err := g.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(provider.Bucket),
		Key:                        aws.String(upload.StorageKey),
		ResponseContentDisposition: aws.String(disposition),
	}, s3.WithPresignExpires(g.expires))
	if err != nil {
		return "", &dds.StorageUnavailableError{Provider: provider.Name, Err: err}
	}
	return req.URL, nil
}

var _ dds.StorageGateway = (*S3Gateway)(nil)
