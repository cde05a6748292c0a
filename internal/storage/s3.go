package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"wabridge/config"
)

// Uploader offloads inbound media to an S3-compatible bucket. A nil Uploader
// is valid and reports itself disabled.
type Uploader struct {
	client    *s3.Client
	bucket    string
	region    string
	publicURL string
}

// New builds an Uploader from config. Returns nil, nil when S3 is disabled.
func New(cfg config.S3Config) (*Uploader, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("S3 credentials are not configured")
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}

	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{URL: endpoint, HostnameImmutable: cfg.PathStyle}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			})
	}

	// Dots in bucket names break virtual-host TLS, force path style.
	usePathStyle := cfg.PathStyle || strings.Contains(cfg.Bucket, ".")

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("region", cfg.Region).
		Str("endpoint", cfg.Endpoint).
		Msg("S3 media offload enabled")

	return &Uploader{
		client:    client,
		bucket:    cfg.Bucket,
		region:    cfg.Region,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
	}, nil
}

// Enabled reports whether uploads will happen.
func (u *Uploader) Enabled() bool {
	return u != nil
}

// Upload stores the object and returns its public URL.
func (u *Uploader) Upload(ctx context.Context, key string, data []byte, mimetype string) (string, error) {
	if u == nil {
		return "", fmt.Errorf("S3 offload is disabled")
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimetype),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	if u.publicURL != "" {
		return u.publicURL + "/" + key, nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key), nil
}

// ObjectKey derives a bucket key from message metadata, partitioned by
// direction and date like inbox/2026/09/01/<chat>/<message>.<ext>.
func ObjectKey(chatID, messageID, mimetype string, incoming bool) string {
	direction := "outbox"
	if incoming {
		direction = "inbox"
	}

	contact := strings.NewReplacer("@", "_", ":", "_").Replace(chatID)

	ext := ".bin"
	if exts, err := mime.ExtensionsByType(mimetype); err == nil && len(exts) > 0 {
		ext = exts[0]
	}

	return fmt.Sprintf("%s/%s/%s/%s%s",
		direction, time.Now().UTC().Format("2006/01/02"), contact, messageID, ext)
}
