// Package objectstore wraps an S3-compatible bucket behind the small
// interface the rest of PixTools needs: put, get, sign, delete. It
// generalizes the teacher's Cloudflare-R2-specific client into any
// S3-compatible endpoint.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Gateway is the Object Store Gateway component (spec §4.1).
type Gateway interface {
	PutRaw(ctx context.Context, key string, data []byte, contentType string) error
	PutProcessed(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Sign(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	Health(ctx context.Context) error
}

// S3Gateway is the aws-sdk-go-v2-backed implementation.
type S3Gateway struct {
	client        *s3.Client
	bucket        string
	retentionDays int32
}

// Config describes how to reach the S3-compatible endpoint.
type Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string

	// RetentionDays is the expiry applied to the raw/, processed/, and
	// archives/ prefixes (spec §4.1, §6 "s3_retention_days").
	RetentionDays int32
}

// NewS3Gateway constructs a gateway and idempotently bootstraps lifecycle
// rules for raw/, processed/, archives/ (spec §4.1).
func NewS3Gateway(ctx context.Context, cfg Config) (*S3Gateway, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("objectstore: missing S3 configuration")
	}

	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	retentionDays := cfg.RetentionDays
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}

	client := s3.New(opts)
	gw := &S3Gateway{client: client, bucket: cfg.Bucket, retentionDays: retentionDays}

	if err := gw.ensureLifecycleRules(ctx); err != nil {
		return nil, fmt.Errorf("objectstore: bootstrap lifecycle rules: %w", err)
	}
	return gw, nil
}

// defaultRetentionDays applies when Config.RetentionDays is unset
// (spec §6's s3_retention_days default).
const defaultRetentionDays = 1

func (g *S3Gateway) ensureLifecycleRules(ctx context.Context) error {
	existing, err := g.client.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{
		Bucket: aws.String(g.bucket),
	})
	var apiErr interface{ ErrorCode() string }
	if err != nil && !(errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchLifecycleConfiguration") {
		return err
	}

	wantRuleID := func(prefix string) string { return "pixtools-expire-" + prefix }
	have := map[string]bool{}
	if existing != nil {
		for _, r := range existing.Rules {
			if r.ID != nil {
				have[*r.ID] = true
			}
		}
	}

	rules := make([]s3types.LifecycleRule, 0, 3)
	if existing != nil {
		rules = append(rules, existing.Rules...)
	}
	needsUpdate := false
	for _, prefix := range []string{PrefixRaw, PrefixProcessed, PrefixArchives} {
		id := wantRuleID(prefix)
		if have[id] {
			continue
		}
		needsUpdate = true
		rules = append(rules, s3types.LifecycleRule{
			ID:     aws.String(id),
			Status: s3types.ExpirationStatusEnabled,
			Filter: &s3types.LifecycleRuleFilter{
				Prefix: aws.String(prefix + "/"),
			},
			Expiration: &s3types.LifecycleExpiration{
				Days: aws.Int32(g.retentionDays),
			},
		})
	}
	if !needsUpdate {
		return nil
	}

	_, err = g.client.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket: aws.String(g.bucket),
		LifecycleConfiguration: &s3types.BucketLifecycleConfiguration{
			Rules: rules,
		},
	})
	return err
}

func (g *S3Gateway) PutRaw(ctx context.Context, key string, data []byte, contentType string) error {
	return g.put(ctx, key, data, contentType)
}

func (g *S3Gateway) PutProcessed(ctx context.Context, key string, data []byte, contentType string) error {
	return g.put(ctx, key, data, contentType)
}

func (g *S3Gateway) put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(g.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	return nil
}

func (g *S3Gateway) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := g.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read %s: %w", key, err)
	}
	return data, nil
}

func (g *S3Gateway) Sign(ctx context.Context, key string, expiry time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(g.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("objectstore: sign %s: %w", key, err)
	}
	return req.URL, nil
}

func (g *S3Gateway) Delete(ctx context.Context, key string) error {
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("objectstore: delete %s: %w", key, err)
	}
	return nil
}

// Health checks that the configured bucket is reachable, for the health endpoint.
func (g *S3Gateway) Health(ctx context.Context) error {
	_, err := g.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(g.bucket)})
	if err != nil {
		return fmt.Errorf("objectstore: health check: %w", err)
	}
	return nil
}
