// fetch/s3.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type S3Config struct {
	Region string
	// If AccessKeyID is empty, requests are unsigned, which is
	// sufficient for public buckets like the elevation tiles.
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint overrides the S3 endpoint (e.g., for an S3-compatible
	// server); path-style addressing is used when it is set.
	Endpoint string
}

// S3Getter retrieves s3://bucket/key URLs.
type S3Getter struct {
	client *s3.Client
}

func NewS3Getter(ctx context.Context, c S3Config) (*S3Getter, error) {
	region := c.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if c.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")))
	} else {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// Fetcher does the retrying.
		o.Retryer = aws.NopRetryer{}
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &S3Getter{client: client}, nil
}

func (s *S3Getter) Get(ctx context.Context, url string) ([]byte, error) {
	bucket, key, err := splitObjectURL(url, "s3")
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		var re *awshttp.ResponseError
		if errors.As(err, &nsk) || (errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer out.Body.Close()

	b, err := io.ReadAll(io.LimitReader(out.Body, maxTileBytes+1))
	if err != nil {
		return nil, err
	} else if len(b) > maxTileBytes {
		return nil, fmt.Errorf("%s: object exceeds %d bytes", url, maxTileBytes)
	}
	return b, nil
}
