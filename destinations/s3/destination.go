// Copyright 2025 SurveyFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package s3 delivers export tables to an Amazon S3 bucket. It also
// works against S3-compatible services like MinIO, DigitalOcean
// Spaces, and Cloudflare R2 via the endpoint option.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"surveyflow/platform/connectors/config"
	"surveyflow/platform/destinations"
)

// S3Destination writes export tables to an S3 bucket
type S3Destination struct {
	name   string
	cfg    *config.DestinationConfig
	client *s3.Client
	bucket string
	prefix string
	logger *log.Logger
}

// NewS3Destination creates an S3 destination instance
func NewS3Destination() *S3Destination {
	return &S3Destination{
		logger: log.New(os.Stdout, "[S3_DEST] ", log.LstdFlags),
	}
}

// Open builds the S3 client and verifies the bucket is reachable
func (d *S3Destination) Open(ctx context.Context, cfg *config.DestinationConfig) error {
	bucket, _ := cfg.Config["bucket"].(string)
	if bucket == "" {
		return fmt.Errorf("s3 destination %q requires a bucket", cfg.Name)
	}

	region, _ := cfg.Config["region"].(string)
	if region == "" {
		region = "us-east-1"
	}
	endpoint, _ := cfg.Config["endpoint"].(string)
	forcePathStyle, _ := cfg.Config["force_path_style"].(bool)

	optFns := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	// Use explicit credentials if provided, otherwise the default chain
	accessKey := cfg.Credentials["access_key"]
	secretKey := cfg.Credentials["secret_key"]
	if accessKey != "" && secretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(accessKey, secretKey, cfg.Credentials["session_token"])
		optFns = append(optFns, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Options := []func(*s3.Options){}
	if endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if forcePathStyle {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("failed to verify bucket %s: %w", bucket, err)
	}

	d.name = cfg.Name
	d.cfg = cfg
	d.client = client
	d.bucket = bucket
	d.prefix, _ = cfg.Config["prefix"].(string)

	d.logger.Printf("Opened S3 destination (bucket: %s, region: %s)", bucket, region)
	return nil
}

// Write encodes the table and uploads it as one object
func (d *S3Destination) Write(ctx context.Context, req *destinations.WriteRequest) (*destinations.WriteResult, error) {
	if d.client == nil {
		return nil, fmt.Errorf("destination not opened")
	}

	start := time.Now()

	format, err := destinations.ResolveFormat(req, d.cfg)
	if err != nil {
		return nil, err
	}

	data, err := destinations.Encode(req.Table, format)
	if err != nil {
		return nil, err
	}

	key := destinations.ObjectKey(d.prefix, req.SurveyID, req.RunID, format)

	_, err = d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(destinations.ContentType(format)),
		Metadata: map[string]string{
			"survey-id": req.SurveyID,
			"run-id":    req.RunID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	d.logger.Printf("Uploaded %d bytes to s3://%s/%s", len(data), d.bucket, key)

	return &destinations.WriteResult{
		Location: fmt.Sprintf("s3://%s/%s", d.bucket, key),
		Bytes:    len(data),
		Format:   format,
		Duration: time.Since(start),
	}, nil
}

// Close releases the client
func (d *S3Destination) Close(ctx context.Context) error {
	d.client = nil
	return nil
}

// Name returns the destination instance name
func (d *S3Destination) Name() string { return d.name }

// Type returns the backend type
func (d *S3Destination) Type() string { return "s3" }

var _ destinations.Destination = (*S3Destination)(nil)
