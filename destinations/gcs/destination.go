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

// Package gcs delivers export tables to a Google Cloud Storage bucket.
// Credentials come from a service account file, inline JSON, or
// Application Default Credentials.
package gcs

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"surveyflow/platform/connectors/config"
	"surveyflow/platform/destinations"
)

// GCSDestination writes export tables to a GCS bucket
type GCSDestination struct {
	name   string
	cfg    *config.DestinationConfig
	client *storage.Client
	bucket string
	prefix string
	logger *log.Logger
}

// NewGCSDestination creates a GCS destination instance
func NewGCSDestination() *GCSDestination {
	return &GCSDestination{
		logger: log.New(os.Stdout, "[GCS_DEST] ", log.LstdFlags),
	}
}

// Open builds the GCS client and verifies the bucket is reachable
func (d *GCSDestination) Open(ctx context.Context, cfg *config.DestinationConfig) error {
	bucket, _ := cfg.Config["bucket"].(string)
	if bucket == "" {
		return fmt.Errorf("gcs destination %q requires a bucket", cfg.Name)
	}

	var opts []option.ClientOption
	if credFile := cfg.Credentials["credentials_file"]; credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
	} else if credJSON := cfg.Credentials["credentials_json"]; credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	// Custom endpoint supports the emulator in development
	if endpoint, _ := cfg.Config["endpoint"].(string); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create GCS client: %w", err)
	}

	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to verify bucket %s: %w", bucket, err)
	}

	d.name = cfg.Name
	d.cfg = cfg
	d.client = client
	d.bucket = bucket
	d.prefix, _ = cfg.Config["prefix"].(string)

	d.logger.Printf("Opened GCS destination (bucket: %s)", bucket)
	return nil
}

// Write encodes the table and uploads it as one object
func (d *GCSDestination) Write(ctx context.Context, req *destinations.WriteRequest) (*destinations.WriteResult, error) {
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

	w := d.client.Bucket(d.bucket).Object(key).NewWriter(ctx)
	w.ContentType = destinations.ContentType(format)
	w.Metadata = map[string]string{
		"survey-id": req.SurveyID,
		"run-id":    req.RunID,
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize upload %s: %w", key, err)
	}

	d.logger.Printf("Uploaded %d bytes to gs://%s/%s", len(data), d.bucket, key)

	return &destinations.WriteResult{
		Location: fmt.Sprintf("gs://%s/%s", d.bucket, key),
		Bytes:    len(data),
		Format:   format,
		Duration: time.Since(start),
	}, nil
}

// Close releases the GCS client
func (d *GCSDestination) Close(ctx context.Context) error {
	if d.client != nil {
		if err := d.client.Close(); err != nil {
			d.logger.Printf("Warning: error closing GCS client: %v", err)
		}
		d.client = nil
	}
	return nil
}

// Name returns the destination instance name
func (d *GCSDestination) Name() string { return d.name }

// Type returns the backend type
func (d *GCSDestination) Type() string { return "gcs" }

var _ destinations.Destination = (*GCSDestination)(nil)
