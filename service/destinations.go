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

package service

import (
	"context"
	"fmt"
	"log"

	"surveyflow/platform/connectors/config"
	"surveyflow/platform/destinations"
	"surveyflow/platform/destinations/azblob"
	"surveyflow/platform/destinations/file"
	"surveyflow/platform/destinations/gcs"
	"surveyflow/platform/destinations/s3"
)

// newDestination builds a destination backend by type
func newDestination(destType string) (destinations.Destination, error) {
	switch destType {
	case "s3":
		return s3.NewS3Destination(), nil
	case "gcs":
		return gcs.NewGCSDestination(), nil
	case "azblob":
		return azblob.NewAzureBlobDestination(), nil
	case "file":
		return file.NewFileDestination(), nil
	default:
		return nil, fmt.Errorf("unknown destination type: %s", destType)
	}
}

// deliverExport looks up a configured destination by name and writes
// one export table to it. The destination is opened per delivery; the
// backend clients are cheap to build and the alternative is cache
// invalidation when credentials rotate.
func deliverExport(ctx context.Context, tenantID, destinationName string, req *destinations.WriteRequest) (*destinations.WriteResult, error) {
	cfg, err := findDestinationConfig(ctx, tenantID, destinationName)
	if err != nil {
		return nil, err
	}

	dest, err := newDestination(cfg.Type)
	if err != nil {
		return nil, err
	}

	if err := dest.Open(ctx, cfg); err != nil {
		promDestinationWrites.WithLabelValues(cfg.Type, "error").Inc()
		return nil, fmt.Errorf("failed to open destination %q: %w", destinationName, err)
	}
	defer func() {
		if err := dest.Close(ctx); err != nil {
			log.Printf("Warning: failed to close destination %q: %v", destinationName, err)
		}
	}()

	result, err := dest.Write(ctx, req)
	if err != nil {
		promDestinationWrites.WithLabelValues(cfg.Type, "error").Inc()
		return nil, fmt.Errorf("failed to write to destination %q: %w", destinationName, err)
	}

	promDestinationWrites.WithLabelValues(cfg.Type, "success").Inc()
	return result, nil
}

// findDestinationConfig resolves one named destination for a tenant
func findDestinationConfig(ctx context.Context, tenantID, destinationName string) (*config.DestinationConfig, error) {
	configs, _, err := runtimeConfig.GetDestinationConfigs(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load destination configs: %w", err)
	}

	for _, cfg := range configs {
		if cfg.Name == destinationName && cfg.Enabled {
			return cfg, nil
		}
	}
	return nil, fmt.Errorf("destination %q not configured for tenant %q", destinationName, tenantID)
}
