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

// Package file provides a local-filesystem export destination, used for
// development and self-hosted deployments without object storage.
package file

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"surveyflow/platform/connectors/config"
	"surveyflow/platform/destinations"
)

// FileDestination writes export tables under a base directory
type FileDestination struct {
	name      string
	cfg       *config.DestinationConfig
	directory string
	prefix    string
	logger    *log.Logger
}

// NewFileDestination creates a filesystem destination instance
func NewFileDestination() *FileDestination {
	return &FileDestination{
		logger: log.New(os.Stdout, "[FILE_DEST] ", log.LstdFlags),
	}
}

// Open validates the configured directory and creates it if needed
func (d *FileDestination) Open(ctx context.Context, cfg *config.DestinationConfig) error {
	dir, _ := cfg.Config["directory"].(string)
	if dir == "" {
		return fmt.Errorf("file destination %q requires a directory", cfg.Name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}

	d.name = cfg.Name
	d.cfg = cfg
	d.directory = dir
	d.prefix, _ = cfg.Config["prefix"].(string)

	d.logger.Printf("Opened filesystem destination at %s", dir)
	return nil
}

// Write encodes the table and writes it under the export directory
func (d *FileDestination) Write(ctx context.Context, req *destinations.WriteRequest) (*destinations.WriteResult, error) {
	if d.directory == "" {
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
	path := filepath.Join(d.directory, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write export file %s: %w", path, err)
	}

	d.logger.Printf("Wrote %d bytes to %s", len(data), path)

	return &destinations.WriteResult{
		Location: path,
		Bytes:    len(data),
		Format:   format,
		Duration: time.Since(start),
	}, nil
}

// Close is a no-op for the filesystem backend
func (d *FileDestination) Close(ctx context.Context) error {
	return nil
}

// Name returns the destination instance name
func (d *FileDestination) Name() string { return d.name }

// Type returns the backend type
func (d *FileDestination) Type() string { return "file" }

var _ destinations.Destination = (*FileDestination)(nil)
