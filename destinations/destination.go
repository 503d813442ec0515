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

// Package destinations defines where exported survey response tables
// are delivered. A Destination takes a normalized ResultTable, encodes
// it as CSV or JSON, and writes the encoded document to a storage
// backend (S3, GCS, Azure Blob, or the local filesystem).
package destinations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"surveyflow/platform/connectors/base"
	"surveyflow/platform/connectors/config"
)

// Destination delivers encoded export tables to a storage backend
type Destination interface {
	// Open prepares the destination (client setup, connectivity check)
	Open(ctx context.Context, cfg *config.DestinationConfig) error

	// Write encodes and stores one export table, returning its location
	Write(ctx context.Context, req *WriteRequest) (*WriteResult, error)

	// Close releases backend resources
	Close(ctx context.Context) error

	// Name returns the destination instance name
	Name() string

	// Type returns the backend type (s3, gcs, azblob, file)
	Type() string
}

// WriteRequest describes one table delivery
type WriteRequest struct {
	SurveyID string             // Survey the table was exported from
	RunID    string             // Export run identifier, used in the object key
	Table    *base.ResultTable  // Normalized response table
	Format   string             // csv or json; empty defaults to the destination's format
}

// WriteResult reports where a table was delivered
type WriteResult struct {
	Location string        // Backend-specific locator (object URL or file path)
	Bytes    int           // Encoded document size
	Format   string        // Format actually written
	Duration time.Duration // Time spent encoding and uploading
}

// ResolveFormat picks the effective format for a write: the request's
// format wins, then the destination config's, then CSV.
func ResolveFormat(req *WriteRequest, cfg *config.DestinationConfig) (string, error) {
	format := req.Format
	if format == "" && cfg != nil {
		format = cfg.Format
	}
	if format == "" {
		format = FormatCSV
	}
	if format != FormatCSV && format != FormatJSON {
		return "", fmt.Errorf("unsupported export format %q", format)
	}
	return format, nil
}

// ObjectKey builds the storage key for one export run:
// <prefix><survey id>/<run id>.<ext>. The prefix may be empty; a
// non-empty prefix always gets a trailing slash.
func ObjectKey(prefix, surveyID, runID, format string) string {
	ext := "csv"
	if format == FormatJSON {
		ext = "json"
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return fmt.Sprintf("%s%s/%s.%s", prefix, surveyID, runID, ext)
}

// ContentType returns the MIME type for an export format
func ContentType(format string) string {
	if format == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}
