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

/*
Package logger provides structured JSON logging for SurveyFlow components.

# Overview

The logger package outputs single-line JSON to stdout, making logs easily
consumable by CloudWatch, ELK, or other log aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (exportd, registry, etc.)
  - Instance ID and container name (for distributed tracing)
  - Client ID (for multi-tenant isolation)
  - Request ID (for request correlation)
  - Survey ID (promoted from fields when present)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("exportd")

Log messages with client and request context:

	log.Info("client-123", "req-456", "Export started", map[string]interface{}{
	    "survey_id": "SV_abc123",
	})

Log with duration tracking:

	start := time.Now()
	// ... run export ...
	log.InfoWithDuration("client-123", "req-456", "Export completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Environment Variables

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
