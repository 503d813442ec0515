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

// Package main is the entry point for the SurveyFlow export service.
//
// The export service runs survey-response exports against configured
// survey platforms and delivers the resulting tables to storage
// destinations (S3, GCS, Azure Blob, local filesystem).
//
// Usage:
//
//	./exportd
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DATABASE_URL - PostgreSQL connection string (optional; enables run history)
//	REDIS_URL - Redis connection string (optional; distributed rate limiting)
//	JWT_SECRET - HMAC secret for client tokens (auth disabled when unset)
//	SURVEYFLOW_CONFIG_FILE - YAML connector/destination config (optional)
//	SURVEYFLOW_QUALTRICS_API_TOKEN - Qualtrics API token
//	SURVEYFLOW_QUALTRICS_DATA_CENTER - Qualtrics data center (e.g. ca1)
package main

import (
	"surveyflow/platform/service"
)

func main() {
	service.Run()
}
