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
Package base defines the core contracts shared by all survey platform
connectors.

# Overview

Every connector implements the Connector interface: a lifecycle
(Connect, Disconnect, HealthCheck) plus the Export operation that pulls
survey responses from the remote platform into a ResultTable. The
ConnectorConfig carries credentials and tuning options, and
ConnectorError wraps failures with enough context to tell a retryable
transport fault apart from a permanent one.

# ResultTable

Exported responses are materialized as a ResultTable: an ordered list of
column names and rectangular rows. Column headers can be rewritten in
place with ApplyRenames, which connectors use to replace machine
question identifiers with human-readable labels.

# Security

ValidateSecureURL enforces encrypted transport for configured endpoints,
and ValidateHost provides SSRF protection (host allow-lists, private IP
blocking) for base URLs supplied by tenants.

# Usage

	cfg := &base.ConnectorConfig{
		Name:       "qualtrics-prod",
		Type:       "qualtrics",
		DataCenter: "ca1",
		Credentials: map[string]string{
			"api_token": os.Getenv("QUALTRICS_API_TOKEN"),
		},
	}

	if err := conn.Connect(ctx, cfg); err != nil {
		log.Fatal(err)
	}
	defer conn.Disconnect(ctx)

	result, err := conn.Export(ctx, &base.ExportRequest{
		SurveyID:      "SV_abc123",
		RenameColumns: true,
	})
*/
package base
