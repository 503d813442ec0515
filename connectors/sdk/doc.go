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
Package sdk provides the building blocks for survey platform connectors:
authentication providers, retry with exponential backoff, bounded
polling, rate limiting, metrics, and an embeddable BaseConnector.

# Building a connector

Embed BaseConnector and override Connect and Export:

	type MyConnector struct {
		*sdk.BaseConnector
	}

	func New() *MyConnector {
		c := &MyConnector{BaseConnector: sdk.NewBaseConnector("myplatform")}
		c.SetVersion("1.0.0")
		c.SetValidator(sdk.NewDefaultConfigValidator(
			[]string{"api_token"},
			map[string]interface{}{"timeout_seconds": 30},
		))
		return c
	}

# Polling long-running exports

Survey platforms run exports asynchronously: the client starts a job,
polls its progress, and downloads the file once the job completes. Poll
captures that loop with a bounded attempt budget:

	progress, err := sdk.Poll(ctx, 18, sdk.ConstantInterval(10*time.Second),
		func(ctx context.Context, attempt int) (*ExportProgress, error) {
			return c.checkProgress(ctx, progressID, attempt)
		})

A nil result with a nil error means the budget ran out before the job
finished; callers translate that into their own timeout error.

# Testing

SurveyExportServer fakes the start/poll/download protocol over TLS so
connector tests exercise the real HTTP path, and MockConnector stands in
for a full connector in registry and service tests.
*/
package sdk
