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

package qualtrics

import (
	"errors"
	"fmt"
)

var (
	// ErrExportFailed is returned when the platform reports the export
	// job itself failed. This is a server-side verdict, not a timeout.
	ErrExportFailed = errors.New("qualtrics: export failed on the server")

	// ErrExportTimedOut is returned when the polling budget runs out
	// before the export completes. The job may still finish remotely;
	// we just stopped waiting.
	ErrExportTimedOut = errors.New("qualtrics: export did not complete within the polling budget")

	// ErrSchemaMismatch is returned when a downloaded export file does
	// not have the expected shape.
	ErrSchemaMismatch = errors.New("qualtrics: unexpected export file schema")
)

// RemoteError describes a non-2xx answer from the Qualtrics API
type RemoteError struct {
	Operation  string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("qualtrics %s: HTTP %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("qualtrics %s: HTTP %d", e.Operation, e.StatusCode)
}

// Retryable reports whether the remote status suggests a transient fault
func (e *RemoteError) Retryable() bool {
	switch e.StatusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
