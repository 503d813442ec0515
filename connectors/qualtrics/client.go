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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"surveyflow/platform/connectors/base"
	"surveyflow/platform/connectors/sdk"
)

// Export job states reported by the progress endpoint
const (
	statusInProgress = "inProgress"
	statusComplete   = "complete"
	statusFailed     = "failed"
)

// apiEnvelope is the standard Qualtrics v3 response wrapper
type apiEnvelope struct {
	Result json.RawMessage `json:"result"`
	Meta   struct {
		HTTPStatus string `json:"httpStatus"`
		Error      *struct {
			ErrorMessage string `json:"errorMessage"`
			ErrorCode    string `json:"errorCode"`
		} `json:"error"`
	} `json:"meta"`
}

// exportStart is the result of starting an export job
type exportStart struct {
	ProgressID string `json:"progressId"`
}

// ExportProgress is one answer from the export progress endpoint
type ExportProgress struct {
	Status          string  `json:"status"`
	PercentComplete float64 `json:"percentComplete"`
	FileID          string  `json:"fileId"`
}

// doRequest sends one authenticated request and returns the raw body and
// status code. Every URL passes the HTTPS guard before the request is
// built, and every request waits on the connector's rate limiter.
func (c *QualtricsConnector) doRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, int, error) {
	if _, err := base.ValidateSecureURL(url); err != nil {
		return nil, 0, err
	}

	if limiter := c.GetRateLimiter(); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, 0, err
		}
	}

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}

	if auth := c.GetAuthProvider(); auth != nil {
		if err := auth.Authenticate(ctx, req); err != nil {
			return nil, 0, err
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "SurveyFlow-Qualtrics-Connector/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, val := range headers {
		req.Header.Set(key, val)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := c.readLimited(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return respBody, resp.StatusCode, nil
}

// callAPI performs a request and unwraps the standard result envelope,
// turning non-2xx answers into RemoteError
func (c *QualtricsConnector) callAPI(ctx context.Context, operation, method, url string, body []byte, headers map[string]string, result interface{}) error {
	respBody, status, err := c.doRequest(ctx, method, url, body, headers)
	if err != nil {
		return err
	}

	if status < 200 || status >= 300 {
		remote := &RemoteError{Operation: operation, StatusCode: status}
		var envelope apiEnvelope
		if json.Unmarshal(respBody, &envelope) == nil && envelope.Meta.Error != nil {
			remote.Message = envelope.Meta.Error.ErrorMessage
		}
		if remote.Retryable() {
			return &sdk.RetryableError{Err: remote}
		}
		return remote
	}

	if result == nil {
		return nil
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("%s: malformed response envelope: %w", operation, err)
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("%s: malformed result payload: %w", operation, err)
	}
	return nil
}

// StartExport asks the platform to begin exporting a survey's responses
// and returns the progress ID used to track the job. Caller options are
// merged over the defaults, so a key like "useLabels" can be overridden
// per request while format stays json unless explicitly changed.
func (c *QualtricsConnector) StartExport(ctx context.Context, surveyID string, options map[string]interface{}) (string, error) {
	url := fmt.Sprintf("%s/API/v3/surveys/%s/export-responses", c.baseURL, surveyID)

	body := map[string]interface{}{
		"format":    "json",
		"useLabels": false,
		"compress":  false,
	}
	for k, v := range options {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("StartExport: encode request: %w", err)
	}

	var result exportStart
	if err := c.callAPI(ctx, "StartExport", http.MethodPost, url, payload, nil, &result); err != nil {
		return "", err
	}
	if result.ProgressID == "" {
		return "", &RemoteError{Operation: "StartExport", StatusCode: http.StatusOK, Message: "no progress ID in response"}
	}

	c.Log("Started export for survey %s: progress=%s",
		base.SanitizeLogString(surveyID), result.ProgressID)
	return result.ProgressID, nil
}

// CheckExportProgress fetches the current state of an export job. The
// attempt number rides along in an X-Poll-Attempt header so the remote
// side can correlate polling telemetry.
func (c *QualtricsConnector) CheckExportProgress(ctx context.Context, surveyID, progressID string, attempt int) (*ExportProgress, error) {
	url := fmt.Sprintf("%s/API/v3/surveys/%s/export-responses/%s", c.baseURL, surveyID, progressID)
	headers := map[string]string{"X-Poll-Attempt": strconv.Itoa(attempt)}

	var progress ExportProgress
	if err := c.callAPI(ctx, "CheckExportProgress", http.MethodGet, url, nil, headers, &progress); err != nil {
		return nil, err
	}
	c.GetMetrics().RecordPoll()
	return &progress, nil
}

// DownloadExport fetches the finished export file and decodes its
// responses. Transient download failures are retried with backoff; the
// file endpoint is idempotent.
func (c *QualtricsConnector) DownloadExport(ctx context.Context, surveyID, fileID string) ([]ResponseRecord, error) {
	url := fmt.Sprintf("%s/API/v3/surveys/%s/export-responses/%s/file", c.baseURL, surveyID, fileID)

	body, err := sdk.RetryWithBackoff(ctx, c.GetRetryConfig(), func() ([]byte, error) {
		respBody, status, err := c.doRequest(ctx, http.MethodGet, url, nil, nil)
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			remote := &RemoteError{Operation: "DownloadExport", StatusCode: status}
			if remote.Retryable() {
				return nil, &sdk.RetryableError{Err: remote}
			}
			return nil, remote
		}
		return respBody, nil
	})
	if err != nil {
		return nil, err
	}

	var file struct {
		Responses *[]ResponseRecord `json:"responses"`
	}
	if err := json.Unmarshal(body, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if file.Responses == nil {
		return nil, fmt.Errorf("%w: missing responses array", ErrSchemaMismatch)
	}

	c.GetMetrics().RecordDownload()
	return *file.Responses, nil
}
