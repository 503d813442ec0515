// Copyright 2025 SurveyFlow
// SPDX-License-Identifier: BUSL-1.1
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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyflow/platform/connectors/base"
	"surveyflow/platform/connectors/config"
	"surveyflow/platform/connectors/qualtrics"
	"surveyflow/platform/connectors/registry"
	"surveyflow/platform/connectors/sdk"
)

// setupTestService wires the package globals to fresh test instances
func setupTestService(t *testing.T) *sdk.MockConnector {
	t.Helper()

	jwtSecret = nil
	defaultTenantID = "default"
	redisClient = nil
	resetRateLimiter()

	connectorRegistry = registry.NewRegistry()
	runtimeConfig = config.NewRuntimeConfigService(config.RuntimeConfigServiceOptions{
		SelfHosted: true,
	})
	serviceMetrics = NewExportServiceMetrics()

	mock := sdk.NewMockConnector("qualtrics", "mock")
	mock.SetExportResult(sampleExportResult())
	cfg := &base.ConnectorConfig{
		Name:     "qualtrics",
		Type:     "mock",
		TenantID: "*",
		Timeout:  5 * time.Second,
	}
	require.NoError(t, connectorRegistry.Register("qualtrics", mock, cfg))

	return mock
}

func sampleExportResult() *base.ExportResult {
	table := base.NewResultTable([]string{"ResponseId", "Q1"})
	table.AppendRow([]interface{}{"R_1", "yes"})
	table.AppendRow([]interface{}{"R_2", "no"})
	return &base.ExportResult{
		Table:     table,
		RowCount:  2,
		Duration:  25 * time.Millisecond,
		Connector: "qualtrics",
	}
}

func postExport(t *testing.T, body ExportAPIRequest) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exports", bytes.NewReader(data))
	w := httptest.NewRecorder()
	createExportHandler(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	setupTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "surveyflow-export", response["service"])
	assert.EqualValues(t, 1, response["connectors"])
}

func TestCreateExportReturnsRowsInline(t *testing.T) {
	mock := setupTestService(t)

	w := postExport(t, ExportAPIRequest{SurveyID: "SV_abc", RenameColumns: true})

	require.Equal(t, http.StatusOK, w.Code)

	var resp ExportAPIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, runStatusCompleted, resp.Status)
	assert.Equal(t, "qualtrics", resp.Connector)
	assert.Equal(t, 2, resp.RowCount)
	assert.Equal(t, []string{"ResponseId", "Q1"}, resp.Columns)
	assert.Len(t, resp.Rows, 2)
	assert.NotEmpty(t, resp.RunID)
	assert.Nil(t, resp.Delivery)

	calls := mock.GetExportCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "SV_abc", calls[0].Request.SurveyID)
	assert.True(t, calls[0].Request.RenameColumns)
}

func TestCreateExportRequiresSurveyID(t *testing.T) {
	setupTestService(t)

	w := postExport(t, ExportAPIRequest{})

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ExportAPIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "survey_id")
}

func TestCreateExportRejectsUnknownFormat(t *testing.T) {
	setupTestService(t)

	w := postExport(t, ExportAPIRequest{SurveyID: "SV_abc", Format: "parquet"})

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateExportUnknownConnector(t *testing.T) {
	setupTestService(t)

	w := postExport(t, ExportAPIRequest{SurveyID: "SV_abc", Connector: "missing"})

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateExportTimeoutStatus(t *testing.T) {
	mock := setupTestService(t)
	mock.SetExportError(qualtrics.ErrExportTimedOut)

	w := postExport(t, ExportAPIRequest{SurveyID: "SV_abc"})

	require.Equal(t, http.StatusGatewayTimeout, w.Code)

	var resp ExportAPIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, runStatusTimedOut, resp.Status)
}

func TestCreateExportFailureStatus(t *testing.T) {
	mock := setupTestService(t)
	mock.SetExportError(qualtrics.ErrExportFailed)

	w := postExport(t, ExportAPIRequest{SurveyID: "SV_abc"})

	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp ExportAPIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, runStatusFailed, resp.Status)
}

func TestCreateExportDeliversToFileDestination(t *testing.T) {
	setupTestService(t)

	dir := t.TempDir()
	t.Setenv("EXPORT_DIR", dir)

	w := postExport(t, ExportAPIRequest{
		SurveyID:    "SV_abc",
		Destination: "file",
		Format:      "json",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp ExportAPIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.NotNil(t, resp.Delivery)
	assert.Equal(t, "json", resp.Delivery.Format)
	assert.Empty(t, resp.Rows) // delivered exports do not echo the table

	want := filepath.Join(dir, "SV_abc", resp.RunID+".json")
	assert.Equal(t, want, resp.Delivery.Location)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Len(t, records, 2)
}

func TestCreateExportUnknownDestination(t *testing.T) {
	setupTestService(t)

	w := postExport(t, ExportAPIRequest{
		SurveyID:    "SV_abc",
		Destination: "nowhere",
	})

	require.Equal(t, http.StatusBadGateway, w.Code)

	var resp ExportAPIResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Error, "nowhere")
}

func TestCreateExportRateLimited(t *testing.T) {
	setupTestService(t)

	// Exhaust an artificially tiny in-memory window
	for i := 0; i < defaultRateLimit; i++ {
		require.NoError(t, checkRateLimit("anonymous", defaultRateLimit))
	}

	w := postExport(t, ExportAPIRequest{SurveyID: "SV_abc"})

	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestGetExportRunWithoutStorage(t *testing.T) {
	setupTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/some-id", nil)
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSurveyQuestionsNotSupportedByConnector(t *testing.T) {
	setupTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/surveys/SV_abc/questions", nil)
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestSurveyQuestionsPassthrough(t *testing.T) {
	setupTestService(t)

	server := sdk.NewSurveyExportServer(1)
	server.Questions = []map[string]interface{}{
		{
			"QuestionID":   "QID1",
			"QuestionText": "How satisfied are you?",
			"QuestionType": "TE",
		},
	}
	server.Start()
	defer server.Close()

	conn := qualtrics.NewQualtricsConnector()
	cfg := &base.ConnectorConfig{
		Name:        "qualtrics-live",
		Type:        "qualtrics",
		TenantID:    "*",
		Credentials: map[string]string{"api_token": "test-token"},
		Options: map[string]interface{}{
			"base_url":          server.URL(),
			"tls_skip_verify":   true,
			"allow_private_ips": true,
		},
		Timeout: 5 * time.Second,
	}
	require.NoError(t, connectorRegistry.Register("qualtrics-live", conn, cfg))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/surveys/SV_abc/questions?connector=qualtrics-live", nil)
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		SurveyID  string               `json:"survey_id"`
		Questions []qualtrics.Question `json:"questions"`
		Renames   []base.ColumnRename  `json:"renames"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "SV_abc", resp.SurveyID)
	assert.NotEmpty(t, resp.Questions)
	assert.NotEmpty(t, resp.Renames)
}

func TestListConnectorsHandler(t *testing.T) {
	setupTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/connectors", nil)
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Connectors []map[string]string `json:"connectors"`
		Count      int                 `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "qualtrics", resp.Connectors[0]["name"])
}

func TestSimpleMetricsHandlerAfterExports(t *testing.T) {
	mock := setupTestService(t)

	postExport(t, ExportAPIRequest{SurveyID: "SV_1"})
	mock.SetExportError(qualtrics.ErrExportTimedOut)
	postExport(t, ExportAPIRequest{SurveyID: "SV_2"})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	simpleMetricsHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var metrics map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&metrics))
	assert.EqualValues(t, 2, metrics["total_exports"])
	assert.EqualValues(t, 1, metrics["completed_runs"])
	assert.EqualValues(t, 1, metrics["timed_out_runs"])
	assert.Contains(t, metrics["connectors"], "qualtrics")
}
