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

package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"surveyflow/platform/connectors/base"
)

// MockConnector provides a mock implementation for testing
type MockConnector struct {
	name         string
	connType     string
	version      string
	capabilities []string
	connected    bool

	connectError    error
	disconnectError error
	exportResult    *base.ExportResult
	exportError     error
	healthStatus    *base.HealthStatus
	healthError     error

	onExport func(context.Context, *base.ExportRequest) (*base.ExportResult, error)

	connectCalls []ConnectCall
	exportCalls  []ExportCall

	mu sync.Mutex
}

// ConnectCall records a Connect call
type ConnectCall struct {
	Config *base.ConnectorConfig
	Time   time.Time
}

// ExportCall records an Export call
type ExportCall struct {
	Request *base.ExportRequest
	Time    time.Time
}

// NewMockConnector creates a new mock connector
func NewMockConnector(name, connType string) *MockConnector {
	return &MockConnector{
		name:         name,
		connType:     connType,
		version:      "0.0.0-mock",
		capabilities: []string{"export"},
	}
}

// Connect implements base.Connector
func (m *MockConnector) Connect(ctx context.Context, config *base.ConnectorConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connectCalls = append(m.connectCalls, ConnectCall{Config: config, Time: time.Now()})

	if m.connectError != nil {
		return m.connectError
	}
	m.connected = true
	return nil
}

// Disconnect implements base.Connector
func (m *MockConnector) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disconnectError != nil {
		return m.disconnectError
	}
	m.connected = false
	return nil
}

// HealthCheck implements base.Connector
func (m *MockConnector) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.healthError != nil {
		return nil, m.healthError
	}
	if m.healthStatus != nil {
		return m.healthStatus, nil
	}
	return &base.HealthStatus{Healthy: m.connected, Timestamp: time.Now()}, nil
}

// Export implements base.Connector
func (m *MockConnector) Export(ctx context.Context, req *base.ExportRequest) (*base.ExportResult, error) {
	m.mu.Lock()
	m.exportCalls = append(m.exportCalls, ExportCall{Request: req, Time: time.Now()})
	onExport := m.onExport
	result, errToReturn := m.exportResult, m.exportError
	m.mu.Unlock()

	if onExport != nil {
		return onExport(ctx, req)
	}
	if errToReturn != nil {
		return nil, errToReturn
	}
	if result != nil {
		return result, nil
	}
	return &base.ExportResult{
		Table:     base.NewResultTable([]string{"responseId"}),
		Connector: m.name,
	}, nil
}

// Name implements base.Connector
func (m *MockConnector) Name() string { return m.name }

// Type implements base.Connector
func (m *MockConnector) Type() string { return m.connType }

// Version implements base.Connector
func (m *MockConnector) Version() string { return m.version }

// Capabilities implements base.Connector
func (m *MockConnector) Capabilities() []string { return m.capabilities }

// SetExportResult sets the mock export result
func (m *MockConnector) SetExportResult(result *base.ExportResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exportResult = result
}

// SetExportError sets the mock export error
func (m *MockConnector) SetExportError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exportError = err
}

// SetHealthStatus sets the mock health status
func (m *MockConnector) SetHealthStatus(status *base.HealthStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthStatus = status
}

// SetHealthError sets the mock health check error
func (m *MockConnector) SetHealthError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthError = err
}

// SetConnectError sets the mock connect error
func (m *MockConnector) SetConnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectError = err
}

// SetDisconnectError sets the mock disconnect error
func (m *MockConnector) SetDisconnectError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectError = err
}

// SetOnExport sets a custom export handler
func (m *MockConnector) SetOnExport(fn func(context.Context, *base.ExportRequest) (*base.ExportResult, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExport = fn
}

// IsConnected reports whether the mock is currently connected
func (m *MockConnector) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// GetConnectCalls returns all connect calls
func (m *MockConnector) GetConnectCalls() []ConnectCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]ConnectCall, len(m.connectCalls))
	copy(calls, m.connectCalls)
	return calls
}

// GetExportCalls returns all export calls
func (m *MockConnector) GetExportCalls() []ExportCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]ExportCall, len(m.exportCalls))
	copy(calls, m.exportCalls)
	return calls
}

// SurveyExportServer is an in-process fake of a survey platform's
// response-export API. It speaks the three-step protocol (start export,
// poll progress, download file) plus the question definition endpoint,
// and records the requests it saw so tests can assert on headers and
// poll counts.
type SurveyExportServer struct {
	// PollsUntilComplete is how many progress polls report inProgress
	// before the export flips to complete. Negative means never complete.
	PollsUntilComplete int

	// FailExport makes the progress endpoint report a failed export
	FailExport bool

	// Responses are returned by the file download endpoint
	Responses []map[string]interface{}

	// Questions are the raw question definition elements
	Questions []map[string]interface{}

	// APIToken, when set, is required in the X-API-TOKEN header
	APIToken string

	server *httptest.Server

	mu           sync.Mutex
	pollCount    int
	startCount   int
	pollAttempts []string
	startBodies  [][]byte
}

// NewSurveyExportServer creates a fake export server that completes
// after the given number of progress polls
func NewSurveyExportServer(pollsUntilComplete int) *SurveyExportServer {
	return &SurveyExportServer{PollsUntilComplete: pollsUntilComplete}
}

// Start brings up a TLS endpoint for the fake API. Callers use Client()
// for a client that trusts the test certificate, or connect with
// certificate verification disabled.
func (s *SurveyExportServer) Start() *httptest.Server {
	s.server = httptest.NewTLSServer(http.HandlerFunc(s.handle))
	return s.server
}

// Close shuts down the fake server
func (s *SurveyExportServer) Close() {
	if s.server != nil {
		s.server.Close()
	}
}

// URL returns the fake server's base URL
func (s *SurveyExportServer) URL() string {
	return s.server.URL
}

// Client returns an HTTP client that trusts the test TLS certificate
func (s *SurveyExportServer) Client() *http.Client {
	return s.server.Client()
}

// PollCount returns how many progress polls the server has seen
func (s *SurveyExportServer) PollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollCount
}

// StartCount returns how many exports have been started
func (s *SurveyExportServer) StartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCount
}

// StartBodies returns the raw request bodies of each export start, in
// order
func (s *SurveyExportServer) StartBodies() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	bodies := make([][]byte, len(s.startBodies))
	copy(bodies, s.startBodies)
	return bodies
}

// PollAttemptHeaders returns the X-Poll-Attempt header values seen on
// progress polls, in order
func (s *SurveyExportServer) PollAttemptHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	headers := make([]string, len(s.pollAttempts))
	copy(headers, s.pollAttempts)
	return headers
}

func (s *SurveyExportServer) handle(w http.ResponseWriter, r *http.Request) {
	if s.APIToken != "" && r.Header.Get("X-API-TOKEN") != s.APIToken {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"meta": map[string]interface{}{"httpStatus": "401 - Unauthorized"},
		})
		return
	}

	path := r.URL.Path

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/whoami"):
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"result": map[string]interface{}{"userId": "UR_fake0001"},
			"meta":   map[string]interface{}{"httpStatus": "200 - OK"},
		})
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/export-responses"):
		s.handleStart(w, r)
	case r.Method == http.MethodGet && strings.Contains(path, "/export-responses/") && strings.HasSuffix(path, "/file"):
		s.handleDownload(w)
	case r.Method == http.MethodGet && strings.Contains(path, "/export-responses/"):
		s.handlePoll(w, r)
	case r.Method == http.MethodGet && strings.Contains(path, "/survey-definitions/") && strings.HasSuffix(path, "/questions"):
		s.handleQuestions(w)
	default:
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"meta": map[string]interface{}{"httpStatus": "404 - Not Found"},
		})
	}
}

func (s *SurveyExportServer) handleStart(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.startCount++
	s.startBodies = append(s.startBodies, body)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": map[string]interface{}{"progressId": "ES_fake0001"},
		"meta":   map[string]interface{}{"httpStatus": "200 - OK"},
	})
}

func (s *SurveyExportServer) handlePoll(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.pollCount++
	count := s.pollCount
	s.pollAttempts = append(s.pollAttempts, r.Header.Get("X-Poll-Attempt"))
	s.mu.Unlock()

	result := map[string]interface{}{}
	switch {
	case s.FailExport:
		result["status"] = "failed"
		result["percentComplete"] = 0.0
	case s.PollsUntilComplete >= 0 && count > s.PollsUntilComplete:
		result["status"] = "complete"
		result["percentComplete"] = 100.0
		result["fileId"] = "FILE_fake0001"
	default:
		result["status"] = "inProgress"
		result["percentComplete"] = 50.0
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": result,
		"meta":   map[string]interface{}{"httpStatus": "200 - OK"},
	})
}

func (s *SurveyExportServer) handleDownload(w http.ResponseWriter) {
	responses := s.Responses
	if responses == nil {
		responses = []map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"responses": responses,
	})
}

func (s *SurveyExportServer) handleQuestions(w http.ResponseWriter) {
	questions := s.Questions
	if questions == nil {
		questions = []map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": map[string]interface{}{"elements": questions},
		"meta":   map[string]interface{}{"httpStatus": "200 - OK"},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		fmt.Printf("fake server: failed to encode response: %v\n", err)
	}
}
