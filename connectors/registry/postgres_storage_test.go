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

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"surveyflow/platform/connectors/base"
)

func newMockStorage(t *testing.T) (*PostgreSQLStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgreSQLStorageWithDB(db), mock
}

func TestSaveConnector(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectExec("INSERT INTO connectors").
		WithArgs("qt-prod", "qt-prod", "qualtrics", "tenant-a", "ca1",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	cfg := &base.ConnectorConfig{
		Name:        "qt-prod",
		Type:        "qualtrics",
		TenantID:    "tenant-a",
		DataCenter:  "ca1",
		Credentials: map[string]string{"api_token": "tok"},
		Options:     map[string]interface{}{"poll_interval_seconds": 5},
	}

	if err := storage.SaveConnector(context.Background(), "qt-prod", cfg); err != nil {
		t.Fatalf("SaveConnector failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetConnector(t *testing.T) {
	storage, mock := newMockStorage(t)

	rows := sqlmock.NewRows([]string{"name", "type", "tenant_id", "data_center", "options", "credentials"}).
		AddRow("qt-prod", "qualtrics", "tenant-a", "ca1",
			[]byte(`{"max_poll_attempts": 18}`), []byte(`{"api_token":"tok"}`))
	mock.ExpectQuery("SELECT name, type, tenant_id, data_center").
		WithArgs("qt-prod").WillReturnRows(rows)

	cfg, err := storage.GetConnector(context.Background(), "qt-prod")
	if err != nil {
		t.Fatalf("GetConnector failed: %v", err)
	}
	if cfg.Type != "qualtrics" || cfg.DataCenter != "ca1" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Credentials["api_token"] != "tok" {
		t.Errorf("unexpected credentials: %v", cfg.Credentials)
	}
	if cfg.Options["max_poll_attempts"] != float64(18) {
		t.Errorf("unexpected options: %v", cfg.Options)
	}
}

func TestGetConnectorNotFound(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectQuery("SELECT name, type, tenant_id, data_center").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"name", "type", "tenant_id", "data_center", "options", "credentials"}))

	if _, err := storage.GetConnector(context.Background(), "ghost"); err == nil {
		t.Error("expected error for missing connector")
	}
}

func TestDeleteConnector(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectExec("DELETE FROM connectors").
		WithArgs("qt-prod").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := storage.DeleteConnector(context.Background(), "qt-prod"); err != nil {
		t.Fatalf("DeleteConnector failed: %v", err)
	}

	mock.ExpectExec("DELETE FROM connectors").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := storage.DeleteConnector(context.Background(), "ghost"); err == nil {
		t.Error("expected error deleting missing connector")
	}
}

func TestExportRunLifecycle(t *testing.T) {
	storage, mock := newMockStorage(t)
	started := time.Now()

	mock.ExpectExec("INSERT INTO export_runs").
		WithArgs("run-1", "tenant-a", "qt-prod", "SV_abc123", "pending", "warehouse", started).
		WillReturnResult(sqlmock.NewResult(0, 1))

	run := &ExportRun{
		ID:          "run-1",
		TenantID:    "tenant-a",
		Connector:   "qt-prod",
		SurveyID:    "SV_abc123",
		Status:      "pending",
		Destination: "warehouse",
		StartedAt:   started,
	}
	if err := storage.SaveExportRun(context.Background(), run); err != nil {
		t.Fatalf("SaveExportRun failed: %v", err)
	}

	completed := started.Add(time.Minute)
	run.Status = "completed"
	run.RowCount = 42
	run.PollAttempts = 3
	run.CompletedAt = &completed

	mock.ExpectExec("UPDATE export_runs").
		WithArgs("run-1", "completed", 42, 3, "", &completed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := storage.UpdateExportRun(context.Background(), run); err != nil {
		t.Fatalf("UpdateExportRun failed: %v", err)
	}

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "connector", "survey_id", "status", "row_count",
		"poll_attempts", "destination", "error", "started_at", "completed_at",
	}).AddRow("run-1", "tenant-a", "qt-prod", "SV_abc123", "completed", 42, 3, "warehouse", "", started, completed)
	mock.ExpectQuery("SELECT id, tenant_id, connector").
		WithArgs("run-1").WillReturnRows(rows)

	got, err := storage.GetExportRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetExportRun failed: %v", err)
	}
	if got.Status != "completed" || got.RowCount != 42 || got.PollAttempts != 3 {
		t.Errorf("unexpected run: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUpdateExportRunNotFound(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectExec("UPDATE export_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	run := &ExportRun{ID: "missing", Status: "failed"}
	if err := storage.UpdateExportRun(context.Background(), run); err == nil {
		t.Error("expected error updating missing run")
	}
}

func TestListExportRuns(t *testing.T) {
	storage, mock := newMockStorage(t)
	started := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "connector", "survey_id", "status", "row_count",
		"poll_attempts", "destination", "error", "started_at", "completed_at",
	}).
		AddRow("run-2", "t", "qt", "SV_2", "timed_out", 0, 18, "", "export timed out", started, nil).
		AddRow("run-1", "t", "qt", "SV_1", "completed", 10, 2, "warehouse", "", started.Add(-time.Hour), started)
	mock.ExpectQuery("SELECT id, tenant_id, connector").
		WithArgs("t", 50).WillReturnRows(rows)

	runs, err := storage.ListExportRuns(context.Background(), "t", 0)
	if err != nil {
		t.Fatalf("ListExportRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Status != "timed_out" || runs[0].CompletedAt != nil {
		t.Errorf("unexpected first run: %+v", runs[0])
	}
	if runs[1].CompletedAt == nil {
		t.Error("expected second run to have completed_at")
	}
}
