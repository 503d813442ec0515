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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"surveyflow/platform/connectors/base"
	"surveyflow/platform/connectors/sdk"
)

func TestExportEndToEnd(t *testing.T) {
	fake := sdk.NewSurveyExportServer(2)
	fake.Responses = []map[string]interface{}{
		{"responseId": "R_1", "values": map[string]interface{}{"QID1": "agree", "QID2_TEXT": "fine"}},
		{"responseId": "R_2", "values": map[string]interface{}{"QID1": "disagree"}},
	}
	fake.Start()
	defer fake.Close()

	c := newTestConnector(t, fake, 5)
	result, err := c.Export(context.Background(), &base.ExportRequest{SurveyID: "SV_abc"})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	if result.RowCount != 2 {
		t.Errorf("expected 2 rows, got %d", result.RowCount)
	}
	if result.Table.Columns[0] != "responseId" {
		t.Errorf("expected responseId first, got %v", result.Table.Columns)
	}
	if len(result.Table.Columns) != 3 {
		t.Errorf("expected 3 columns, got %v", result.Table.Columns)
	}

	val, ok := result.Table.Cell(0, "QID1")
	if !ok || val != "agree" {
		t.Errorf("expected agree, got %v", val)
	}

	// R_2 never answered QID2_TEXT
	val, ok = result.Table.Cell(1, "QID2_TEXT")
	if !ok {
		t.Fatal("expected QID2_TEXT column to exist")
	}
	if val != nil {
		t.Errorf("expected nil fill for missing answer, got %v", val)
	}

	// Two inProgress polls plus the completing one
	if got := fake.PollCount(); got != 3 {
		t.Errorf("expected 3 polls, got %d", got)
	}
}

func TestStartExportOptionMerge(t *testing.T) {
	fake := sdk.NewSurveyExportServer(0)
	fake.Start()
	defer fake.Close()

	c := newTestConnector(t, fake, 5)
	_, err := c.Export(context.Background(), &base.ExportRequest{
		SurveyID: "SV_abc",
		Options:  map[string]interface{}{"useLabels": true, "limit": 50},
	})
	if err != nil {
		t.Fatal(err)
	}

	bodies := fake.StartBodies()
	if len(bodies) != 1 {
		t.Fatalf("expected 1 export start, got %d", len(bodies))
	}

	var body map[string]interface{}
	if err := json.Unmarshal(bodies[0], &body); err != nil {
		t.Fatalf("start body is not JSON: %v", err)
	}
	if body["format"] != "json" {
		t.Errorf("expected default format json, got %v", body["format"])
	}
	if body["useLabels"] != true {
		t.Errorf("expected useLabels override to win, got %v", body["useLabels"])
	}
	if body["compress"] != false {
		t.Errorf("expected default compress false, got %v", body["compress"])
	}
	if body["limit"] != float64(50) {
		t.Errorf("expected passthrough limit 50, got %v", body["limit"])
	}
}

func TestExportPollAttemptHeaders(t *testing.T) {
	fake := sdk.NewSurveyExportServer(1)
	fake.Start()
	defer fake.Close()

	c := newTestConnector(t, fake, 5)
	if _, err := c.Export(context.Background(), &base.ExportRequest{SurveyID: "SV_abc"}); err != nil {
		t.Fatal(err)
	}

	headers := fake.PollAttemptHeaders()
	want := []string{"1", "2"}
	if len(headers) != len(want) {
		t.Fatalf("expected %v, got %v", want, headers)
	}
	for i := range want {
		if headers[i] != want[i] {
			t.Errorf("poll %d: expected attempt header %q, got %q", i, want[i], headers[i])
		}
	}
}

func TestExportTimeoutIsNotFailure(t *testing.T) {
	fake := sdk.NewSurveyExportServer(-1) // never completes
	fake.Start()
	defer fake.Close()

	maxAttempts := 4
	c := newTestConnector(t, fake, maxAttempts)

	_, err := c.Export(context.Background(), &base.ExportRequest{SurveyID: "SV_abc"})
	if !errors.Is(err, ErrExportTimedOut) {
		t.Fatalf("expected ErrExportTimedOut, got %v", err)
	}
	if errors.Is(err, ErrExportFailed) {
		t.Fatal("a polling timeout must never be reported as a server-side failure")
	}
	if got := fake.PollCount(); got != maxAttempts {
		t.Errorf("expected exactly %d polls, got %d", maxAttempts, got)
	}
}

func TestExportServerReportedFailure(t *testing.T) {
	fake := sdk.NewSurveyExportServer(0)
	fake.FailExport = true
	fake.Start()
	defer fake.Close()

	c := newTestConnector(t, fake, 5)
	_, err := c.Export(context.Background(), &base.ExportRequest{SurveyID: "SV_abc"})
	if !errors.Is(err, ErrExportFailed) {
		t.Fatalf("expected ErrExportFailed, got %v", err)
	}
	if errors.Is(err, ErrExportTimedOut) {
		t.Fatal("a server-side failure must never be reported as a timeout")
	}
	// The failed verdict aborts polling immediately
	if got := fake.PollCount(); got != 1 {
		t.Errorf("expected a single poll, got %d", got)
	}
}

func TestExportWithColumnRenames(t *testing.T) {
	fake := sdk.NewSurveyExportServer(0)
	fake.Responses = []map[string]interface{}{
		{"responseId": "R_1", "values": map[string]interface{}{
			"QID1":      float64(1),
			"QID2_TEXT": "free text",
			"QID3_1":    float64(5),
		}},
	}
	fake.Questions = []map[string]interface{}{
		{"QuestionID": "QID1", "QuestionType": "MC", "QuestionText": "Pick one"},
		{"QuestionID": "QID2", "QuestionType": "TE", "QuestionText": "Anything else?"},
		{
			"QuestionID": "QID3", "QuestionType": "Matrix", "QuestionText": "Rate these",
			"Choices":     map[string]interface{}{"1": map[string]interface{}{"Display": "Support quality"}},
			"ChoiceOrder": []interface{}{float64(1)},
		},
	}
	fake.Start()
	defer fake.Close()

	c := newTestConnector(t, fake, 5)
	result, err := c.Export(context.Background(), &base.ExportRequest{
		SurveyID:      "SV_abc",
		RenameColumns: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{
		"responseId":      true,
		"Pick one":        true,
		"Anything else?":  true,
		"Support quality": true,
	}
	for _, col := range result.Table.Columns {
		if !want[col] {
			t.Errorf("unexpected column %q in %v", col, result.Table.Columns)
		}
	}
}

func TestExportContextCancellation(t *testing.T) {
	fake := sdk.NewSurveyExportServer(-1)
	fake.Start()
	defer fake.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestConnector(t, fake, 5)
	_, err := c.Export(ctx, &base.ExportRequest{SurveyID: "SV_abc"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestResponseRecordPreservesWireOrder(t *testing.T) {
	raw := []byte(`{"responseId":"R_1","values":{"zeta":1,"alpha":{"nested":true},"mid":[1,2]}}`)

	var rec ResponseRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatal(err)
	}

	want := []string{"zeta", "alpha", "mid"}
	got := rec.FieldOrder()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("field %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if rec.ResponseID != "R_1" {
		t.Errorf("unexpected responseId %s", rec.ResponseID)
	}
}

func TestNormalizeSparseRecords(t *testing.T) {
	records := []ResponseRecord{
		{ResponseID: "R_1", Values: map[string]interface{}{"QID1": "a"}, fieldOrder: []string{"QID1"}},
		{ResponseID: "R_2", Values: map[string]interface{}{"QID2": "b"}, fieldOrder: []string{"QID2"}},
		{ResponseID: "R_3", Values: map[string]interface{}{}},
	}

	table, err := normalizeResponses(records)
	if err != nil {
		t.Fatal(err)
	}

	wantCols := []string{"responseId", "QID1", "QID2"}
	for i, col := range wantCols {
		if table.Columns[i] != col {
			t.Fatalf("expected columns %v, got %v", wantCols, table.Columns)
		}
	}

	if v, _ := table.Cell(0, "QID2"); v != nil {
		t.Errorf("expected nil fill, got %v", v)
	}
	if v, _ := table.Cell(1, "QID2"); v != "b" {
		t.Errorf("expected b, got %v", v)
	}
	if v, _ := table.Cell(2, "QID1"); v != nil {
		t.Errorf("expected nil fill for empty record, got %v", v)
	}
}

func TestNormalizeSchemaSampleWindow(t *testing.T) {
	var records []ResponseRecord
	for i := 0; i < schemaSampleSize; i++ {
		records = append(records, ResponseRecord{
			ResponseID: fmt.Sprintf("R_%d", i),
			Values:     map[string]interface{}{"QID1": i},
			fieldOrder: []string{"QID1"},
		})
	}
	// This field first appears after the sample window and gets no column
	records = append(records, ResponseRecord{
		ResponseID: "R_late",
		Values:     map[string]interface{}{"QID1": 99, "QID_LATE": "dropped"},
		fieldOrder: []string{"QID1", "QID_LATE"},
	})

	table, err := normalizeResponses(records)
	if err != nil {
		t.Fatal(err)
	}

	if table.ColumnIndex("QID_LATE") != -1 {
		t.Errorf("expected late field to be dropped, columns: %v", table.Columns)
	}
	if v, _ := table.Cell(len(records)-1, "QID1"); v != 99 {
		t.Errorf("expected in-schema fields of late records to survive, got %v", v)
	}
}

func TestNormalizeRejectsMissingResponseID(t *testing.T) {
	records := []ResponseRecord{
		{Values: map[string]interface{}{"QID1": "a"}},
	}
	if _, err := normalizeResponses(records); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestNormalizeEmptyExport(t *testing.T) {
	table, err := normalizeResponses(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 0 {
		t.Errorf("expected empty table, got %d rows", len(table.Rows))
	}
	if len(table.Columns) != 1 || table.Columns[0] != "responseId" {
		t.Errorf("expected the bare responseId column, got %v", table.Columns)
	}
}

func TestErrorPredicates(t *testing.T) {
	timeoutErr := fmt.Errorf("wrapped: %w", ErrExportTimedOut)
	if !IsTimeout(timeoutErr) || IsExportFailure(timeoutErr) {
		t.Error("timeout predicate mismatch")
	}

	failedErr := fmt.Errorf("wrapped: %w", ErrExportFailed)
	if !IsExportFailure(failedErr) || IsTimeout(failedErr) {
		t.Error("failure predicate mismatch")
	}
}
