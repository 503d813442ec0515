// Copyright 2025 SurveyFlow
// SPDX-License-Identifier: BUSL-1.1

package destinations

import (
	"encoding/json"
	"strings"
	"testing"

	"surveyflow/platform/connectors/base"
)

func sampleTable() *base.ResultTable {
	t := base.NewResultTable([]string{"ResponseId", "Q1", "Q2_TEXT"})
	t.AppendRow([]interface{}{"R_1", float64(3), "hello, world"})
	t.AppendRow([]interface{}{"R_2", nil, `quoted "text"`})
	t.AppendRow([]interface{}{"R_3", true, ""})
	return t
}

func TestEncodeCSV(t *testing.T) {
	data, err := EncodeCSV(sampleTable())
	if err != nil {
		t.Fatalf("EncodeCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines", len(lines))
	}
	if lines[0] != "ResponseId,Q1,Q2_TEXT" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if lines[1] != `R_1,3,"hello, world"` {
		t.Errorf("unexpected row: %q", lines[1])
	}
	// nil cells become empty strings
	if lines[2] != `R_2,,"quoted ""text"""` {
		t.Errorf("unexpected row: %q", lines[2])
	}
	if lines[3] != "R_3,true," {
		t.Errorf("unexpected row: %q", lines[3])
	}
}

func TestEncodeJSON(t *testing.T) {
	data, err := EncodeJSON(sampleTable())
	if err != nil {
		t.Fatalf("EncodeJSON failed: %v", err)
	}

	var records []map[string]interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0]["ResponseId"] != "R_1" {
		t.Errorf("unexpected ResponseId: %v", records[0]["ResponseId"])
	}
	if records[0]["Q1"] != float64(3) {
		t.Errorf("unexpected Q1: %v", records[0]["Q1"])
	}
	// nil cells survive as JSON null
	if v, ok := records[1]["Q1"]; !ok || v != nil {
		t.Errorf("expected null Q1, got %v (present=%v)", v, ok)
	}
}

func TestEncodeNestedValues(t *testing.T) {
	table := base.NewResultTable([]string{"ResponseId", "Tags"})
	table.AppendRow([]interface{}{"R_1", map[string]interface{}{"a": float64(1)}})

	data, err := EncodeCSV(table)
	if err != nil {
		t.Fatalf("EncodeCSV failed: %v", err)
	}
	if !strings.Contains(string(data), `"{""a"":1}"`) {
		t.Errorf("nested value not marshaled as JSON: %s", data)
	}
}

func TestEncodeUnsupportedFormat(t *testing.T) {
	if _, err := Encode(sampleTable(), "parquet"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
