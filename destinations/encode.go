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

package destinations

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	"surveyflow/platform/connectors/base"
)

// Format names accepted by destinations
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Encode serializes a table in the given format
func Encode(table *base.ResultTable, format string) ([]byte, error) {
	switch format {
	case FormatCSV:
		return EncodeCSV(table)
	case FormatJSON:
		return EncodeJSON(table)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// EncodeCSV writes the table as RFC 4180 CSV with a header row.
// Nil cells become empty strings.
func EncodeCSV(table *base.ResultTable) ([]byte, error) {
	if table == nil {
		return nil, fmt.Errorf("table is nil")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(table.Columns); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i := range record {
			record[i] = cellString(row[i])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush failed: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJSON writes the table as an array of objects keyed by column
// name. Nil cells are emitted as JSON null.
func EncodeJSON(table *base.ResultTable) ([]byte, error) {
	if table == nil {
		return nil, fmt.Errorf("table is nil")
	}

	records := make([]map[string]interface{}, 0, len(table.Rows))
	for _, row := range table.Rows {
		record := make(map[string]interface{}, len(table.Columns))
		for i, col := range table.Columns {
			record[col] = row[i]
		}
		records = append(records, record)
	}

	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("json encode failed: %w", err)
	}
	return data, nil
}

// cellString renders a cell value for CSV output
func cellString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		// Nested objects and arrays are carried as JSON text
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
