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
	"errors"
	"fmt"
	"sort"

	"surveyflow/platform/connectors/base"
	"surveyflow/platform/connectors/sdk"
)

// schemaSampleSize is how many leading records the normalizer inspects to
// infer the column set. Fields that first appear later than this are not
// given columns; responses to a fixed questionnaire settle their field set
// within the first handful of records.
const schemaSampleSize = 10

// ResponseRecord is one exported survey response. Values preserves the
// answers keyed by field ID; fieldOrder remembers the order the fields
// appeared on the wire so column order is stable across runs.
type ResponseRecord struct {
	ResponseID string
	Values     map[string]interface{}

	fieldOrder []string
}

// UnmarshalJSON decodes the record and captures the wire order of the
// values object's keys, which a plain map would lose
func (r *ResponseRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		ResponseID string                 `json:"responseId"`
		Values     map[string]interface{} `json:"values"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	order, err := valuesFieldOrder(data)
	if err != nil {
		return err
	}

	r.ResponseID = raw.ResponseID
	r.Values = raw.Values
	r.fieldOrder = order
	return nil
}

// FieldOrder returns the record's field IDs in wire order
func (r *ResponseRecord) FieldOrder() []string {
	return r.fieldOrder
}

// valuesFieldOrder scans the raw JSON for the top-level "values" object
// and returns its keys in document order
func valuesFieldOrder(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("response record is not a JSON object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)

		if key != "values" {
			if err := skipJSONValue(dec); err != nil {
				return nil, err
			}
			continue
		}

		openTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if delim, ok := openTok.(json.Delim); !ok || delim != '{' {
			// values is not an object; nothing to order
			return nil, nil
		}

		var order []string
		for dec.More() {
			fieldTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			if field, ok := fieldTok.(string); ok {
				order = append(order, field)
			}
			if err := skipJSONValue(dec); err != nil {
				return nil, err
			}
		}
		return order, nil
	}

	return nil, nil
}

// skipJSONValue consumes one complete JSON value from the decoder
func skipJSONValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	delim, ok := tok.(json.Delim)
	if !ok || (delim != '{' && delim != '[') {
		return nil
	}

	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

// GetSurveyResponses runs the full export pipeline for one survey: start
// the job, poll until it completes, download the file, and normalize the
// responses into a table. With renameColumns set, question metadata is
// fetched and column headers are rewritten to human-readable labels.
//
// A job the server marks failed surfaces as ErrExportFailed; a job that
// simply outlives the polling budget surfaces as ErrExportTimedOut. The
// two are never conflated.
func (c *QualtricsConnector) GetSurveyResponses(ctx context.Context, surveyID string, renameColumns bool, options map[string]interface{}) (*base.ResultTable, error) {
	progressID, err := c.StartExport(ctx, surveyID, options)
	if err != nil {
		return nil, err
	}

	progress, err := sdk.Poll(ctx, c.maxPollAttempts, sdk.ConstantInterval(c.pollInterval),
		func(ctx context.Context, attempt int) (*ExportProgress, error) {
			p, err := c.CheckExportProgress(ctx, surveyID, progressID, attempt)
			if err != nil {
				return nil, err
			}
			switch p.Status {
			case statusComplete:
				return p, nil
			case statusFailed:
				return nil, fmt.Errorf("%w (survey %s, progress %s)", ErrExportFailed, surveyID, progressID)
			default:
				c.Log("Export %s progress: %.0f%% (attempt %d/%d)",
					progressID, p.PercentComplete, attempt, c.maxPollAttempts)
				return nil, nil
			}
		})
	if err != nil {
		return nil, err
	}
	if progress == nil {
		c.GetMetrics().RecordTimeout()
		return nil, fmt.Errorf("%w (survey %s, progress %s, %d attempts at %v)",
			ErrExportTimedOut, surveyID, progressID, c.maxPollAttempts, c.pollInterval)
	}

	records, err := c.DownloadExport(ctx, surveyID, progress.FileID)
	if err != nil {
		return nil, err
	}

	table, err := normalizeResponses(records)
	if err != nil {
		return nil, err
	}

	if renameColumns {
		questions, err := c.GetQuestions(ctx, surveyID)
		if err != nil {
			return nil, err
		}
		table.ApplyRenames(ColumnRenames(questions))
	}

	return table, nil
}

// normalizeResponses flattens exported records into a rectangular table.
// The column set is the responseId plus every field seen in the first
// schemaSampleSize records, in first-seen order. Fields a record lacks
// are filled with nil; fields outside the inferred set are dropped.
func normalizeResponses(records []ResponseRecord) (*base.ResultTable, error) {
	columns := []string{"responseId"}
	seen := map[string]bool{"responseId": true}

	sample := len(records)
	if sample > schemaSampleSize {
		sample = schemaSampleSize
	}

	for i := 0; i < sample; i++ {
		rec := records[i]
		if rec.ResponseID == "" {
			return nil, fmt.Errorf("%w: record %d has no responseId", ErrSchemaMismatch, i)
		}
		for _, field := range recordFields(rec) {
			if !seen[field] {
				seen[field] = true
				columns = append(columns, field)
			}
		}
	}

	table := base.NewResultTable(columns)
	for i, rec := range records {
		if rec.ResponseID == "" {
			return nil, fmt.Errorf("%w: record %d has no responseId", ErrSchemaMismatch, i)
		}
		row := make([]interface{}, len(columns))
		row[0] = rec.ResponseID
		for j := 1; j < len(columns); j++ {
			if val, ok := rec.Values[columns[j]]; ok {
				row[j] = val
			}
		}
		table.AppendRow(row)
	}

	return table, nil
}

// recordFields returns a record's field IDs, preferring wire order.
// Hand-built records without a captured order fall back to sorted IDs so
// the column set stays deterministic.
func recordFields(rec ResponseRecord) []string {
	if len(rec.fieldOrder) > 0 {
		return rec.fieldOrder
	}
	fields := make([]string, 0, len(rec.Values))
	for field := range rec.Values {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// IsTimeout reports whether an export error was a polling timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrExportTimedOut)
}

// IsExportFailure reports whether the server declared the export failed
func IsExportFailure(err error) bool {
	return errors.Is(err, ErrExportFailed)
}
