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
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"surveyflow/platform/connectors/base"
	"surveyflow/platform/connectors/config"
)

// Question types that get special column treatment
const (
	questionTypeTextEntry = "TE"
	questionTypeMatrix    = "Matrix"
)

// Choice is one answer option of a closed question
type Choice struct {
	Display string `json:"Display"`
}

// Question is a survey question definition as returned by the
// survey-definitions API
type Question struct {
	QuestionID   string            `json:"QuestionID"`
	QuestionText string            `json:"QuestionText"`
	QuestionType string            `json:"QuestionType"`
	Choices      map[string]Choice `json:"Choices"`
	ChoiceOrder  []interface{}     `json:"ChoiceOrder"`
}

// GetQuestions fetches the question definitions of a survey. Definitions
// are cached per survey for DefaultQuestionCacheTTL so repeated exports of
// the same survey do not refetch metadata.
func (c *QualtricsConnector) GetQuestions(ctx context.Context, surveyID string) ([]Question, error) {
	c.questionMu.Lock()
	if entry, ok := c.questionCache[surveyID]; ok && !entry.IsExpired() {
		questions := entry.Value
		c.questionMu.Unlock()
		return questions, nil
	}
	c.questionMu.Unlock()

	url := fmt.Sprintf("%s/API/v3/survey-definitions/%s/questions", c.baseURL, surveyID)

	var result struct {
		Elements []Question `json:"elements"`
	}
	if err := c.callAPI(ctx, "GetQuestions", http.MethodGet, url, nil, nil, &result); err != nil {
		return nil, err
	}

	now := time.Now()
	c.questionMu.Lock()
	if c.questionCache == nil {
		c.questionCache = make(map[string]*config.CacheEntry[[]Question])
	}
	c.questionCache[surveyID] = &config.CacheEntry[[]Question]{
		Value:      result.Elements,
		ExpiresAt:  now.Add(DefaultQuestionCacheTTL),
		LastUpdate: now,
	}
	c.questionMu.Unlock()

	return result.Elements, nil
}

// ColumnRenames derives export column relabelings from question
// definitions. The exported field naming depends on the question type:
//
//   - text entry answers land in a "{qid}_TEXT" field, relabeled to the
//     question text
//   - matrix questions produce one "{qid}_{choice}" field per sub-question
//     row, relabeled to the row's display text
//   - everything else exports a single "{qid}" field, relabeled to the
//     question text
//
// Renames for fields a particular export does not contain are harmless;
// ResultTable.ApplyRenames ignores absent columns.
func ColumnRenames(questions []Question) []base.ColumnRename {
	var renames []base.ColumnRename

	for _, q := range questions {
		switch q.QuestionType {
		case questionTypeTextEntry:
			renames = append(renames, base.ColumnRename{
				Field: q.QuestionID + "_TEXT",
				Label: q.QuestionText,
			})
		case questionTypeMatrix:
			for _, key := range choiceKeys(q) {
				renames = append(renames, base.ColumnRename{
					Field: q.QuestionID + "_" + key,
					Label: q.Choices[key].Display,
				})
			}
		default:
			renames = append(renames, base.ColumnRename{
				Field: q.QuestionID,
				Label: q.QuestionText,
			})
		}
	}

	return renames
}

// choiceKeys returns the question's choice keys in presentation order,
// falling back to sorted keys when no explicit order is defined
func choiceKeys(q Question) []string {
	if len(q.ChoiceOrder) > 0 {
		keys := make([]string, 0, len(q.ChoiceOrder))
		for _, raw := range q.ChoiceOrder {
			if key := stringifyChoiceKey(raw); key != "" {
				keys = append(keys, key)
			}
		}
		return keys
	}

	keys := make([]string, 0, len(q.Choices))
	for key := range q.Choices {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// stringifyChoiceKey normalizes a ChoiceOrder entry; the API emits these
// as either strings or numbers
func stringifyChoiceKey(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
