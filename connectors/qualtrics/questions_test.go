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
	"testing"

	"surveyflow/platform/connectors/sdk"
)

func TestColumnRenamesTextEntry(t *testing.T) {
	renames := ColumnRenames([]Question{
		{QuestionID: "QID7", QuestionType: "TE", QuestionText: "Any other feedback?"},
	})

	if len(renames) != 1 {
		t.Fatalf("expected 1 rename, got %d", len(renames))
	}
	if renames[0].Field != "QID7_TEXT" {
		t.Errorf("expected QID7_TEXT, got %s", renames[0].Field)
	}
	if renames[0].Label != "Any other feedback?" {
		t.Errorf("unexpected label %s", renames[0].Label)
	}
}

func TestColumnRenamesMatrix(t *testing.T) {
	renames := ColumnRenames([]Question{
		{
			QuestionID:   "QID3",
			QuestionType: "Matrix",
			QuestionText: "Rate the following",
			Choices: map[string]Choice{
				"1": {Display: "Speed"},
				"2": {Display: "Quality"},
			},
			ChoiceOrder: []interface{}{float64(2), float64(1)},
		},
	})

	if len(renames) != 2 {
		t.Fatalf("expected 2 renames, got %d", len(renames))
	}
	// Choice enumeration follows ChoiceOrder
	if renames[0].Field != "QID3_2" || renames[0].Label != "Quality" {
		t.Errorf("unexpected first rename: %+v", renames[0])
	}
	if renames[1].Field != "QID3_1" || renames[1].Label != "Speed" {
		t.Errorf("unexpected second rename: %+v", renames[1])
	}
}

func TestColumnRenamesMatrixWithoutChoiceOrder(t *testing.T) {
	renames := ColumnRenames([]Question{
		{
			QuestionID:   "QID3",
			QuestionType: "Matrix",
			Choices: map[string]Choice{
				"2": {Display: "B"},
				"1": {Display: "A"},
			},
		},
	})

	if len(renames) != 2 {
		t.Fatalf("expected 2 renames, got %d", len(renames))
	}
	if renames[0].Field != "QID3_1" || renames[1].Field != "QID3_2" {
		t.Errorf("expected sorted fallback order, got %+v", renames)
	}
}

func TestColumnRenamesDefault(t *testing.T) {
	renames := ColumnRenames([]Question{
		{QuestionID: "QID1", QuestionType: "MC", QuestionText: "Pick one"},
		{QuestionID: "QID2", QuestionType: "Slider", QuestionText: "How much?"},
	})

	if len(renames) != 2 {
		t.Fatalf("expected 2 renames, got %d", len(renames))
	}
	if renames[0].Field != "QID1" || renames[0].Label != "Pick one" {
		t.Errorf("unexpected rename: %+v", renames[0])
	}
	if renames[1].Field != "QID2" || renames[1].Label != "How much?" {
		t.Errorf("unexpected rename: %+v", renames[1])
	}
}

func TestStringifyChoiceKey(t *testing.T) {
	tests := []struct {
		raw  interface{}
		want string
	}{
		{"3", "3"},
		{float64(7), "7"},
		{float64(1.5), "1.5"},
		{nil, ""},
		{true, ""},
	}
	for _, tt := range tests {
		if got := stringifyChoiceKey(tt.raw); got != tt.want {
			t.Errorf("stringifyChoiceKey(%v) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestGetQuestions(t *testing.T) {
	fake := sdk.NewSurveyExportServer(0)
	fake.Questions = []map[string]interface{}{
		{"QuestionID": "QID1", "QuestionType": "MC", "QuestionText": "Pick one"},
		{"QuestionID": "QID2", "QuestionType": "TE", "QuestionText": "Tell us more"},
	}
	fake.Start()
	defer fake.Close()

	c := newTestConnector(t, fake, 3)
	questions, err := c.GetQuestions(context.Background(), "SV_abc")
	if err != nil {
		t.Fatal(err)
	}

	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
	if questions[0].QuestionID != "QID1" || questions[1].QuestionType != "TE" {
		t.Errorf("unexpected questions: %+v", questions)
	}
}

func TestGetQuestionsUsesCache(t *testing.T) {
	fake := sdk.NewSurveyExportServer(0)
	fake.Questions = []map[string]interface{}{
		{"QuestionID": "QID1", "QuestionType": "TE", "QuestionText": "Tell us more"},
	}
	fake.Start()
	defer fake.Close()

	c := newTestConnector(t, fake, 3)
	first, err := c.GetQuestions(context.Background(), "SV_abc")
	if err != nil {
		t.Fatal(err)
	}

	// Server-side changes must not show up while the cache entry is live
	fake.Questions = nil
	second, err := c.GetQuestions(context.Background(), "SV_abc")
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != len(first) || second[0].QuestionID != "QID1" {
		t.Errorf("expected cached questions, got %+v", second)
	}

	if err := c.Disconnect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.questionCache != nil {
		t.Error("expected question cache cleared on disconnect")
	}
}
