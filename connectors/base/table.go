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

package base

// ColumnRename maps a raw field key to a human-readable display label.
// Renames derived from question metadata are ordered, so they are carried
// as a slice of pairs rather than a map.
type ColumnRename struct {
	Field string `json:"field"`
	Label string `json:"label"`
}

// ResultTable is a rectangular table with a stable column set. Every row has
// exactly len(Columns) cells; cells for field keys absent from the underlying
// record hold nil.
type ResultTable struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// NewResultTable creates an empty table with the given column set
func NewResultTable(columns []string) *ResultTable {
	return &ResultTable{
		Columns: columns,
		Rows:    make([][]interface{}, 0),
	}
}

// ColumnIndex returns the position of the named column, or -1 if absent
func (t *ResultTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// AppendRow adds a row. Rows shorter than the column set are padded with nil;
// extra cells are dropped so the table stays rectangular.
func (t *ResultTable) AppendRow(row []interface{}) {
	if len(row) < len(t.Columns) {
		padded := make([]interface{}, len(t.Columns))
		copy(padded, row)
		row = padded
	} else if len(row) > len(t.Columns) {
		row = row[:len(t.Columns)]
	}
	t.Rows = append(t.Rows, row)
}

// ApplyRenames substitutes column identifiers in place. All field keys are
// resolved against the original column set before any label is written, so
// a label that collides with another rename's field key is never renamed
// again. Renames whose field key is not a present column are silently
// ignored; column order and cell values are never touched.
func (t *ResultTable) ApplyRenames(renames []ColumnRename) {
	indices := make([]int, len(renames))
	for i, r := range renames {
		indices[i] = t.ColumnIndex(r.Field)
	}
	for i, r := range renames {
		if indices[i] >= 0 {
			t.Columns[indices[i]] = r.Label
		}
	}
}

// Cell returns the value at (row, column name), and whether the column exists
func (t *ResultTable) Cell(row int, column string) (interface{}, bool) {
	idx := t.ColumnIndex(column)
	if idx < 0 || row < 0 || row >= len(t.Rows) {
		return nil, false
	}
	return t.Rows[row][idx], true
}
