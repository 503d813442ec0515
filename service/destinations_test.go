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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyflow/platform/destinations"
)

func TestNewDestinationKnownTypes(t *testing.T) {
	for _, destType := range []string{"s3", "gcs", "azblob", "file"} {
		dest, err := newDestination(destType)
		require.NoError(t, err, "type %s", destType)
		assert.Equal(t, destType, dest.Type())
	}
}

func TestNewDestinationUnknownType(t *testing.T) {
	_, err := newDestination("ftp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ftp")
}

func TestDeliverExportToFile(t *testing.T) {
	setupTestService(t)

	dir := t.TempDir()
	t.Setenv("EXPORT_DIR", dir)

	result, err := deliverExport(context.Background(), "default", "file", &destinations.WriteRequest{
		SurveyID: "SV_abc",
		RunID:    "run-1",
		Table:    sampleExportResult().Table,
	})
	require.NoError(t, err)
	assert.Equal(t, destinations.FormatCSV, result.Format)
	assert.FileExists(t, result.Location)
}

func TestDeliverExportUnknownDestination(t *testing.T) {
	setupTestService(t)

	_, err := deliverExport(context.Background(), "default", "missing", &destinations.WriteRequest{
		SurveyID: "SV_abc",
		RunID:    "run-1",
		Table:    sampleExportResult().Table,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestFindDestinationConfigFromEnv(t *testing.T) {
	setupTestService(t)

	dir := t.TempDir()
	t.Setenv("EXPORT_DIR", dir)
	t.Setenv("EXPORT_FORMAT", "json")

	cfg, err := findDestinationConfig(context.Background(), "default", "file")
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Type)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, dir, cfg.Config["directory"])
}
