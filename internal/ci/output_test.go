// Copyright (C) 2025 l3montree GmbH
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package ci_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/l3montree-dev/cdfguard/internal/cdf"
	"github.com/l3montree-dev/cdfguard/internal/ci"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOutputs(t *testing.T) {
	t.Run("appends outputs to the CI output file", func(t *testing.T) {
		outputPath := filepath.Join(t.TempDir(), "output")
		require.NoError(t, os.WriteFile(outputPath, []byte("previous=1\n"), 0600))
		t.Setenv("GITHUB_OUTPUT", outputPath)

		report := cdf.Report{Status: cdf.StatusFailed, ErrorCount: 2, FileCount: 5}
		require.NoError(t, ci.WriteOutputs(report))

		content, err := os.ReadFile(outputPath)
		require.NoError(t, err)
		assert.Equal(t, "previous=1\nvalidation_status=failed\nerror_count=2\nfile_count=5\n", string(content))
	})

	t.Run("without a CI output file the report is only logged", func(t *testing.T) {
		t.Setenv("GITHUB_OUTPUT", "")

		report := cdf.Report{Status: cdf.StatusPassed, FileCount: 1}
		assert.NoError(t, ci.WriteOutputs(report))
	})
}
