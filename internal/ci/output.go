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

// Package ci persists the validation report for the surrounding CI job.
package ci

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/l3montree-dev/cdfguard/internal/cdf"
	"github.com/pkg/errors"
)

// outputEnvVar names the file GitHub Actions reads step outputs from.
const outputEnvVar = "GITHUB_OUTPUT"

// WriteOutputs appends the report's status and counters to the CI output
// file. Outside of a CI job the values are logged instead, so the report is
// never silently lost.
func WriteOutputs(report cdf.Report) error {
	lines := fmt.Sprintf("validation_status=%s\nerror_count=%d\nfile_count=%d\n", report.Status, report.ErrorCount, report.FileCount)

	outputPath := os.Getenv(outputEnvVar)
	if outputPath == "" {
		slog.Info("validation outputs", "status", report.Status, "errorCount", report.ErrorCount, "fileCount", report.FileCount)
		return nil
	}

	file, err := os.OpenFile(outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return errors.Wrap(err, "could not open CI output file")
	}
	defer file.Close()

	if _, err := file.WriteString(lines); err != nil {
		return errors.Wrap(err, "could not write CI outputs")
	}

	return nil
}
