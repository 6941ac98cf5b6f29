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

package cdf

import (
	"fmt"
	"strings"

	"github.com/l3montree-dev/cdfguard/utils"
)

type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Accumulator is the single run-scoped collector of findings and counters.
// The pipeline owns it and threads it through the stages; there is no
// process-wide mutable state.
type Accumulator struct {
	findings  []Finding
	fileCount int
	stages    []string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

func (a *Accumulator) Add(findings ...Finding) {
	a.findings = append(a.findings, findings...)
}

// CountFile records that one declared file entry was processed, regardless of
// its outcome.
func (a *Accumulator) CountFile() {
	a.fileCount++
}

// StageRan records a stage name for the summary. Stages that were skipped
// never show up.
func (a *Accumulator) StageRan(name string) {
	a.stages = append(a.stages, name)
}

func (a *Accumulator) Findings() []Finding {
	return a.findings
}

func (a *Accumulator) ErrorCount() int {
	return len(utils.Filter(a.findings, func(f Finding) bool {
		return f.Severity == SeverityError
	}))
}

func (a *Accumulator) WarningCount() int {
	return len(utils.Filter(a.findings, func(f Finding) bool {
		return f.Severity == SeverityWarning
	}))
}

// Report is the terminal artifact of a validation run.
type Report struct {
	Status     Status    `json:"status"`
	ErrorCount int       `json:"errorCount"`
	FileCount  int       `json:"fileCount"`
	Summary    string    `json:"summary"`
	Findings   []Finding `json:"findings,omitempty"`
}

// Report folds the accumulated findings into the final verdict. The rule is
// deliberately a single one: any error-severity finding anywhere fails the
// run. Warnings never flip the status.
func (a *Accumulator) Report(level ValidationLevel) Report {
	errorCount := a.ErrorCount()

	status := StatusPassed
	if errorCount > 0 {
		status = StatusFailed
	}

	return Report{
		Status:     status,
		ErrorCount: errorCount,
		FileCount:  a.fileCount,
		Summary:    a.summary(level, status, errorCount),
		Findings:   a.findings,
	}
}

func (a *Accumulator) summary(level ValidationLevel, status Status, errorCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CDF validation (level %s) %s: %d file(s) checked, %d error(s), %d warning(s)\n", level, status, a.fileCount, errorCount, a.WarningCount())
	fmt.Fprintf(&b, "checks run: %s", strings.Join(a.stages, ", "))
	return b.String()
}

// SkippedReport is returned when no bundle could be located. It mirrors the
// behaviour of treating an absent bundle as a no-op, not a failure.
func SkippedReport() Report {
	return Report{
		Status:  StatusSkipped,
		Summary: "no CDF bundle found to validate",
	}
}
