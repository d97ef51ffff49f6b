// Package report implements §4.9's result aggregation: rolling a flat
// sequence of model.TestResult entries (tests plus lifecycle hook runs)
// into a model.SuiteReport with precedence-ordered counts, generalized
// from the teacher's SecurityReportTool severity/pass-fail summary
// (pkg/core/tools/report.go) from a flat finding list into the
// hierarchical StepResult tree §3 requires.
package report

import "github.com/testsmith-io/testblocks/pkg/model"

// Finalize builds a SuiteReport from the ordered results a scheduling
// unit produced, counting each test result once under its own Status (§4.9).
// Lifecycle entries (isLifecycle=true) count toward the report's Results
// list for visibility but are excluded from Counts — they are hooks, not
// authored tests. A failing beforeAll shows in the tests it skipped; a
// failing afterAll shows only in its own lifecycle entry.
func Finalize(results []model.TestResult) *model.SuiteReport {
	report := &model.SuiteReport{Results: results}
	for _, r := range results {
		if r.IsLifecycle {
			continue
		}
		report.Counts.Add(r.Status)
	}
	return report
}
