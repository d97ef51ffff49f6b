package model

import "time"

// Status is the outcome of a step or test. Worse outcomes sort later in
// precedence: error > failed > skipped > passed (§4.9).
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// precedence ranks statuses for the "worst wins" rollup rule; higher wins.
var precedence = map[Status]int{
	StatusPassed:  0,
	StatusSkipped: 1,
	StatusFailed:  2,
	StatusError:   3,
}

// Worse returns the statelessly-worse of a and b by §4.9's precedence order.
func Worse(a, b Status) Status {
	if precedence[b] > precedence[a] {
		return b
	}
	return a
}

// StepError is the structured error payload attached to a failed/errored step.
type StepError struct {
	Message   string `json:"message"`
	Expected  any    `json:"expected,omitempty"`
	Actual    any    `json:"actual,omitempty"`
	StepType  string `json:"stepType,omitempty"`
}

// SoftAssertionError is one accumulated soft-assertion failure (§3).
type SoftAssertionError struct {
	Message   string    `json:"message"`
	StepType  string    `json:"stepType,omitempty"`
	Expected  any       `json:"expected,omitempty"`
	Actual    any       `json:"actual,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StepResult is the outcome of dispatching one TestStep.
type StepResult struct {
	StepID             string               `json:"stepId"`
	Type               string               `json:"type"`
	Status             Status               `json:"status"`
	StartedAt          time.Time            `json:"startedAt"`
	FinishedAt         time.Time            `json:"finishedAt"`
	DurationMs         int64                `json:"durationMs"`
	Summary            string               `json:"summary,omitempty"`
	Output             any                  `json:"output,omitempty"`
	Error              *StepError           `json:"error,omitempty"`
	Children           []StepResult         `json:"children,omitempty"`
	SoftAssertionErrors []SoftAssertionError `json:"softAssertionErrors,omitempty"`
}

// Iteration describes which data-driven row produced a TestResult.
type Iteration struct {
	Index  int            `json:"index"`
	Name   string         `json:"name,omitempty"`
	Values map[string]any `json:"values,omitempty"`
}

// TestResult is the outcome of running one TestCase (or one data-row
// iteration of it), or one lifecycle hook run surfaced as a report entry.
type TestResult struct {
	TestID         string       `json:"testId"`
	TestName       string       `json:"testName"`
	Status         Status       `json:"status"`
	StartedAt      time.Time    `json:"startedAt"`
	FinishedAt     time.Time    `json:"finishedAt"`
	DurationMs     int64        `json:"durationMs"`
	Steps          []StepResult `json:"steps,omitempty"`
	Iteration      *Iteration   `json:"iteration,omitempty"`
	IsLifecycle    bool         `json:"isLifecycle,omitempty"`
	LifecycleType  string       `json:"lifecycleType,omitempty"`
	Error          string       `json:"error,omitempty"`
	FileName       string       `json:"fileName,omitempty"`
	SoftAssertionErrors []SoftAssertionError `json:"softAssertionErrors,omitempty"`
}

// Counts is the roll-up tally carried on a SuiteReport.
type Counts struct {
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Error   int `json:"error"`
	Skipped int `json:"skipped"`
}

// SuiteReport is the engine's final, typed output for one scheduling unit.
type SuiteReport struct {
	Results []TestResult `json:"results"`
	Counts  Counts       `json:"counts"`
}

// Add folds one TestResult's status into the rollup counts.
func (c *Counts) Add(status Status) {
	switch status {
	case StatusPassed:
		c.Passed++
	case StatusFailed:
		c.Failed++
	case StatusError:
		c.Error++
	case StatusSkipped:
		c.Skipped++
	}
}
