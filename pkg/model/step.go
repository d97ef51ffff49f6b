// Package model defines the document and result types the execution engine
// walks and produces: TestStep/TestCase/TestFile on the way in, StepResult/
// TestResult/SuiteReport on the way out.
package model

import "encoding/json"

// TestStep is a single invocation of a registered block. Params holds
// scalar fields plus nested value-blocks (another TestStep) for "value"
// inputs; Children holds named statement slots (e.g. THEN/ELSE/TRY/CATCH)
// for container blocks. A TestStep is immutable once parsed.
type TestStep struct {
	ID       string                `json:"id"`
	Type     string                `json:"type"`
	Params   map[string]any        `json:"params,omitempty"`
	Children map[string][]TestStep `json:"children,omitempty"`
}

// DataRow is one row of a data-driven test's iteration table.
type DataRow struct {
	Name   string         `json:"name,omitempty"`
	Values map[string]any `json:"values"`
}

// TestCase is one authored test within a TestFile.
type TestCase struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Steps          []TestStep `json:"steps"`
	BeforeEach     []TestStep `json:"beforeEach,omitempty"`
	AfterEach      []TestStep `json:"afterEach,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Disabled       bool       `json:"disabled,omitempty"`
	Data           []DataRow  `json:"data,omitempty"`
	SoftAssertions bool       `json:"softAssertions,omitempty"`
}

// VariableDecl is one entry of a TestFile's variables map.
type VariableDecl struct {
	Default any    `json:"default"`
	Type    string `json:"type,omitempty"`
}

// ProcedureParam is one declared parameter of a ProcedureDefinition.
type ProcedureParam struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"` // string|number|boolean|any
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// ProcedureDefinition is a user-authored reusable step list with typed
// parameters, invoked from a test body as a "custom_<slug>" block.
type ProcedureDefinition struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Params      []ProcedureParam `json:"params,omitempty"`
	Steps       []TestStep       `json:"steps"`
}

// TestFile is the top-level on-disk document: one scheduling unit.
type TestFile struct {
	Version     string                         `json:"version,omitempty"`
	Name        string                         `json:"name"`
	Description string                         `json:"description,omitempty"`
	Variables   map[string]VariableDecl        `json:"variables,omitempty"`
	Procedures  map[string]ProcedureDefinition `json:"procedures,omitempty"`
	BeforeAll   []TestStep                     `json:"beforeAll,omitempty"`
	AfterAll    []TestStep                     `json:"afterAll,omitempty"`
	BeforeEach  []TestStep                     `json:"beforeEach,omitempty"`
	AfterEach   []TestStep                     `json:"afterEach,omitempty"`
	Tests       []TestCase                     `json:"tests"`

	// Extra preserves unknown top-level keys verbatim (§6: "unknown
	// top-level keys are preserved but ignored").
	Extra map[string]json.RawMessage `json:"-"`
}

// FolderHooks is the parsed contents of a "_hooks.<suite-suffix>.json" (or
// .yaml) file discovered by the external file-tree loader. One FolderHooks
// per folder level; the engine receives them pre-ordered outermost-first.
type FolderHooks struct {
	BeforeAll  []TestStep `json:"beforeAll,omitempty"`
	AfterAll   []TestStep `json:"afterAll,omitempty"`
	BeforeEach []TestStep `json:"beforeEach,omitempty"`
	AfterEach  []TestStep `json:"afterEach,omitempty"`
}

// Globals is the optional project-root globals document (§6).
type Globals struct {
	Variables       map[string]VariableDecl        `json:"variables,omitempty"`
	Config          map[string]any                 `json:"config,omitempty"`
	TestIDAttribute string                          `json:"testIdAttribute,omitempty"`
	Snippets        map[string]any                  `json:"snippets,omitempty"`
	Procedures      map[string]ProcedureDefinition `json:"procedures,omitempty"`
}
