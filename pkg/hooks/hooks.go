// Package hooks implements §4.3's Hook Chain Composer: pure ordering logic
// over a folder-hook chain, a file's suite-level hooks, and a test's own
// hooks. It never executes anything itself — pkg/scheduler dispatches the
// composed lists and records their outcomes as isLifecycle TestResults.
package hooks

import "github.com/testsmith-io/testblocks/pkg/model"

// Chain composes one scheduling unit's hook lists, outermost folder to
// innermost, per §4.3. Folders is pre-ordered outermost-first by the
// external file-tree loader (§6).
type Chain struct {
	Folders []model.FolderHooks
	File    model.TestFile
}

// BeforeAll returns folder[0]..folder[n-1].beforeAll, then file.beforeAll.
func (c Chain) BeforeAll() []model.TestStep {
	steps := make([]model.TestStep, 0)
	for _, f := range c.Folders {
		steps = append(steps, f.BeforeAll...)
	}
	return append(steps, c.File.BeforeAll...)
}

// AfterAll returns file.afterAll, then folder[n-1]..folder[0].afterAll —
// the mirror image of BeforeAll, per §4.3.
func (c Chain) AfterAll() []model.TestStep {
	steps := make([]model.TestStep, 0)
	steps = append(steps, c.File.AfterAll...)
	for i := len(c.Folders) - 1; i >= 0; i-- {
		steps = append(steps, c.Folders[i].AfterAll...)
	}
	return steps
}

// BeforeEach returns folder[0]..folder[n-1].beforeEach, file.beforeEach,
// then the test's own beforeEach, for one TestCase.
func (c Chain) BeforeEach(test model.TestCase) []model.TestStep {
	steps := make([]model.TestStep, 0)
	for _, f := range c.Folders {
		steps = append(steps, f.BeforeEach...)
	}
	steps = append(steps, c.File.BeforeEach...)
	return append(steps, test.BeforeEach...)
}

// AfterEach returns the test's own afterEach, file.afterEach, then
// folder[n-1]..folder[0].afterEach — the mirror image of BeforeEach.
func (c Chain) AfterEach(test model.TestCase) []model.TestStep {
	steps := make([]model.TestStep, 0)
	steps = append(steps, test.AfterEach...)
	steps = append(steps, c.File.AfterEach...)
	for i := len(c.Folders) - 1; i >= 0; i-- {
		steps = append(steps, c.Folders[i].AfterEach...)
	}
	return steps
}
