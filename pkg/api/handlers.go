package api

import (
	"encoding/json"
	"net/http"

	"github.com/testsmith-io/testblocks/internal/document"
	"github.com/testsmith-io/testblocks/pkg/engine"
	"github.com/testsmith-io/testblocks/pkg/model"
)

type handlers struct {
	engine *engine.Engine
}

// writeJSON serializes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError sends a {"error": msg} JSON response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// runRequestDTO is the wire shape of §6's "Run request": {testFile,
// folderHooks?, globals?, options}. TestFile is decoded as raw JSON first
// so internal/document can apply its version validation/YAML sniff the
// same way the CLI driver does for a file on disk.
type runRequestDTO struct {
	TestFile    json.RawMessage    `json:"testFile"`
	FolderHooks []model.FolderHooks `json:"folderHooks,omitempty"`
	Globals     *model.Globals     `json:"globals,omitempty"`
	Options     struct {
		Headless        bool    `json:"headless"`
		WebTimeoutMs    int     `json:"webTimeoutMs"`
		RecursionDepth  int     `json:"recursionDepth"`
		TestIDAttribute string  `json:"testIdAttribute"`
		RateLimitPerSec float64 `json:"rateLimitPerSec"`
	} `json:"options"`
}

// postRun implements POST /run: the host→engine contract of §6. A
// malformed document is a schema error (§7) surfaced as 400 before any
// test executes; a well-formed run always responds 200 with the
// SuiteReport, whatever its internal pass/fail outcome — that status is a
// business outcome of the run, not an HTTP-level failure.
func (h *handlers) postRun(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var dto runRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "malformed run request: "+err.Error())
		return
	}

	testFile, err := document.DecodeTestFile(dto.TestFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := engine.RunRequest{
		TestFile:        *testFile,
		FolderHooks:     dto.FolderHooks,
		Globals:         dto.Globals,
		Headless:        dto.Options.Headless,
		WebTimeoutMs:    dto.Options.WebTimeoutMs,
		RecursionDepth:  dto.Options.RecursionDepth,
		TestIDAttribute: dto.Options.TestIDAttribute,
		RateLimitPerSec: dto.Options.RateLimitPerSec,
	}

	report := h.engine.Run(r.Context(), req)
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) getHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
