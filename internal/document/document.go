// Package document decodes and validates the on-disk documents §6
// describes: a TestFile (JSON, serialized verbatim per §6, or its YAML
// variant), FolderHooks, and the project-root Globals document.
package document

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/blang/semver"
	"gopkg.in/yaml.v3"

	"github.com/testsmith-io/testblocks/pkg/model"
)

// minVersion / maxVersion bound the accepted semver range: any 1.x (§6).
var (
	minVersion = semver.MustParse("1.0.0")
	maxVersion = semver.MustParse("2.0.0")
)

// DecodeTestFile parses raw as a TestFile. YAML documents are detected by
// not starting with '{' after whitespace trim — the same sniff the
// teacher's own config loader uses for its dual JSON/YAML request files.
func DecodeTestFile(raw []byte) (*model.TestFile, error) {
	var tf model.TestFile
	if looksLikeYAML(raw) {
		if err := yaml.Unmarshal(raw, &tf); err != nil {
			return nil, fmt.Errorf("document: invalid YAML test file: %w", err)
		}
	} else if err := json.Unmarshal(raw, &tf); err != nil {
		return nil, fmt.Errorf("document: invalid JSON test file: %w", err)
	}

	if err := validateVersion(tf.Version); err != nil {
		return nil, err
	}
	return &tf, nil
}

// DecodeFolderHooks parses raw as a FolderHooks document (§6's
// "_hooks.<suite-suffix>.json" or its YAML equivalent).
func DecodeFolderHooks(raw []byte) (*model.FolderHooks, error) {
	var fh model.FolderHooks
	if looksLikeYAML(raw) {
		if err := yaml.Unmarshal(raw, &fh); err != nil {
			return nil, fmt.Errorf("document: invalid YAML folder hooks: %w", err)
		}
		return &fh, nil
	}
	if err := json.Unmarshal(raw, &fh); err != nil {
		return nil, fmt.Errorf("document: invalid JSON folder hooks: %w", err)
	}
	return &fh, nil
}

// DecodeGlobals parses raw as the project-root Globals document (§6).
func DecodeGlobals(raw []byte) (*model.Globals, error) {
	var g model.Globals
	if looksLikeYAML(raw) {
		if err := yaml.Unmarshal(raw, &g); err != nil {
			return nil, fmt.Errorf("document: invalid YAML globals: %w", err)
		}
		return &g, nil
	}
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("document: invalid JSON globals: %w", err)
	}
	return &g, nil
}

func looksLikeYAML(raw []byte) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed[0] != '{'
}

// validateVersion accepts any 1.x per §6; an empty version is treated as
// unspecified and allowed (older authored files predate the field).
func validateVersion(v string) error {
	if v == "" {
		return nil
	}
	parsed, err := semver.Parse(v)
	if err != nil {
		return fmt.Errorf("document: invalid version %q: %w", v, err)
	}
	if parsed.LT(minVersion) || parsed.GTE(maxVersion) {
		return fmt.Errorf("document: unsupported test file version %q (expected 1.x)", v)
	}
	return nil
}
