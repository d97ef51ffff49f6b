package model

import "encoding/json"

// knownTestFileKeys mirrors the json tags on TestFile's declared fields so
// UnmarshalJSON can split out everything else into Extra.
var knownTestFileKeys = map[string]bool{
	"version": true, "name": true, "description": true, "variables": true,
	"procedures": true, "beforeAll": true, "afterAll": true,
	"beforeEach": true, "afterEach": true, "tests": true,
}

// UnmarshalJSON decodes a TestFile while preserving unrecognized top-level
// keys in Extra, per §6: "Unknown top-level keys are preserved but ignored."
func (f *TestFile) UnmarshalJSON(data []byte) error {
	type alias TestFile
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = TestFile(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !knownTestFileKeys[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		f.Extra = extra
	}
	return nil
}

// MarshalJSON re-emits the declared fields plus any preserved Extra keys.
func (f TestFile) MarshalJSON() ([]byte, error) {
	type alias TestFile
	base, err := json.Marshal(alias(f))
	if err != nil {
		return nil, err
	}
	if len(f.Extra) == 0 {
		return base, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range f.Extra {
		merged[k] = v
	}
	return json.Marshal(merged)
}
