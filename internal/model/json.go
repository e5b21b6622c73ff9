package model

import "encoding/json"

// MarshalPretty renders v as two-space indented JSON with a trailing
// newline, the on-disk format shared by every artifact in the workspace.
func MarshalPretty(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
