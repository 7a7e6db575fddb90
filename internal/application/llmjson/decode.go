package llmjson

import (
	"encoding/json"

	"github.com/cookwise/v1/pkg/errors"
)

// Decode extracts the first JSON value from text and unmarshals it into out,
// which must be a pointer. Combines Extract with a typed decode so callers
// do not hand-walk map[string]any.
func Decode(text string, out any) error {
	v, err := Extract(text)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.NewMalformedOutputError("re-encode failed: " + err.Error())
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.NewMalformedOutputError("decode into target failed: " + err.Error())
	}
	return nil
}
