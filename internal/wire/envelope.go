package wire

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Envelope is the generic wire dictionary every message carries: an Action
// on requests (replies carry Success and, on failure, Error instead),
// optionally a Lamport LogicalTime, and the action-specific fields
// (spec section 6.1).
//
// Decode keeps the action-specific fields internally and does not populate
// the exported Fields member; callers decode them into typed request
// records via Bind and test for them with Has.
type Envelope struct {
	Action       Action          `json:"action"`
	LogicalTime  uint64          `json:"logicalTime,omitempty"`
	Success      *bool           `json:"success,omitempty"`
	Error        string          `json:"error,omitempty"`
	Fields       json.RawMessage `json:"-"`
	raw          map[string]json.RawMessage
}

// Decode parses a raw frame into an Envelope, keeping the remaining
// action-specific fields available for Bind.
func Decode(data []byte) (*Envelope, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	env := &Envelope{raw: raw}
	if v, ok := raw["action"]; ok {
		if err := json.Unmarshal(v, &env.Action); err != nil {
			return nil, errors.Wrap(err, "decode action")
		}
	} else if _, isReply := raw["success"]; !isReply {
		// Replies built by Reply carry success instead of an action.
		return nil, errors.New("missing action field")
	}
	if v, ok := raw["logicalTime"]; ok {
		_ = json.Unmarshal(v, &env.LogicalTime)
	}
	if v, ok := raw["success"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			env.Success = &b
		}
	}
	if v, ok := raw["error"]; ok {
		_ = json.Unmarshal(v, &env.Error)
	}
	return env, nil
}

// Bind decodes the field named key into dst. It is how handlers recover
// the typed request record carried under the envelope's dynamic payload.
func (e *Envelope) Bind(key string, dst interface{}) error {
	v, ok := e.raw[key]
	if !ok {
		return errors.Errorf("missing field %q", key)
	}
	return json.Unmarshal(v, dst)
}

// Has reports whether the envelope carries field key.
func (e *Envelope) Has(key string) bool {
	_, ok := e.raw[key]
	return ok
}

// Reply builds a success/failure reply envelope merging the given fields.
func Reply(success bool, errMsg string, logicalTime uint64, fields map[string]interface{}) ([]byte, error) {
	out := map[string]interface{}{
		"success":     success,
		"logicalTime": logicalTime,
	}
	if errMsg != "" {
		out["error"] = errMsg
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

// Request builds an outbound request envelope, merging the given fields
// with the mandatory action and logicalTime.
func Request(action Action, logicalTime uint64, fields map[string]interface{}) ([]byte, error) {
	out := map[string]interface{}{
		"action":      action,
		"logicalTime": logicalTime,
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}
