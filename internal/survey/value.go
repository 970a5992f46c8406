package survey

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ValueKind tags the variant held by a Value.
type ValueKind string

const (
	KindNone       ValueKind = ""
	KindText       ValueKind = "text"
	KindNumber     ValueKind = "number"
	KindBool       ValueKind = "boolean"
	KindChoices    ValueKind = "choices"
	KindStructured ValueKind = "structured"
)

// Value is a tagged answer value. The zero Value means "no answer".
type Value struct {
	Kind    ValueKind
	Text    string
	Number  float64
	Bool    bool
	Choices []string
	Raw     json.RawMessage
}

func TextValue(s string) Value      { return Value{Kind: KindText, Text: s} }
func NumberValue(n float64) Value   { return Value{Kind: KindNumber, Number: n} }
func BoolValue(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func ChoicesValue(c ...string) Value { return Value{Kind: KindChoices, Choices: c} }

func StructuredValue(raw json.RawMessage) Value {
	return Value{Kind: KindStructured, Raw: raw}
}

// IsZero reports whether no answer is present at all.
func (v Value) IsZero() bool { return v.Kind == KindNone }

// IsEmpty reports whether the value carries no usable answer for
// required-field gating: absent, blank text, or an empty choice list.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case KindNone:
		return true
	case KindText:
		return strings.TrimSpace(v.Text) == ""
	case KindChoices:
		return len(v.Choices) == 0
	case KindStructured:
		return len(v.Raw) == 0
	default:
		return false
	}
}

// Equal compares two values for the flush short-circuit.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNone:
		return true
	case KindText:
		return v.Text == o.Text
	case KindNumber:
		return v.Number == o.Number
	case KindBool:
		return v.Bool == o.Bool
	case KindChoices:
		if len(v.Choices) != len(o.Choices) {
			return false
		}
		for i := range v.Choices {
			if v.Choices[i] != o.Choices[i] {
				return false
			}
		}
		return true
	case KindStructured:
		return bytes.Equal(v.Raw, o.Raw)
	}
	return false
}

// Encode serializes the value payload for the persistence boundary.
// The kind travels alongside the payload as its own column.
func (v Value) Encode() (kind string, payload string, err error) {
	var b []byte
	switch v.Kind {
	case KindText:
		b, err = json.Marshal(v.Text)
	case KindNumber:
		b, err = json.Marshal(v.Number)
	case KindBool:
		b, err = json.Marshal(v.Bool)
	case KindChoices:
		b, err = json.Marshal(v.Choices)
	case KindStructured:
		b = v.Raw
	default:
		return "", "", fmt.Errorf("cannot encode empty answer value")
	}
	if err != nil {
		return "", "", err
	}
	return string(v.Kind), string(b), nil
}

// DecodeValue reconstructs a Value from its persisted kind and payload.
// Unknown kinds and undecodable payloads come back as the zero Value so
// a stale row never breaks a resume; the caller treats them as absent.
func DecodeValue(kind string, payload string) Value {
	data := []byte(payload)
	switch ValueKind(kind) {
	case KindText:
		var s string
		if json.Unmarshal(data, &s) != nil {
			return Value{}
		}
		return TextValue(s)
	case KindNumber:
		var n float64
		if json.Unmarshal(data, &n) != nil {
			return Value{}
		}
		return NumberValue(n)
	case KindBool:
		var b bool
		if json.Unmarshal(data, &b) != nil {
			return Value{}
		}
		return BoolValue(b)
	case KindChoices:
		var c []string
		if json.Unmarshal(data, &c) != nil {
			return Value{}
		}
		return Value{Kind: KindChoices, Choices: c}
	case KindStructured:
		if !json.Valid(data) {
			return Value{}
		}
		return StructuredValue(json.RawMessage(data))
	}
	return Value{}
}

// valueEnvelope is the wire shape used by the HTTP layer.
type valueEnvelope struct {
	Kind    ValueKind       `json:"kind"`
	Text    *string         `json:"text,omitempty"`
	Number  *float64        `json:"number,omitempty"`
	Bool    *bool           `json:"boolean,omitempty"`
	Choices []string        `json:"choices,omitempty"`
	Raw     json.RawMessage `json:"structured,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	env := valueEnvelope{Kind: v.Kind}
	switch v.Kind {
	case KindText:
		env.Text = &v.Text
	case KindNumber:
		env.Number = &v.Number
	case KindBool:
		env.Bool = &v.Bool
	case KindChoices:
		env.Choices = v.Choices
	case KindStructured:
		env.Raw = v.Raw
	}
	return json.Marshal(env)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var env valueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	switch env.Kind {
	case KindNone:
		*v = Value{}
	case KindText:
		if env.Text == nil {
			return fmt.Errorf("text value missing text field")
		}
		*v = TextValue(*env.Text)
	case KindNumber:
		if env.Number == nil {
			return fmt.Errorf("number value missing number field")
		}
		*v = NumberValue(*env.Number)
	case KindBool:
		if env.Bool == nil {
			return fmt.Errorf("boolean value missing boolean field")
		}
		*v = BoolValue(*env.Bool)
	case KindChoices:
		*v = Value{Kind: KindChoices, Choices: env.Choices}
	case KindStructured:
		*v = StructuredValue(env.Raw)
	default:
		return fmt.Errorf("unknown value kind %q", env.Kind)
	}
	return nil
}
