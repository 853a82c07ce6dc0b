package forms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindText
	KindNumber
	KindBool
	KindList
)

// Value is a single answer: text, number, boolean or a list of texts.
type Value struct {
	kind Kind
	text string
	num  float64
	b    bool
	list []string
}

func Text(s string) Value { return Value{kind: KindText, text: s} }

func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func List(items ...string) Value {
	return Value{kind: KindList, list: append([]string{}, items...)}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) AsText() (string, bool) { return v.text, v.kind == KindText }

func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsList() ([]string, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return append([]string(nil), v.list...), true
}

// IsEmpty reports a missing answer: no value, blank text or an empty list.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindNone:
		return true
	case KindText:
		return strings.TrimSpace(v.text) == ""
	case KindList:
		return len(v.list) == 0
	case KindNumber, KindBool:
		return false
	}
	return true
}

// String renders the value for display and reports.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		if v.b {
			return "Sí"
		}
		return "No"
	case KindList:
		return strings.Join(v.list, ", ")
	case KindNone:
		return ""
	}
	return ""
}

// Equal compares kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	case KindNone:
		return true
	}
	return false
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(v.text)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindNone:
		return []byte("null"), nil
	}
	return nil, fmt.Errorf("invalid value kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = Value{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Text(s)
	case 't', 'f':
		var x bool
		if err := json.Unmarshal(b, &x); err != nil {
			return err
		}
		*v = Bool(x)
	case '[':
		var items []string
		if err := json.Unmarshal(b, &items); err != nil {
			return fmt.Errorf("list answers must contain only strings")
		}
		*v = List(items...)
	default:
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("unsupported answer %s", b)
		}
		*v = Number(f)
	}
	return nil
}

// Answer keys scores read for the patient's age and gender. Forms may ask
// for them; otherwise the consultation's basic data fills them in.
const (
	KeyAge    = "edad"
	KeyGender = "sexo"
)

// AnswerMap holds a form's answers keyed by field name.
type AnswerMap map[string]Value

// Set stores v under name; an empty value removes the key.
func (a AnswerMap) Set(name string, v Value) {
	if v.kind == KindNone {
		delete(a, name)
		return
	}
	a[name] = v
}

func (a AnswerMap) Get(name string) (Value, bool) {
	v, ok := a[name]
	return v, ok
}

// Number implements calc.Answers. Text answers are parsed, accepting a
// decimal comma.
func (a AnswerMap) Number(key string) (float64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindText:
		s := strings.ReplaceAll(strings.TrimSpace(v.text), ",", ".")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindList, KindNone:
		return 0, false
	}
	return 0, false
}

// Text implements calc.Answers. Booleans render as "true"/"false".
func (a AnswerMap) Text(key string) (string, bool) {
	v, ok := a[key]
	if !ok || v.IsEmpty() {
		return "", false
	}
	if v.kind == KindBool {
		return strconv.FormatBool(v.b), true
	}
	return v.String(), true
}

func (a AnswerMap) Clone() AnswerMap {
	out := make(AnswerMap, len(a))
	for k, v := range a {
		if v.kind == KindList {
			v.list = append([]string(nil), v.list...)
		}
		out[k] = v
	}
	return out
}

// Keys returns the answered keys in sorted order.
func (a AnswerMap) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ConditionHolds reports whether the answer for c.Field is a text value
// exactly equal to c.Value. A nil condition always holds.
func (a AnswerMap) ConditionHolds(c *Condition) bool {
	if c == nil {
		return true
	}
	v, ok := a[c.Field]
	if !ok {
		return false
	}
	s, isText := v.AsText()
	return isText && s == c.Value
}
