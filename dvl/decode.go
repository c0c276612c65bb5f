package dvl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/c360/dvlstreams/errors"
)

// VelocityRecordType is the discriminant of velocity records.
const VelocityRecordType = "velocity"

// DecodeErrorKind classifies a decode failure.
type DecodeErrorKind int

const (
	// ErrMalformed means the frame is not a JSON object.
	ErrMalformed DecodeErrorKind = iota
	// ErrInvalidField means a required field is missing or has the wrong type.
	ErrInvalidField
)

func (k DecodeErrorKind) String() string {
	switch k {
	case ErrMalformed:
		return "malformed"
	case ErrInvalidField:
		return "invalid_field"
	default:
		return "unknown"
	}
}

// DecodeError reports why a frame was rejected. Replaying the same frame
// always fails the same way.
type DecodeError struct {
	Kind DecodeErrorKind
	// Field names the offending field for ErrInvalidField, e.g. "vx" or
	// "transducers[2].rssi".
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Kind == ErrInvalidField {
		return fmt.Sprintf("dvl: invalid field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("dvl: malformed frame: %v", e.Err)
}

// Unwrap exposes the matching sentinel so callers can classify with
// errors.IsInvalid and errors.Is.
func (e *DecodeError) Unwrap() []error {
	sentinel := errors.ErrMalformedFrame
	if e.Kind == ErrInvalidField {
		sentinel = errors.ErrInvalidField
	}
	return []error{sentinel, e.Err}
}

func malformed(err error) *DecodeError {
	return &DecodeError{Kind: ErrMalformed, Err: err}
}

func invalidField(field string, format string, args ...any) *DecodeError {
	return &DecodeError{Kind: ErrInvalidField, Field: field, Err: fmt.Errorf(format, args...)}
}

// Decode parses one frame. It returns a *DecodeError for frames that are not
// JSON objects and for velocity records with missing or mistyped fields.
func Decode(frame []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return Record{}, malformed(err)
	}
	if doc == nil {
		return Record{}, malformed(fmt.Errorf("expected object, got null"))
	}
	if dec.More() {
		return Record{}, malformed(fmt.Errorf("trailing data after object"))
	}

	typ, _ := doc["type"].(string)
	if typ != VelocityRecordType {
		return Record{Kind: KindOther, Type: typ}, nil
	}

	report, derr := decodeVelocity(doc)
	if derr != nil {
		return Record{}, derr
	}
	return Record{Kind: KindVelocity, Type: typ, Velocity: report}, nil
}

func decodeVelocity(doc map[string]any) (*VelocityReport, *DecodeError) {
	var r VelocityReport

	f := fields{obj: doc}
	r.Time = f.number("time")
	r.Velocity.X = f.number("vx")
	r.Velocity.Y = f.number("vy")
	r.Velocity.Z = f.number("vz")
	r.FOM = f.number("fom")
	r.Altitude = f.number("altitude")
	r.VelocityValid = f.boolean("velocity_valid")
	r.Status = f.integer("status")
	r.Form = f.str("format")
	if f.err != nil {
		return nil, f.err
	}

	raw, ok := doc["transducers"]
	if !ok || raw == nil {
		return nil, invalidField("transducers", "missing")
	}
	beams, ok := raw.([]any)
	if !ok {
		return nil, invalidField("transducers", "expected array, got %s", jsonType(raw))
	}
	if len(beams) != BeamCount {
		return nil, invalidField("transducers", "expected %d entries, got %d", BeamCount, len(beams))
	}

	for i, b := range beams {
		prefix := fmt.Sprintf("transducers[%d]", i)
		obj, ok := b.(map[string]any)
		if !ok {
			return nil, invalidField(prefix, "expected object, got %s", jsonType(b))
		}
		bf := fields{obj: obj, prefix: prefix + "."}
		r.Beams[i] = Beam{
			ID:       bf.integer("id"),
			Velocity: bf.number("velocity"),
			Distance: bf.number("distance"),
			RSSI:     bf.number("rssi"),
			NSD:      bf.number("nsd"),
			Valid:    bf.boolean("beam_valid"),
		}
		if bf.err != nil {
			return nil, bf.err
		}
	}

	return &r, nil
}

// fields extracts typed values from a decoded object, keeping the first error.
type fields struct {
	obj    map[string]any
	prefix string
	err    *DecodeError
}

func (f *fields) get(name string) (any, bool) {
	if f.err != nil {
		return nil, false
	}
	v, ok := f.obj[name]
	if !ok || v == nil {
		f.err = invalidField(f.prefix+name, "missing")
		return nil, false
	}
	return v, true
}

func (f *fields) number(name string) float64 {
	v, ok := f.get(name)
	if !ok {
		return 0
	}
	n, isNum := v.(json.Number)
	if !isNum {
		f.err = invalidField(f.prefix+name, "expected number, got %s", jsonType(v))
		return 0
	}
	x, err := n.Float64()
	if err != nil {
		f.err = invalidField(f.prefix+name, "%v", err)
		return 0
	}
	return x
}

func (f *fields) integer(name string) int64 {
	v, ok := f.get(name)
	if !ok {
		return 0
	}
	n, isNum := v.(json.Number)
	if !isNum {
		f.err = invalidField(f.prefix+name, "expected integer, got %s", jsonType(v))
		return 0
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	x, err := n.Float64()
	// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive
	if err != nil || x != math.Trunc(x) || x < math.MinInt64 || x >= -math.MinInt64 {
		f.err = invalidField(f.prefix+name, "expected integer, got %s", n.String())
		return 0
	}
	return int64(x)
}

func (f *fields) boolean(name string) bool {
	v, ok := f.get(name)
	if !ok {
		return false
	}
	b, isBool := v.(bool)
	if !isBool {
		f.err = invalidField(f.prefix+name, "expected boolean, got %s", jsonType(v))
		return false
	}
	return b
}

func (f *fields) str(name string) string {
	v, ok := f.get(name)
	if !ok {
		return ""
	}
	s, isStr := v.(string)
	if !isStr {
		f.err = invalidField(f.prefix+name, "expected string, got %s", jsonType(v))
		return ""
	}
	return s
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
