package inflight

import "math"

// FieldValue is a decoded instance or array field, in its raw wire form:
// object references are kept as ObjectId, primitives are kept as their
// exact bit pattern. It is the Go rendering of the original
// implementation's `FieldValue` enum (hprof/field_value.rs) — a closed
// set of variants distinguished by Type rather than a discriminated Rust
// enum, since Go has no sum types.
type FieldValue struct {
	Type  BasicType
	ref   ObjectId
	bits  uint64
}

// ParseFieldValue decodes one value of type t from r, advancing r past
// it. Used for instance field layouts (instance.go's Fields) and for the
// constant-pool and static-field values parseClassDump skips over
// (profile.go). Object array elements do not go through it:
// object_array.go wraps each element id as a TypeObject value directly.
func ParseFieldValue(r *Reader, t BasicType) (FieldValue, error) {
	switch t {
	case TypeObject:
		id, err := r.ReadID()
		if err != nil {
			return FieldValue{}, err
		}
		return FieldValue{Type: t, ref: ObjectId(id)}, nil
	case TypeBoolean, TypeByte:
		b, err := r.ReadU1()
		if err != nil {
			return FieldValue{}, err
		}
		return FieldValue{Type: t, bits: uint64(b)}, nil
	case TypeChar, TypeShort:
		v, err := r.ReadU2()
		if err != nil {
			return FieldValue{}, err
		}
		return FieldValue{Type: t, bits: uint64(v)}, nil
	case TypeFloat, TypeInt:
		v, err := r.ReadU4()
		if err != nil {
			return FieldValue{}, err
		}
		return FieldValue{Type: t, bits: uint64(v)}, nil
	case TypeDouble, TypeLong:
		v, err := r.ReadU8()
		if err != nil {
			return FieldValue{}, err
		}
		return FieldValue{Type: t, bits: v}, nil
	default:
		return FieldValue{}, errFormatf("unknown field type tag %d", t)
	}
}

// ObjectId returns the referenced object id. Only meaningful when
// Type == TypeObject.
func (v FieldValue) ObjectId() ObjectId { return v.ref }

// Bool returns the decoded boolean. Only meaningful when Type == TypeBoolean.
func (v FieldValue) Bool() bool { return v.bits != 0 }

// Byte returns the decoded byte. Only meaningful when Type == TypeByte.
func (v FieldValue) Byte() int8 { return int8(v.bits) }

// Char returns the decoded char. Only meaningful when Type == TypeChar.
func (v FieldValue) Char() uint16 { return uint16(v.bits) }

// Short returns the decoded short. Only meaningful when Type == TypeShort.
func (v FieldValue) Short() int16 { return int16(v.bits) }

// Int returns the decoded int. Only meaningful when Type == TypeInt.
func (v FieldValue) Int() int32 { return int32(v.bits) }

// Long returns the decoded long. Only meaningful when Type == TypeLong.
func (v FieldValue) Long() int64 { return int64(v.bits) }

// Float returns the decoded float. Only meaningful when Type == TypeFloat.
func (v FieldValue) Float() float32 { return math.Float32frombits(uint32(v.bits)) }

// Double returns the decoded double. Only meaningful when Type == TypeDouble.
func (v FieldValue) Double() float64 { return math.Float64frombits(v.bits) }

// LocalValue is a FieldValue resolved against a Profile: object
// references are followed to whichever concrete heap object they point
// at (or left unresolved, for a null or dangling reference). This is the
// Go rendering of the original's `JavaLocalValue` enum.
type LocalValue struct {
	FieldValue
	Instance *Instance
	Array    *ObjectArray
	Prim     *PrimitiveArray
}

// IsNull reports whether an object-typed value resolved to nothing (a
// null reference, or a reference the profile never saw a dump record
// for).
func (v LocalValue) IsNull() bool {
	return v.Type == TypeObject && v.Instance == nil && v.Array == nil && v.Prim == nil
}

// resolveLocal turns a raw FieldValue into a LocalValue by following
// object references against p's object table (via the public Object
// accessor).
func (p *Profile) resolveLocal(fv FieldValue) LocalValue {
	if fv.Type != TypeObject || fv.ref.IsNull() {
		return LocalValue{FieldValue: fv}
	}
	obj, ok := p.Object(fv.ref)
	if !ok {
		return LocalValue{FieldValue: fv}
	}
	switch o := obj.(type) {
	case *Instance:
		return LocalValue{FieldValue: fv, Instance: o}
	case *ObjectArray:
		return LocalValue{FieldValue: fv, Array: o}
	case *PrimitiveArray:
		return LocalValue{FieldValue: fv, Prim: o}
	default:
		return LocalValue{FieldValue: fv}
	}
}
