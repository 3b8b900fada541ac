package inflight

import "math"

// PrimitiveArray is a PRIMITIVE_ARRAY_DUMP record. Unlike the teacher
// repo's heap analyzer (which discards primitive array payloads outright
// — they only matter there for size accounting), this package keeps the
// raw element bytes verbatim: a `byte[]` primitive array is exactly what
// Netty buffers request bodies into, and byte retention is this tool's
// entire purpose.
type PrimitiveArray struct {
	id      ObjectId
	elemType BasicType
	raw     []byte // idSize-agnostic: elemType's own width times count
}

// ID returns the array's object id.
func (a *PrimitiveArray) ID() ObjectId { return a.id }

// ValueType returns the Java source name of the element type (e.g. "byte").
func (a *PrimitiveArray) ValueType() string { return a.elemType.JavaName() }

// Len returns the number of elements.
func (a *PrimitiveArray) Len() int {
	size := a.elemType.Size(8)
	if size == 0 {
		return 0
	}
	return len(a.raw) / size
}

// Bytes returns the raw element bytes as a Go (unsigned) byte slice,
// without copying; Values decodes the same bytes as signed int8. It is only
// meaningful when ValueType is "byte" — the only element type request-
// body reconstruction (query.go) ever needs — and returns an error
// otherwise.
func (a *PrimitiveArray) Bytes() ([]byte, error) {
	if a.elemType != TypeByte {
		return nil, errFormatf("primitive array is not a byte[] (element type %s)", a.elemType.JavaName())
	}
	return a.raw, nil
}

// PrimitiveValues is the fully typed decode of a primitive array, one
// populated field per BasicType variant. It mirrors the original
// implementation's PrimitiveArrayValues enum.
type PrimitiveValues struct {
	Type      BasicType
	Booleans  []bool
	Chars     []uint16
	Floats    []float32
	Doubles   []float64
	Bytes     []int8
	Shorts    []int16
	Ints      []int32
	Longs     []int64
}

// Values fully decodes the array into its typed Go slice representation.
func (a *PrimitiveArray) Values() (PrimitiveValues, error) {
	r := NewReader(a.raw)
	n := a.Len()
	out := PrimitiveValues{Type: a.elemType}
	for idx := 0; idx < n; idx++ {
		switch a.elemType {
		case TypeBoolean:
			b, err := r.ReadU1()
			if err != nil {
				return out, errDecode("failed to decode boolean element", err)
			}
			out.Booleans = append(out.Booleans, b != 0)
		case TypeChar:
			v, err := r.ReadU2()
			if err != nil {
				return out, errDecode("failed to decode char element", err)
			}
			out.Chars = append(out.Chars, v)
		case TypeFloat:
			v, err := r.ReadU4()
			if err != nil {
				return out, errDecode("failed to decode float element", err)
			}
			out.Floats = append(out.Floats, math.Float32frombits(v))
		case TypeDouble:
			v, err := r.ReadU8()
			if err != nil {
				return out, errDecode("failed to decode double element", err)
			}
			out.Doubles = append(out.Doubles, math.Float64frombits(v))
		case TypeByte:
			b, err := r.ReadU1()
			if err != nil {
				return out, errDecode("failed to decode byte element", err)
			}
			out.Bytes = append(out.Bytes, int8(b))
		case TypeShort:
			v, err := r.ReadU2()
			if err != nil {
				return out, errDecode("failed to decode short element", err)
			}
			out.Shorts = append(out.Shorts, int16(v))
		case TypeInt:
			v, err := r.ReadU4()
			if err != nil {
				return out, errDecode("failed to decode int element", err)
			}
			out.Ints = append(out.Ints, int32(v))
		case TypeLong:
			v, err := r.ReadU8()
			if err != nil {
				return out, errDecode("failed to decode long element", err)
			}
			out.Longs = append(out.Longs, int64(v))
		default:
			return out, errFormatf("unknown primitive array element type %d", a.elemType)
		}
	}
	return out, nil
}
