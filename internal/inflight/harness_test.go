package inflight

import (
	"bytes"
	"encoding/binary"
)

// hprofBuilder assembles a minimal, valid HPROF byte stream for tests.
// It always uses an 8-byte id size, matching a 64-bit JVM's dumps.
type hprofBuilder struct {
	buf bytes.Buffer
}

func newHprofBuilder() *hprofBuilder {
	b := &hprofBuilder{}
	b.buf.WriteString("JAVA PROFILE 1.0.2")
	b.buf.WriteByte(0)
	_ = binary.Write(&b.buf, binary.BigEndian, uint32(8)) // id size
	_ = binary.Write(&b.buf, binary.BigEndian, uint64(0)) // timestamp
	return b
}

func (b *hprofBuilder) Bytes() []byte { return b.buf.Bytes() }

func (b *hprofBuilder) record(tag RecordTag, body []byte) {
	b.buf.WriteByte(byte(tag))
	_ = binary.Write(&b.buf, binary.BigEndian, uint32(0)) // time delta
	_ = binary.Write(&b.buf, binary.BigEndian, uint32(len(body)))
	b.buf.Write(body)
}

func id8(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

func u4(v uint32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, v)
	return out
}

func u2(v uint16) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, v)
	return out
}

func (b *hprofBuilder) utf8(id uint64, s string) {
	var body bytes.Buffer
	body.Write(id8(id))
	body.WriteString(s)
	b.record(TagString, body.Bytes())
}

func (b *hprofBuilder) loadClass(classObjID, nameID uint64) {
	var body bytes.Buffer
	body.Write(u4(1)) // class serial
	body.Write(id8(classObjID))
	body.Write(u4(0)) // stack trace serial
	body.Write(id8(nameID))
	b.record(TagLoadClass, body.Bytes())
}

type testField struct {
	nameID uint64
	typ    BasicType
}

// classDumpBody renders one CLASS_DUMP sub-record (no constant pool or
// static fields, since no scenario under test needs either).
func classDumpBody(classObjID, superClassObjID uint64, fields []testField) []byte {
	var body bytes.Buffer
	body.WriteByte(byte(HeapTagClassDump))
	body.Write(id8(classObjID))
	body.Write(u4(0)) // stack trace serial
	body.Write(id8(superClassObjID))
	body.Write(id8(0)) // class loader
	body.Write(id8(0)) // signers
	body.Write(id8(0)) // protection domain
	body.Write(id8(0)) // reserved1
	body.Write(id8(0)) // reserved2
	body.Write(u4(0))  // instance size
	body.Write(u2(0))  // constant pool size
	body.Write(u2(0))  // static field count
	body.Write(u2(uint16(len(fields))))
	for _, f := range fields {
		body.Write(id8(f.nameID))
		body.WriteByte(byte(f.typ))
	}
	return body.Bytes()
}

type fieldValueBytes struct {
	typ BasicType
	raw []byte
}

func objectField(id uint64) fieldValueBytes  { return fieldValueBytes{typ: TypeObject, raw: id8(id)} }
func intField(v int32) fieldValueBytes       { return fieldValueBytes{typ: TypeInt, raw: u4(uint32(v))} }
func boolField(v bool) fieldValueBytes {
	b := byte(0)
	if v {
		b = 1
	}
	return fieldValueBytes{typ: TypeBoolean, raw: []byte{b}}
}

// instanceDumpBody renders one INSTANCE_DUMP sub-record. values must be
// given in the class's declared field order (no superclass walk here —
// tests that need inheritance build it across two classDumpBody calls).
func instanceDumpBody(objID, classObjID uint64, values []fieldValueBytes) []byte {
	var fields bytes.Buffer
	for _, v := range values {
		fields.Write(v.raw)
	}

	var body bytes.Buffer
	body.WriteByte(byte(HeapTagInstanceDump))
	body.Write(id8(objID))
	body.Write(u4(0)) // stack trace serial
	body.Write(id8(classObjID))
	body.Write(u4(uint32(fields.Len())))
	body.Write(fields.Bytes())
	return body.Bytes()
}

// primitiveByteArrayDumpBody renders one PRIMITIVE_ARRAY_DUMP sub-record
// of element type byte.
func primitiveByteArrayDumpBody(objID uint64, data []byte) []byte {
	var body bytes.Buffer
	body.WriteByte(byte(HeapTagPrimArrayDump))
	body.Write(id8(objID))
	body.Write(u4(0)) // stack trace serial
	body.Write(u4(uint32(len(data))))
	body.WriteByte(byte(TypeByte))
	body.Write(data)
	return body.Bytes()
}

// objectArrayDumpBody renders one OBJECT_ARRAY_DUMP sub-record. A zero
// element id encodes a null slot.
func objectArrayDumpBody(objID uint64, elementIDs []uint64) []byte {
	var body bytes.Buffer
	body.WriteByte(byte(HeapTagObjectArrayDump))
	body.Write(id8(objID))
	body.Write(u4(0)) // stack trace serial
	body.Write(u4(uint32(len(elementIDs))))
	body.Write(id8(0)) // array class id, unused by reader
	for _, id := range elementIDs {
		body.Write(id8(id))
	}
	return body.Bytes()
}

func (b *hprofBuilder) heapDump(subRecords ...[]byte) {
	var body bytes.Buffer
	for _, s := range subRecords {
		body.Write(s)
	}
	b.record(TagHeapDump, body.Bytes())
}
