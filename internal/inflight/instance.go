package inflight

// Instance is an INSTANCE_DUMP record: an object id, the class it was
// constructed from, and the raw bytes of its declared fields. The field
// bytes are kept verbatim (a borrowed sub-slice of the mapped file)
// rather than decoded eagerly, so Fields can be called repeatedly
// without re-reading the dump, and so instances whose class never gets
// queried cost nothing beyond the slice header.
type Instance struct {
	id      ObjectId
	classID ClassId
	raw     []byte
}

// ID returns the instance's object id.
func (i *Instance) ID() ObjectId { return i.id }

// Class resolves the instance's class.
func (i *Instance) Class(p *Profile) *Class {
	c, _ := p.ClassByID(i.classID)
	return c
}

// NamedField pairs a decoded field with the name it was declared under.
type NamedField struct {
	Name  string
	Value LocalValue
}

// Fields decodes every field of the instance, in its class's full
// superclass-chain layout order (class.go's fieldLayout), resolving
// object references against the profile. An error here means the
// instance's class is not in the profile, or the raw field bytes are
// shorter than the class's declared layout expects — the latter most
// often a sign the class's CLASS_DUMP was itself truncated or skipped.
func (i *Instance) Fields(p *Profile) ([]NamedField, error) {
	class := i.Class(p)
	if class == nil {
		return nil, errFormatf("instance %s references unknown class 0x%08x", i.id, uint64(i.classID))
	}
	layout := class.fieldLayout(p)
	r := NewReader(i.raw)
	r.SetIDSize(p.idSize)

	out := make([]NamedField, 0, len(layout))
	for _, fd := range layout {
		fv, err := ParseFieldValue(r, fd.Type)
		if err != nil {
			return nil, errDecode("failed to decode instance field", err)
		}
		out = append(out, NamedField{
			Name:  p.strings[fd.NameID],
			Value: p.resolveLocal(fv),
		})
	}
	return out, nil
}

// Field looks up a single field by name, as decoded by Fields. The bool
// result is false if the class has no field by that name.
func (i *Instance) Field(p *Profile, name string) (LocalValue, bool) {
	fields, err := i.Fields(p)
	if err != nil {
		return LocalValue{}, false
	}
	for _, f := range fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return LocalValue{}, false
}
