package inflight

// ObjectArray is an OBJECT_ARRAY_DUMP record: an array of object
// references, decoded eagerly into element ids (object arrays involved
// in request-body reconstruction — CompositeBytesReference.references —
// are small, so there is no benefit to deferring this the way Instance
// defers field decoding).
type ObjectArray struct {
	id         ObjectId
	classID    ClassId
	elementIDs []ObjectId
}

// ID returns the array's object id.
func (a *ObjectArray) ID() ObjectId { return a.id }

// Len returns the number of elements.
func (a *ObjectArray) Len() int { return len(a.elementIDs) }

// ElementID returns the raw object id of element i, before resolution.
func (a *ObjectArray) ElementID(i int) ObjectId { return a.elementIDs[i] }

// Values resolves every element against p's object table. A null or
// dangling reference resolves to a LocalValue whose IsNull is true,
// mirroring the original implementation's JavaObjectArrayIterator, which
// yields None for any element that isn't a live Instance/Array.
func (a *ObjectArray) Values(p *Profile) []LocalValue {
	out := make([]LocalValue, len(a.elementIDs))
	for i, id := range a.elementIDs {
		out[i] = p.resolveLocal(FieldValue{Type: TypeObject, ref: id})
	}
	return out
}
