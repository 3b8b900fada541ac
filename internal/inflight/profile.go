package inflight

import (
	"github.com/oom-forensics/hprof-inflight/pkg/collections"
	"github.com/oom-forensics/hprof-inflight/pkg/utils"
)

// Profile is a fully scanned HPROF heap dump: every string, loaded
// class, class layout, and heap object the dump records, indexed for
// random-access lookup. It borrows its backing bytes from a MappedFile
// for its entire lifetime.
type Profile struct {
	Header *Header
	idSize int

	strings     map[StringId]string
	loadClasses map[ClassId]StringId // class obj id -> class name string id
	classes     map[ClassId]*Class
	objects     map[ObjectId]interface{} // *Instance | *ObjectArray | *PrimitiveArray

	classInstances map[ClassId][]ObjectId

	// arrival assigns each discovered object a dense, monotonically
	// increasing index in encounter order. query.go uses this to size a
	// collections.Bitset for composite-fragment cycle detection instead
	// of a map keyed by the much sparser 64-bit ObjectId space.
	arrival    map[ObjectId]int
	nextDense  int

	logger utils.Logger
}

// Load performs a single linear scan over an HPROF byte stream, indexing
// every string, loaded class, class layout and heap object it finds.
// This mirrors the original implementation's JavaProfile::process (one
// pass over hprof.records_iter(), dispatching on the top-level record
// tag) and the teacher's own parser.go record loop; unlike both, it
// retains every field's raw bytes rather than discarding them, since
// byte retention is this tool's whole purpose.
//
// A malformed top-level record is logged and skipped whole (§4.7): its
// declared body length is trusted to resync the stream at the next
// record boundary. A malformed sub-record inside a HEAP_DUMP is not
// always recoverable this way, since most heap-dump sub-record shapes
// carry no explicit length prefix — see parseHeapDumpBody.
func Load(data []byte, logger utils.Logger) (*Profile, error) {
	if logger == nil {
		logger = &utils.NullLogger{}
	}

	r := NewReader(data)
	header, err := r.ReadHeader()
	if err != nil {
		return nil, errFormat("failed to read hprof header", err)
	}

	p := &Profile{
		Header:         header,
		idSize:         header.IDSize,
		strings:        make(map[StringId]string),
		loadClasses:    make(map[ClassId]StringId),
		classes:        make(map[ClassId]*Class),
		objects:        make(map[ObjectId]interface{}),
		classInstances: make(map[ClassId][]ObjectId),
		arrival:        make(map[ObjectId]int),
		logger:         logger,
	}

	for r.Len() > 0 {
		recordStart := r.Pos()
		tag, _, length, err := r.ReadRecordHeader()
		if err != nil {
			return nil, errFormat("failed to read record header", err)
		}

		body, err := r.ReadBytes(int(length))
		if err != nil {
			logger.Warn("truncated record body, stopping scan", "offset", recordStart, "tag", tag)
			break
		}

		br := NewReader(body)
		br.SetIDSize(p.idSize)

		if perr := p.parseRecord(tag, br); perr != nil {
			logger.Warn("skipping malformed record", "offset", recordStart, "tag", tag, "error", perr)
		}
	}

	return p, nil
}

func (p *Profile) parseRecord(tag RecordTag, r *Reader) error {
	switch tag {
	case TagString:
		return p.parseStringRecord(r)
	case TagLoadClass:
		return p.parseLoadClassRecord(r)
	case TagHeapDump, TagHeapDumpSegment:
		p.parseHeapDumpBody(r)
		return nil
	default:
		return nil
	}
}

// parseStringRecord handles a UTF8 record: {id, remaining bytes as UTF-8}.
func (p *Profile) parseStringRecord(r *Reader) error {
	id, err := r.ReadID()
	if err != nil {
		return err
	}
	rest, err := r.ReadBytes(r.Len())
	if err != nil {
		return err
	}
	p.strings[StringId(id)] = string(rest)
	return nil
}

// parseLoadClassRecord handles a LOAD_CLASS record: {u4 class serial,
// id classObjId, u4 stack trace serial, id classNameStringId}.
func (p *Profile) parseLoadClassRecord(r *Reader) error {
	if _, err := r.ReadU4(); err != nil {
		return err
	}
	classObjID, err := r.ReadID()
	if err != nil {
		return err
	}
	if _, err := r.ReadU4(); err != nil {
		return err
	}
	nameID, err := r.ReadID()
	if err != nil {
		return err
	}
	p.loadClasses[ClassId(classObjID)] = StringId(nameID)
	return nil
}

// parseHeapDumpBody iterates the sub-records of a HEAP_DUMP or
// HEAP_DUMP_SEGMENT record. Standard sub-record shapes (GC roots, class,
// instance, and array dumps) have a deterministic size computed from
// their own fields, so a malformed one can't be skipped without
// misreading everything after it: once decoding a sub-record fails, or
// an unrecognized tag is seen, the rest of this heap-dump record is
// abandoned and the scan resumes at the next top-level record.
func (p *Profile) parseHeapDumpBody(r *Reader) {
	for r.Len() > 0 {
		tagByte, err := r.ReadU1()
		if err != nil {
			return
		}
		tag := HeapDumpTag(tagByte)

		var perr error
		switch tag {
		case HeapTagRootUnknown, HeapTagRootStickyClass, HeapTagRootMonitorUsed:
			_, perr = r.ReadID()
		case HeapTagRootJNIGlobal:
			if _, perr = r.ReadID(); perr == nil {
				_, perr = r.ReadID()
			}
		case HeapTagRootJNILocal, HeapTagRootJavaFrame:
			if _, perr = r.ReadID(); perr == nil {
				if _, perr = r.ReadU4(); perr == nil {
					_, perr = r.ReadU4()
				}
			}
		case HeapTagRootNativeStack, HeapTagRootThreadBlock:
			if _, perr = r.ReadID(); perr == nil {
				_, perr = r.ReadU4()
			}
		case HeapTagRootThreadObject:
			if _, perr = r.ReadID(); perr == nil {
				if _, perr = r.ReadU4(); perr == nil {
					_, perr = r.ReadU4()
				}
			}
		case HeapTagClassDump:
			perr = p.parseClassDump(r)
		case HeapTagInstanceDump:
			perr = p.parseInstanceDump(r)
		case HeapTagObjectArrayDump:
			perr = p.parseObjectArrayDump(r)
		case HeapTagPrimArrayDump:
			perr = p.parsePrimitiveArrayDump(r)
		default:
			p.logger.Warn("unrecognized heap-dump sub-record tag, abandoning record", "tag", tagByte)
			return
		}
		if perr != nil {
			p.logger.Warn("malformed heap-dump sub-record, abandoning record", "tag", tagByte, "error", perr)
			return
		}
	}
}

// parseClassDump decodes a CLASS_DUMP sub-record in full, including its
// constant pool and static fields (skipped over, not retained — no
// in-flight request state lives in statics) and its instance field
// descriptors (retained, in declaration order, as the class's ownFields).
func (p *Profile) parseClassDump(r *Reader) error {
	classObjID, err := r.ReadID()
	if err != nil {
		return err
	}
	if _, err := r.ReadU4(); err != nil { // stack trace serial
		return err
	}
	superClassObjID, err := r.ReadID()
	if err != nil {
		return err
	}
	for i := 0; i < 4; i++ { // class loader, signers, protection domain, reserved1
		if _, err := r.ReadID(); err != nil {
			return err
		}
	}
	if p.idSize == 4 {
		if _, err := r.ReadU4(); err != nil { // reserved2 (4-byte id dumps still reserve a full word)
			return err
		}
	} else if _, err := r.ReadID(); err != nil {
		return err
	}
	if _, err := r.ReadU4(); err != nil { // instance size in bytes
		return err
	}

	constPoolSize, err := r.ReadU2()
	if err != nil {
		return err
	}
	for i := 0; i < int(constPoolSize); i++ {
		if _, err := r.ReadU2(); err != nil { // constant pool index
			return err
		}
		t, err := r.ReadU1()
		if err != nil {
			return err
		}
		if _, err := ParseFieldValue(r, BasicType(t)); err != nil {
			return err
		}
	}

	numStatics, err := r.ReadU2()
	if err != nil {
		return err
	}
	for i := 0; i < int(numStatics); i++ {
		if _, err := r.ReadID(); err != nil { // name string id
			return err
		}
		t, err := r.ReadU1()
		if err != nil {
			return err
		}
		if _, err := ParseFieldValue(r, BasicType(t)); err != nil {
			return err
		}
	}

	numInstanceFields, err := r.ReadU2()
	if err != nil {
		return err
	}
	fields := make([]fieldDescriptor, 0, numInstanceFields)
	for i := 0; i < int(numInstanceFields); i++ {
		nameID, err := r.ReadID()
		if err != nil {
			return err
		}
		t, err := r.ReadU1()
		if err != nil {
			return err
		}
		fields = append(fields, fieldDescriptor{NameID: StringId(nameID), Type: BasicType(t)})
	}

	p.classes[ClassId(classObjID)] = &Class{
		id:        ClassId(classObjID),
		superID:   ClassId(superClassObjID),
		ownFields: fields,
	}
	return nil
}

// parseInstanceDump decodes an INSTANCE_DUMP sub-record, retaining its
// raw field bytes verbatim for later decoding against its class's full
// field layout (Instance.Fields).
func (p *Profile) parseInstanceDump(r *Reader) error {
	objID, err := r.ReadID()
	if err != nil {
		return err
	}
	if _, err := r.ReadU4(); err != nil { // stack trace serial
		return err
	}
	classObjID, err := r.ReadID()
	if err != nil {
		return err
	}
	numBytes, err := r.ReadU4()
	if err != nil {
		return err
	}
	raw, err := r.ReadBytes(int(numBytes))
	if err != nil {
		return err
	}

	inst := &Instance{id: ObjectId(objID), classID: ClassId(classObjID), raw: raw}
	p.registerObject(inst.id, inst)
	p.classInstances[inst.classID] = append(p.classInstances[inst.classID], inst.id)
	return nil
}

// parseObjectArrayDump decodes an OBJECT_ARRAY_DUMP sub-record.
func (p *Profile) parseObjectArrayDump(r *Reader) error {
	objID, err := r.ReadID()
	if err != nil {
		return err
	}
	if _, err := r.ReadU4(); err != nil { // stack trace serial
		return err
	}
	numElements, err := r.ReadU4()
	if err != nil {
		return err
	}
	arrayClassObjID, err := r.ReadID()
	if err != nil {
		return err
	}
	elements := make([]ObjectId, 0, numElements)
	for i := 0; i < int(numElements); i++ {
		elemID, err := r.ReadID()
		if err != nil {
			return err
		}
		elements = append(elements, ObjectId(elemID))
	}

	arr := &ObjectArray{id: ObjectId(objID), classID: ClassId(arrayClassObjID), elementIDs: elements}
	p.registerObject(arr.id, arr)
	return nil
}

// parsePrimitiveArrayDump decodes a PRIMITIVE_ARRAY_DUMP sub-record,
// retaining the raw element bytes verbatim.
func (p *Profile) parsePrimitiveArrayDump(r *Reader) error {
	objID, err := r.ReadID()
	if err != nil {
		return err
	}
	if _, err := r.ReadU4(); err != nil { // stack trace serial
		return err
	}
	numElements, err := r.ReadU4()
	if err != nil {
		return err
	}
	elemTypeByte, err := r.ReadU1()
	if err != nil {
		return err
	}
	elemType := BasicType(elemTypeByte)
	width := elemType.Size(p.idSize)
	if width == 0 {
		return errFormatf("unknown primitive array element type %d", elemTypeByte)
	}
	raw, err := r.ReadBytes(int(numElements) * width)
	if err != nil {
		return err
	}

	arr := &PrimitiveArray{id: ObjectId(objID), elemType: elemType, raw: raw}
	p.registerObject(arr.id, arr)
	return nil
}

func (p *Profile) registerObject(id ObjectId, obj interface{}) {
	p.objects[id] = obj
	if _, seen := p.arrival[id]; !seen {
		p.arrival[id] = p.nextDense
		p.nextDense++
	}
}

// DenseIndex returns an object's position in discovery order, used by
// query.go to size a collections.Bitset for cycle detection instead of a
// map keyed by the much sparser ObjectId space.
func (p *Profile) DenseIndex(id ObjectId) (int, bool) {
	idx, ok := p.arrival[id]
	return idx, ok
}

// ObjectCount returns how many distinct heap objects were indexed.
func (p *Profile) ObjectCount() int { return len(p.objects) }

// NewCycleGuard returns a Bitset sized to the number of distinct objects
// seen, suitable for marking visited fragments while flattening a
// CompositeBytesReference's (possibly cyclic) references array.
func (p *Profile) NewCycleGuard() *collections.Bitset {
	return collections.NewBitset(p.ObjectCount())
}

// ClassByName finds the (first) class with the given fully qualified
// binary name, or nil if none was loaded.
func (p *Profile) ClassByName(name string) *Class {
	for id, nameID := range p.loadClasses {
		if p.strings[nameID] != name {
			continue
		}
		if c, ok := p.classes[id]; ok {
			return c
		}
	}
	return nil
}

// ClassByID looks up a class by its class object id.
func (p *Profile) ClassByID(id ClassId) (*Class, bool) {
	c, ok := p.classes[id]
	return c, ok
}

// Classes enumerates every class the dump's CLASS_DUMP records produced.
// Iteration order is unspecified.
func (p *Profile) Classes() []*Class {
	out := make([]*Class, 0, len(p.classes))
	for _, c := range p.classes {
		out = append(out, c)
	}
	return out
}

// Object looks up a raw heap object id against the profile's object
// table. The concrete type is one of *Instance, *ObjectArray, or
// *PrimitiveArray (the closed Object sum, §9 "Polymorphism"); ok is
// false for a null id or one the dump never saw a dump record for.
func (p *Profile) Object(id ObjectId) (interface{}, bool) {
	obj, ok := p.objects[id]
	return obj, ok
}

// Instance looks up a raw object id as an Instance, or nil if it isn't
// one (a null reference, an array, or an id the dump never saw a dump
// record for).
func (p *Profile) Instance(id ObjectId) *Instance {
	inst, _ := p.objects[id].(*Instance)
	return inst
}

// IsSubclass walks the superclass chain from child upward, per §4.2.
// It returns a pointer to true when child == ancestor, a pointer to
// false when the chain terminates (reaches a class with no recorded
// superclass) without finding ancestor, and nil — indeterminate — when
// any class id along the way (including child itself) is missing from
// the class table. A missing class is expected at the root of a chain
// for bootstrap classes like java/lang/Object (superID == 0, which is
// NullID and terminates the walk normally, not indeterminately) but
// anywhere else means the dump's CLASS_DUMP records are incomplete.
func (p *Profile) IsSubclass(child, ancestor ClassId) *bool {
	falseVal, trueVal := false, true

	cur, ok := p.classes[child]
	if !ok {
		return nil
	}
	for {
		if cur.id == ancestor {
			return &trueVal
		}
		if cur.superID == 0 {
			return &falseVal
		}
		next, ok := p.classes[cur.superID]
		if !ok {
			return nil
		}
		cur = next
	}
}

// IsSubclassByName is the name-based convenience composition of
// IsSubclass (§4.2): it resolves both names via ClassByName first, and
// is indeterminate if either name doesn't resolve to a loaded class.
func (p *Profile) IsSubclassByName(childName, ancestorName string) *bool {
	child := p.ClassByName(childName)
	ancestor := p.ClassByName(ancestorName)
	if child == nil || ancestor == nil {
		return nil
	}
	return p.IsSubclass(child.ID(), ancestor.ID())
}
