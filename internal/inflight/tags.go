package inflight

// RecordTag identifies a top-level record in an HPROF stream.
type RecordTag uint8

const (
	TagString          RecordTag = 0x01
	TagLoadClass       RecordTag = 0x02
	TagUnloadClass     RecordTag = 0x03
	TagStackFrame      RecordTag = 0x04
	TagStackTrace      RecordTag = 0x05
	TagAllocSites      RecordTag = 0x06
	TagHeapSummary     RecordTag = 0x07
	TagStartThread     RecordTag = 0x0A
	TagEndThread       RecordTag = 0x0B
	TagHeapDump        RecordTag = 0x0C
	TagCPUSamples      RecordTag = 0x0D
	TagControlSettings RecordTag = 0x0E
	TagHeapDumpSegment RecordTag = 0x1C
	TagHeapDumpEnd     RecordTag = 0x2C
)

// HeapDumpTag identifies a sub-record within a HEAP_DUMP or
// HEAP_DUMP_SEGMENT record.
type HeapDumpTag uint8

const (
	HeapTagRootUnknown      HeapDumpTag = 0xFF
	HeapTagRootJNIGlobal    HeapDumpTag = 0x01
	HeapTagRootJNILocal     HeapDumpTag = 0x02
	HeapTagRootJavaFrame    HeapDumpTag = 0x03
	HeapTagRootNativeStack  HeapDumpTag = 0x04
	HeapTagRootStickyClass  HeapDumpTag = 0x05
	HeapTagRootThreadBlock  HeapDumpTag = 0x06
	HeapTagRootMonitorUsed  HeapDumpTag = 0x07
	HeapTagRootThreadObject HeapDumpTag = 0x08
	HeapTagClassDump        HeapDumpTag = 0x20
	HeapTagInstanceDump     HeapDumpTag = 0x21
	HeapTagObjectArrayDump  HeapDumpTag = 0x22
	HeapTagPrimArrayDump    HeapDumpTag = 0x23
	// JVM-variant GC root tags. parseHeapDumpBody has no case for them:
	// a sub-record carrying one of these tags ends the scan of its
	// HEAP_DUMP record, like any other unrecognized tag. None are needed
	// to reconstruct in-flight request bodies.
	HeapTagRootInternedString HeapDumpTag = 0x89
	HeapTagRootFinalizing     HeapDumpTag = 0x8A
	HeapTagRootDebugger       HeapDumpTag = 0x8B
	HeapTagRootRefCleanup     HeapDumpTag = 0x8C
	HeapTagRootVMInternal     HeapDumpTag = 0x8D
	HeapTagRootJNIMonitor     HeapDumpTag = 0x8E
	HeapTagHeapDumpInfo       HeapDumpTag = 0xC3
	HeapTagRootUnreachable    HeapDumpTag = 0xFE
)

// BasicType is a Java field/array element type as it appears in HPROF
// field descriptors and primitive array dumps.
type BasicType uint8

const (
	TypeObject  BasicType = 2
	TypeBoolean BasicType = 4
	TypeChar    BasicType = 5
	TypeFloat   BasicType = 6
	TypeDouble  BasicType = 7
	TypeByte    BasicType = 8
	TypeShort   BasicType = 9
	TypeInt     BasicType = 10
	TypeLong    BasicType = 11
)

// Size returns the on-disk width of a value of type t, given the dump's
// identifier size (4 or 8 bytes, used for TypeObject).
func (t BasicType) Size(idSize int) int {
	switch t {
	case TypeObject:
		return idSize
	case TypeBoolean, TypeByte:
		return 1
	case TypeChar, TypeShort:
		return 2
	case TypeFloat, TypeInt:
		return 4
	case TypeDouble, TypeLong:
		return 8
	default:
		return 0
	}
}

// JavaName returns the Java source-level type name, used for diagnostics
// and for PrimitiveArray.ValueType().
func (t BasicType) JavaName() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeChar:
		return "char"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeByte:
		return "byte"
	case TypeShort:
		return "short"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeObject:
		return "object"
	default:
		return "unknown"
	}
}
