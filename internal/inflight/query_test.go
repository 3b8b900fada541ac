package inflight

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oom-forensics/hprof-inflight/pkg/utils"
)

// recordingLogger captures Warn messages so tests can assert a given
// failure was logged rather than silently swallowed.
type recordingLogger struct {
	mu   sync.Mutex
	warn []string
}

func (l *recordingLogger) Debug(msg string, args ...interface{}) {}
func (l *recordingLogger) Info(msg string, args ...interface{})  {}
func (l *recordingLogger) Warn(msg string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warn = append(l.warn, fmt.Sprintf("%s %v", msg, args))
}
func (l *recordingLogger) Error(msg string, args ...interface{}) {}
func (l *recordingLogger) WithField(key string, value interface{}) utils.Logger { return l }
func (l *recordingLogger) WithFields(fields map[string]interface{}) utils.Logger { return l }

func (l *recordingLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.warn))
	copy(out, l.warn)
	return out
}

const (
	strNetty4Request = 1
	strContent       = 2
	strReleased      = 3
	strBytesArray    = 4
	strBytes         = 5
	strOffset        = 6
	strLength        = 7
	strReferences    = 8
	strComposite     = 9
)

func buildBaseScenario(b *hprofBuilder) {
	b.utf8(strNetty4Request, netty4HTTPRequestClass)
	b.utf8(strContent, "content")
	b.utf8(strReleased, "released")
	b.utf8(strBytesArray, "org/elasticsearch/common/bytes/BytesArray")
	b.utf8(strBytes, "bytes")
	b.utf8(strOffset, "offset")
	b.utf8(strLength, "length")
	b.utf8(strReferences, "references")
	b.utf8(strComposite, "org/elasticsearch/common/bytes/CompositeBytesReference")

	b.loadClass(100, strNetty4Request)
	b.loadClass(200, strBytesArray)
	b.loadClass(300, strComposite)
}

func TestReadInflightQueries_BareBytesArray(t *testing.T) {
	b := newHprofBuilder()
	buildBaseScenario(b)
	b.heapDump(
		classDumpBody(100, 0, []testField{
			{nameID: strContent, typ: TypeObject},
			{nameID: strReleased, typ: TypeBoolean},
		}),
		classDumpBody(200, 0, []testField{
			{nameID: strBytes, typ: TypeObject},
			{nameID: strOffset, typ: TypeInt},
			{nameID: strLength, typ: TypeInt},
		}),
	)
	b.heapDump(
		primitiveByteArrayDumpBody(900, []byte("hello world")),
		instanceDumpBody(800, 200, []fieldValueBytes{objectField(900), intField(0), intField(11)}),
		instanceDumpBody(700, 100, []fieldValueBytes{objectField(800), boolField(false)}),
	)

	p, err := Load(b.Bytes(), nil)
	require.NoError(t, err)

	queries, err := ReadInflightQueries(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, ObjectId(700), queries[0].ObjectID)
	assert.Equal(t, "hello world", queries[0].Body)
}

func TestReadInflightQueries_CompositeBytesReference(t *testing.T) {
	b := newHprofBuilder()
	buildBaseScenario(b)
	b.heapDump(
		classDumpBody(100, 0, []testField{
			{nameID: strContent, typ: TypeObject},
			{nameID: strReleased, typ: TypeBoolean},
		}),
		classDumpBody(200, 0, []testField{
			{nameID: strBytes, typ: TypeObject},
			{nameID: strOffset, typ: TypeInt},
			{nameID: strLength, typ: TypeInt},
		}),
		classDumpBody(300, 0, []testField{
			{nameID: strReferences, typ: TypeObject},
		}),
	)

	objArrayBody := objectArrayDumpBody(950, []uint64{801, 802})

	b.heapDump(
		primitiveByteArrayDumpBody(910, []byte("foo")),
		primitiveByteArrayDumpBody(920, []byte("barbaz")),
		instanceDumpBody(801, 200, []fieldValueBytes{objectField(910), intField(0), intField(3)}),
		instanceDumpBody(802, 200, []fieldValueBytes{objectField(920), intField(3), intField(3)}),
		objArrayBody,
		instanceDumpBody(803, 300, []fieldValueBytes{objectField(950)}),
		instanceDumpBody(700, 100, []fieldValueBytes{objectField(803), boolField(false)}),
	)

	p, err := Load(b.Bytes(), nil)
	require.NoError(t, err)

	queries, err := ReadInflightQueries(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "foobaz", queries[0].Body)
}

func TestReadInflightQueries_ReleasedInstanceSkipped(t *testing.T) {
	b := newHprofBuilder()
	buildBaseScenario(b)
	b.heapDump(
		classDumpBody(100, 0, []testField{
			{nameID: strContent, typ: TypeObject},
			{nameID: strReleased, typ: TypeBoolean},
		}),
		classDumpBody(200, 0, []testField{
			{nameID: strBytes, typ: TypeObject},
			{nameID: strOffset, typ: TypeInt},
			{nameID: strLength, typ: TypeInt},
		}),
	)
	b.heapDump(
		primitiveByteArrayDumpBody(900, []byte("hello world")),
		instanceDumpBody(800, 200, []fieldValueBytes{objectField(900), intField(0), intField(11)}),
		instanceDumpBody(700, 100, []fieldValueBytes{objectField(800), boolField(true)}),
	)

	p, err := Load(b.Bytes(), nil)
	require.NoError(t, err)

	queries, err := ReadInflightQueries(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, queries)
}

func TestReadInflightQueries_MissingClassErrors(t *testing.T) {
	b := newHprofBuilder()
	p, err := Load(b.Bytes(), nil)
	require.NoError(t, err)

	_, err = ReadInflightQueries(context.Background(), p)
	assert.Error(t, err)
}

// §8 scenario 4: a null slot in the middle of a composite reference's
// references array is skipped with a warning, and the surrounding
// fragments still reassemble.
func TestReadInflightQueries_CompositeBytesReferenceWithNullSlot(t *testing.T) {
	b := newHprofBuilder()
	buildBaseScenario(b)
	b.heapDump(
		classDumpBody(100, 0, []testField{
			{nameID: strContent, typ: TypeObject},
			{nameID: strReleased, typ: TypeBoolean},
		}),
		classDumpBody(200, 0, []testField{
			{nameID: strBytes, typ: TypeObject},
			{nameID: strOffset, typ: TypeInt},
			{nameID: strLength, typ: TypeInt},
		}),
		classDumpBody(300, 0, []testField{
			{nameID: strReferences, typ: TypeObject},
		}),
	)

	objArrayBody := objectArrayDumpBody(950, []uint64{801, 0, 802})

	b.heapDump(
		primitiveByteArrayDumpBody(910, []byte("ab")),
		primitiveByteArrayDumpBody(920, []byte("cd")),
		instanceDumpBody(801, 200, []fieldValueBytes{objectField(910), intField(0), intField(2)}),
		instanceDumpBody(802, 200, []fieldValueBytes{objectField(920), intField(0), intField(2)}),
		objArrayBody,
		instanceDumpBody(803, 300, []fieldValueBytes{objectField(950)}),
		instanceDumpBody(700, 100, []fieldValueBytes{objectField(803), boolField(false)}),
	)

	logger := &recordingLogger{}
	p, err := Load(b.Bytes(), logger)
	require.NoError(t, err)

	queries, err := ReadInflightQueries(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "abcd", queries[0].Body)

	warnings := logger.warnings()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "null reference in composite bytes reference") {
			found = true
			break
		}
	}
	assert.True(t, found, "expected a warning logged for the null reference slot, got: %v", warnings)
}

// §8 scenario 5: multiple live requests are returned in heap-dump
// instance-encounter order, not some other order.
func TestReadInflightQueries_MultipleLiveRequestsPreserveOrder(t *testing.T) {
	b := newHprofBuilder()
	buildBaseScenario(b)
	b.heapDump(
		classDumpBody(100, 0, []testField{
			{nameID: strContent, typ: TypeObject},
			{nameID: strReleased, typ: TypeBoolean},
		}),
		classDumpBody(200, 0, []testField{
			{nameID: strBytes, typ: TypeObject},
			{nameID: strOffset, typ: TypeInt},
			{nameID: strLength, typ: TypeInt},
		}),
	)
	b.heapDump(
		primitiveByteArrayDumpBody(910, []byte("q1")),
		primitiveByteArrayDumpBody(920, []byte("q2")),
		instanceDumpBody(801, 200, []fieldValueBytes{objectField(910), intField(0), intField(2)}),
		instanceDumpBody(802, 200, []fieldValueBytes{objectField(920), intField(0), intField(2)}),
		instanceDumpBody(700, 100, []fieldValueBytes{objectField(801), boolField(false)}),
		instanceDumpBody(701, 100, []fieldValueBytes{objectField(802), boolField(false)}),
	)

	p, err := Load(b.Bytes(), nil)
	require.NoError(t, err)

	queries, err := ReadInflightQueries(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, ObjectId(700), queries[0].ObjectID)
	assert.Equal(t, "q1", queries[0].Body)
	assert.Equal(t, ObjectId(701), queries[1].ObjectID)
	assert.Equal(t, "q2", queries[1].Body)
}

// §8 scenario 6: a content reference whose concrete class is neither
// BytesArray nor CompositeBytesReference is unreadable — logged and
// skipped, not an error, and not silently dropped without a trace.
func TestReadInflightQueries_UnknownContentClassLoggedAndSkipped(t *testing.T) {
	const strUnknown = 10

	b := newHprofBuilder()
	buildBaseScenario(b)
	b.utf8(strUnknown, "org/example/SomeOtherBytesReference")
	b.loadClass(400, strUnknown)
	b.heapDump(
		classDumpBody(100, 0, []testField{
			{nameID: strContent, typ: TypeObject},
			{nameID: strReleased, typ: TypeBoolean},
		}),
		classDumpBody(400, 0, nil),
	)
	b.heapDump(
		instanceDumpBody(810, 400, nil),
		instanceDumpBody(700, 100, []fieldValueBytes{objectField(810), boolField(false)}),
	)

	logger := &recordingLogger{}
	p, err := Load(b.Bytes(), logger)
	require.NoError(t, err)

	queries, err := ReadInflightQueries(context.Background(), p)
	require.NoError(t, err)
	assert.Empty(t, queries)

	warnings := logger.warnings()
	found := false
	for _, w := range warnings {
		if strings.Contains(w, "unrecognized bytes reference class") {
			found = true
			break
		}
	}
	assert.True(t, found, "expected a warning logged for the unrecognized content class, got: %v", warnings)
}
