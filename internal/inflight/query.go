package inflight

import (
	"context"
	"strings"
	"sync"

	"github.com/oom-forensics/hprof-inflight/pkg/collections"
	"github.com/oom-forensics/hprof-inflight/pkg/parallel"
)

// netty4HTTPRequestClass is the fully qualified class whose instances
// buffer an in-flight HTTP request body on Elasticsearch's Netty4 HTTP
// transport. Grounded directly on the original implementation's
// read_inflight_queries (elasticsearch/mod.rs).
const netty4HTTPRequestClass = "org/elasticsearch/http/netty4/Netty4HttpRequest"

// releasedFieldName is the soft-matched field name isReleased looks for;
// see DESIGN.md's Open Question resolution for §4.6.
const releasedFieldName = "released"

// The two concrete container classes §4.5 dispatches on. Anything else
// found in a content reference is unreadable.
const (
	bytesArrayClass              = "org/elasticsearch/common/bytes/BytesArray"
	compositeBytesReferenceClass = "org/elasticsearch/common/bytes/CompositeBytesReference"
)

var bufferPool = collections.NewSlicePool[byte](4096)

// InflightQuery is one recovered request body, tagged with the object id
// of the Netty4HttpRequest instance it came from so results can be
// reported in a stable, debuggable order.
type InflightQuery struct {
	ObjectID ObjectId
	Body     string
}

// ReadInflightQueries finds every Netty4HttpRequest instance in the
// profile, resolves each one's buffered content, and reassembles it into
// a UTF-8 (lossy) string. Reconstruction of each instance is independent
// of every other, so it runs across a worker pool (pkg/parallel.ForEach)
// while results are written back by original index to preserve the
// heap-dump encounter order the original implementation's sequential
// iteration produces.
//
// Instances whose content field can't be resolved, or whose released
// field (§4.6's soft-matched heuristic) indicates the buffer was already
// returned to the pool, are skipped; so are instances that reassemble to
// an empty body.
func ReadInflightQueries(ctx context.Context, p *Profile) ([]InflightQuery, error) {
	class := p.ClassByName(netty4HTTPRequestClass)
	if class == nil {
		return nil, errFormatf("class %s not found in heap dump", netty4HTTPRequestClass)
	}
	instances := class.Instances(p)

	type indexed struct {
		index int
		inst  *Instance
	}
	items := make([]indexed, len(instances))
	for i, inst := range instances {
		items[i] = indexed{index: i, inst: inst}
	}

	results := make([]*InflightQuery, len(instances))
	var mu sync.Mutex

	config := parallel.DefaultPoolConfig()
	_, err := parallel.ForEach(ctx, items, config, func(ctx context.Context, item indexed) error {
		q, skip, err := reconstructRequest(p, item.inst)
		if err != nil {
			p.logger.Warn("failed to reconstruct in-flight request", "object", item.inst.ID(), "error", err)
			return nil
		}
		if skip {
			return nil
		}
		mu.Lock()
		results[item.index] = q
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, errDecode("failed to reconstruct in-flight requests", err)
	}

	out := make([]InflightQuery, 0, len(results))
	for _, q := range results {
		if q != nil {
			out = append(out, *q)
		}
	}
	return out, nil
}

// reconstructRequest resolves one Netty4HttpRequest instance's buffered
// body. skip is true when the instance should be dropped from results
// without being treated as an error: a released buffer, a missing
// content reference, or an empty reassembled payload.
func reconstructRequest(p *Profile, inst *Instance) (*InflightQuery, bool, error) {
	if isReleased(p, inst) {
		return nil, true, nil
	}

	content, ok := inst.Field(p, "content")
	if !ok || content.IsNull() {
		return nil, true, nil
	}
	if content.Instance == nil {
		return nil, true, nil
	}

	bufPtr := bufferPool.Get()
	defer bufferPool.Put(bufPtr)

	guard := p.NewCycleGuard()
	if err := readCompositeBytes(p, content.Instance, guard, bufPtr); err != nil {
		return nil, false, err
	}

	if len(*bufPtr) == 0 {
		return nil, true, nil
	}

	body := string(*bufPtr)
	return &InflightQuery{ObjectID: inst.ID(), Body: body}, false, nil
}

// isReleased applies §4.6's soft-matched heuristic: the original
// implementation never checks a released flag at all (see DESIGN.md's
// Open Question resolution), so there is no ground-truth field name to
// copy. This looks for a field named "released" (case-insensitive). A
// boolean or integer field counts as released when nonzero; an object
// reference is followed to its referent, whose first int field counts as
// released when nonzero. If no such field exists, or it is null or of
// another type, the instance is treated as still live.
func isReleased(p *Profile, inst *Instance) bool {
	fields, err := inst.Fields(p)
	if err != nil {
		return false
	}
	for _, f := range fields {
		if !strings.EqualFold(f.Name, releasedFieldName) {
			continue
		}
		switch f.Value.Type {
		case TypeBoolean:
			return f.Value.Bool()
		case TypeByte, TypeShort, TypeInt, TypeLong:
			return f.Value.Long() != 0 || f.Value.Int() != 0
		case TypeObject:
			if f.Value.Instance == nil {
				return false
			}
			wrapped, err := f.Value.Instance.Fields(p)
			if err != nil {
				return false
			}
			for _, wf := range wrapped {
				if wf.Value.Type == TypeInt {
					return wf.Value.Int() != 0
				}
			}
			return false
		}
	}
	return false
}

// readCompositeBytes reassembles a BytesReference instance's bytes into
// buf, in encounter order. Grounded on the original implementation's
// read_composite_bytes/read_composite_chunk: dispatch is by the
// referent's concrete runtime class name, per §4.5 steps 2-3, not by
// field shape — the content field is declared as an interface in the
// source framework and is erased at the heap level, so the class name
// is the only reliable discriminant. guard prevents infinite recursion
// if references forms a cycle.
func readCompositeBytes(p *Profile, instance *Instance, guard *collections.Bitset, buf *[]byte) error {
	idx, ok := p.DenseIndex(instance.ID())
	if ok {
		if guard.Test(idx) {
			return nil
		}
		guard.Set(idx)
	}

	class := instance.Class(p)
	var className string
	if class != nil {
		className = class.Name(p)
	}

	switch className {
	case compositeBytesReferenceClass:
		refs, ok := instance.Field(p, "references")
		if !ok || refs.Array == nil {
			p.logger.Warn("composite bytes reference has no references array", "object", instance.ID())
			return nil
		}
		for _, elem := range refs.Array.Values(p) {
			if elem.Instance == nil {
				p.logger.Warn("null reference in composite bytes reference, skipping fragment", "object", instance.ID())
				continue
			}
			if err := readCompositeBytes(p, elem.Instance, guard, buf); err != nil {
				return err
			}
		}
		return nil
	case bytesArrayClass:
		return readChunk(p, instance, buf)
	default:
		p.logger.Warn("unrecognized bytes reference class, request is unreadable", "object", instance.ID(), "class", className)
		return nil
	}
}

// readChunk reads one leaf BytesArray-shaped instance: a "bytes"
// primitive byte array, an "offset" int, and a "length" int, appending
// bytes[offset:offset+length] to buf.
func readChunk(p *Profile, instance *Instance, buf *[]byte) error {
	bytesField, ok := instance.Field(p, "bytes")
	if !ok || bytesField.Prim == nil {
		return nil
	}
	raw, err := bytesField.Prim.Bytes()
	if err != nil {
		return nil
	}

	offset := 0
	if off, ok := instance.Field(p, "offset"); ok {
		offset = int(off.Int())
	}
	length := len(raw) - offset
	if lenField, ok := instance.Field(p, "length"); ok {
		length = int(lenField.Int())
	}

	if offset < 0 || length < 0 || offset+length > len(raw) {
		return errFormatf("bytes chunk range [%d:%d] out of bounds for array of length %d", offset, offset+length, len(raw))
	}

	*buf = append(*buf, raw[offset:offset+length]...)
	return nil
}
