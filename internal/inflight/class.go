package inflight

import "sync"

// fieldDescriptor names one instance field declared directly on a class
// (not inherited), in the byte order it appears in every INSTANCE_DUMP
// of that class.
type fieldDescriptor struct {
	NameID StringId
	Type   BasicType
}

// Class is a CLASS_DUMP record: a class's own declared instance fields,
// plus a link to its superclass. Superclass field layout is resolved on
// demand by fieldLayout, not stored per-class, since the chain can only
// be walked once every CLASS_DUMP in the heap dump has been seen.
type Class struct {
	id         ClassId
	superID    ClassId
	ownFields  []fieldDescriptor

	layoutOnce sync.Once
	layout     []fieldDescriptor
}

// ID returns the class's object id.
func (c *Class) ID() ClassId { return c.id }

// Name resolves the class's fully qualified, slash-separated binary name
// (e.g. "org/elasticsearch/http/netty4/Netty4HttpRequest") via the
// profile's load-class and string tables.
func (c *Class) Name(p *Profile) string {
	nameID, ok := p.loadClasses[c.id]
	if !ok {
		return ""
	}
	return p.strings[nameID]
}

// Parent returns the class's superclass, or nil if it has none recorded
// (either it's java/lang/Object, or the heap dump never included a
// CLASS_DUMP for the superclass id it names).
func (c *Class) Parent(p *Profile) *Class {
	if c.superID == 0 {
		return nil
	}
	return p.classes[c.superID]
}

// IsSubclassOf is the tri-state §4.2 is_subclass check, by name, rooted
// at c: true when c is named name or a transitive subclass of it, false
// when the superclass chain terminates elsewhere, and nil —
// indeterminate — when any class along the chain is missing from the
// profile's class table. See Profile.IsSubclassByName.
func (c *Class) IsSubclassOf(p *Profile, name string) *bool {
	return p.IsSubclassByName(c.Name(p), name)
}

// Instances returns every live instance of exactly this class (not
// subclasses) encountered during the heap dump scan, in encounter order.
func (c *Class) Instances(p *Profile) []*Instance {
	ids := p.classInstances[c.id]
	out := make([]*Instance, 0, len(ids))
	for _, id := range ids {
		if obj, ok := p.Object(id); ok {
			if inst, ok := obj.(*Instance); ok {
				out = append(out, inst)
			}
		}
	}
	return out
}

// fieldLayout returns this class's full instance field layout, walking
// the superclass chain parent-before-child: a subclass's own fields are
// decoded after every inherited field, matching the byte order the JVM
// actually lays instances out in. This is spec.md §4.3's recommended
// behavior; the original Rust implementation (and a second Go reference
// parser in the example pack) only ever decode the immediate class's own
// fields — see DESIGN.md's Open Question resolution.
func (c *Class) fieldLayout(p *Profile) []fieldDescriptor {
	c.layoutOnce.Do(func() {
		var chain []*Class
		for cur := c; cur != nil; cur = cur.Parent(p) {
			chain = append(chain, cur)
		}
		var layout []fieldDescriptor
		for i := len(chain) - 1; i >= 0; i-- {
			layout = append(layout, chain[i].ownFields...)
		}
		c.layout = layout
	})
	return c.layout
}
