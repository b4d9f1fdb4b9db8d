package internal

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// FamilyEquality selects how a family keys its parameters.
type FamilyEquality int

const (
	// FamilyByValue keys parameters by their canonical msgpack encoding:
	// deep-equal parameters yield the same node.
	FamilyByValue FamilyEquality = iota
	// FamilyByIdentity keys parameters by Go map equality, which is
	// identity for pointers. Parameters must be comparable.
	FamilyByIdentity
)

// FamilyConfig carries family options applied at creation.
type FamilyConfig struct {
	Equality FamilyEquality
	Async    bool
	Node     NodeConfig
}

// Family produces parameter-indexed derived nodes, created lazily on
// first access and cached so the same parameter always yields the same
// node id. Disposal of the family disposes everything it minted.
type Family struct {
	g       *Graph
	factory func(param any) ComputeFunc
	cfg     FamilyConfig

	byValue map[string]NodeID
	byIdent map[any]NodeID
	minted  []NodeID
}

// NewFamily registers a family template on the graph.
func (g *Graph) NewFamily(factory func(param any) ComputeFunc, cfg FamilyConfig) *Family {
	f := &Family{
		g:       g,
		factory: factory,
		cfg:     cfg,
	}
	if cfg.Equality == FamilyByValue {
		f.byValue = make(map[string]NodeID)
	} else {
		f.byIdent = make(map[any]NodeID)
	}
	return f
}

// Node returns the node for param, minting it on first access. A cache
// entry whose node was individually disposed is re-minted.
func (f *Family) Node(param any) (NodeID, error) {
	var key string
	if f.cfg.Equality == FamilyByValue {
		k, err := familyKey(param)
		if err != nil {
			return 0, fmt.Errorf("weft: family parameter not encodable: %w", err)
		}
		key = k
	}

	g := f.g
	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := f.lookup(key, param); ok {
		if _, live := g.nodes[id]; live {
			return id, nil
		}
	}

	n := g.allocateLocked(KindDerived, f.cfg.Node)
	n.compute = f.factory(param)
	n.async = f.cfg.Async
	n.status = StatusStale

	f.store(key, param, n.id)
	f.minted = append(f.minted, n.id)

	g.log.Debug("family node minted", "id", n.id)
	return n.id, nil
}

func (f *Family) lookup(key string, param any) (NodeID, bool) {
	if f.byValue != nil {
		id, ok := f.byValue[key]
		return id, ok
	}
	id, ok := f.byIdent[param]
	return id, ok
}

func (f *Family) store(key string, param any, id NodeID) {
	if f.byValue != nil {
		f.byValue[key] = id
		return
	}
	f.byIdent[param] = id
}

// Graph returns the graph the family mints nodes on.
func (f *Family) Graph() *Graph { return f.g }

// Dispose removes every node the family produced, cascading over their
// dependents, and empties the cache.
func (f *Family) Dispose() {
	g := f.g
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range f.minted {
		if n, ok := g.nodes[id]; ok {
			g.disposeLocked(n)
		}
	}
	f.minted = nil
	if f.byValue != nil {
		f.byValue = make(map[string]NodeID)
	} else {
		f.byIdent = make(map[any]NodeID)
	}
}

// familyKey canonicalizes a parameter to bytes, so deep-equal parameters
// encode identically. Values whose type cannot reach a map encode through
// msgpack directly; maps encode with their entries sorted by encoded key,
// recursively, since Go map iteration order is random.
func familyKey(param any) (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := canonicalEncode(enc, reflect.ValueOf(param)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func canonicalEncode(enc *msgpack.Encoder, v reflect.Value) error {
	if !v.IsValid() {
		return enc.EncodeNil()
	}
	if !typeReachesMap(v.Type(), nil) {
		return enc.Encode(v.Interface())
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		return canonicalEncode(enc, v.Elem())

	case reflect.Map:
		if v.IsNil() {
			return enc.EncodeNil()
		}
		type entry struct{ key, val []byte }
		entries := make([]entry, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k, err := canonicalBytes(iter.Key())
			if err != nil {
				return err
			}
			val, err := canonicalBytes(iter.Value())
			if err != nil {
				return err
			}
			entries = append(entries, entry{key: k, val: val})
		}
		sort.Slice(entries, func(i, j int) bool {
			return bytes.Compare(entries[i].key, entries[j].key) < 0
		})
		if err := enc.EncodeMapLen(len(entries)); err != nil {
			return err
		}
		for _, e := range entries {
			if _, err := enc.Writer().Write(e.key); err != nil {
				return err
			}
			if _, err := enc.Writer().Write(e.val); err != nil {
				return err
			}
		}
		return nil

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return enc.EncodeNil()
		}
		if err := enc.EncodeArrayLen(v.Len()); err != nil {
			return err
		}
		for i := 0; i < v.Len(); i++ {
			if err := canonicalEncode(enc, v.Index(i)); err != nil {
				return err
			}
		}
		return nil

	case reflect.Struct:
		t := v.Type()
		var fields []int
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).IsExported() {
				fields = append(fields, i)
			}
		}
		if err := enc.EncodeArrayLen(len(fields)); err != nil {
			return err
		}
		for _, i := range fields {
			if err := canonicalEncode(enc, v.Field(i)); err != nil {
				return err
			}
		}
		return nil
	}

	return enc.Encode(v.Interface())
}

func canonicalBytes(v reflect.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := canonicalEncode(msgpack.NewEncoder(&buf), v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// typeReachesMap reports whether a value of type t can contain a map.
// Interfaces count, since their dynamic type is unknown.
func typeReachesMap(t reflect.Type, seen map[reflect.Type]bool) bool {
	switch t.Kind() {
	case reflect.Map, reflect.Interface:
		return true
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return typeReachesMap(t.Elem(), seen)
	case reflect.Struct:
		if seen[t] {
			return false
		}
		if seen == nil {
			seen = make(map[reflect.Type]bool)
		}
		seen[t] = true
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.IsExported() && typeReachesMap(f.Type, seen) {
				return true
			}
		}
		return false
	}
	return false
}
