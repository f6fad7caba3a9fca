package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wudi/pdfcompose/filters"
	"github.com/wudi/pdfcompose/ir/raw"
	"github.com/wudi/pdfcompose/scanner"
	"github.com/wudi/pdfcompose/xref"
)

// ErrObjectNotFound is returned for references missing from the xref table.
var ErrObjectNotFound = errors.New("object not found")

// objectLoader reads indirect objects on demand and caches them by reference.
type objectLoader struct {
	data     []byte
	table    *xref.Table
	filters  *filters.Pipeline
	maxDepth int

	mu     sync.Mutex
	cache  map[raw.ObjectRef]raw.Object
	objstm map[int]map[int]raw.Object

	deep *deepResolver
}

func newObjectLoader(data []byte, table *xref.Table, p *filters.Pipeline, maxDepth int) *objectLoader {
	return &objectLoader{
		data:     data,
		table:    table,
		filters:  p,
		maxDepth: maxDepth,
		cache:    make(map[raw.ObjectRef]raw.Object),
		objstm:   make(map[int]map[int]raw.Object),
	}
}

// Load returns the object ref points at.
func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.load(ctx, ref, 0)
}

func (o *objectLoader) load(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	if obj, ok := o.cache[ref]; ok {
		return obj, nil
	}
	if depth > o.maxDepth {
		return nil, errors.New("max indirect depth exceeded")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, ok := o.table.Lookup(ref.Num)
	if !ok {
		return nil, fmt.Errorf("%s: %w", ref, ErrObjectNotFound)
	}

	var obj raw.Object
	var err error
	switch e.Kind {
	case xref.Compressed:
		obj, err = o.loadFromObjectStream(ctx, ref, e.Stream, depth)
	default:
		length := func(l raw.Object) int64 {
			r, ok := l.(raw.RefObj)
			if !ok {
				return -1
			}
			v, err := o.load(ctx, r.R, depth+1)
			if err != nil {
				return -1
			}
			n, ok := v.(raw.NumberObj)
			if !ok {
				return -1
			}
			return n.Int()
		}
		var got raw.ObjectRef
		got, obj, err = xref.ReadIndirect(o.data, e.Offset, length)
		if err == nil && got.Num != ref.Num {
			err = fmt.Errorf("object header %s does not match %s", got, ref)
		}
	}
	if err != nil {
		return nil, err
	}
	o.cache[ref] = obj
	return obj, nil
}

func (o *objectLoader) loadFromObjectStream(ctx context.Context, ref raw.ObjectRef, streamNum, depth int) (raw.Object, error) {
	if objs, ok := o.objstm[streamNum]; ok {
		if obj, ok := objs[ref.Num]; ok {
			return obj, nil
		}
		return nil, fmt.Errorf("%s in object stream %d: %w", ref, streamNum, ErrObjectNotFound)
	}
	container, err := o.load(ctx, raw.ObjectRef{Num: streamNum}, depth+1)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
	}
	st, ok := container.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("object stream %d is not a stream", streamNum)
	}
	data, err := o.filters.DecodeStream(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", streamNum, err)
	}
	n := intValue(st.Dict, "N")
	first := intValue(st.Dict, "First")
	if first < 0 || first > len(data) {
		return nil, errors.New("object stream First exceeds length")
	}

	header := scanner.New(data[:first])
	objs := make(map[int]raw.Object, n)
	for i := 0; i < n; i++ {
		num, err1 := header.Next()
		off, err2 := header.Next()
		if err := errors.Join(err1, err2); err != nil {
			return nil, fmt.Errorf("object stream %d header: %w", streamNum, err)
		}
		body := scanner.New(data[first:])
		if err := body.Seek(off.Int); err != nil {
			return nil, err
		}
		obj, err := xref.ReadObject(body)
		if err != nil {
			return nil, fmt.Errorf("object %d in stream %d: %w", num.Int, streamNum, err)
		}
		objs[int(num.Int)] = obj
	}
	o.objstm[streamNum] = objs
	if obj, ok := objs[ref.Num]; ok {
		return obj, nil
	}
	return nil, fmt.Errorf("%s in object stream %d: %w", ref, streamNum, ErrObjectNotFound)
}

// Resolve follows references until it reaches a direct object. Dangling
// references resolve to null.
func (o *objectLoader) Resolve(ctx context.Context, obj raw.Object) (raw.Object, error) {
	for i := 0; i <= o.maxDepth; i++ {
		r, ok := obj.(raw.RefObj)
		if !ok {
			return obj, nil
		}
		next, err := o.Load(ctx, r.R)
		if errors.Is(err, ErrObjectNotFound) {
			return raw.NullObj{}, nil
		}
		if err != nil {
			return nil, err
		}
		obj = next
	}
	return nil, errors.New("reference chain too long")
}

// ResolveDeep returns a copy of obj with every reference replaced by its
// target. Objects reached through the same reference share one copy for the
// lifetime of the loader, and cycles are cut with null.
func (o *objectLoader) ResolveDeep(ctx context.Context, obj raw.Object) (raw.Object, error) {
	if o.deep == nil {
		o.deep = &deepResolver{loader: o, done: make(map[raw.ObjectRef]raw.Object), active: make(map[raw.ObjectRef]bool)}
	}
	return o.deep.resolve(ctx, obj, 0)
}

type deepResolver struct {
	loader *objectLoader
	done   map[raw.ObjectRef]raw.Object
	active map[raw.ObjectRef]bool
}

func (r *deepResolver) resolve(ctx context.Context, obj raw.Object, depth int) (raw.Object, error) {
	if depth > r.loader.maxDepth {
		return raw.NullObj{}, nil
	}
	switch v := obj.(type) {
	case raw.RefObj:
		if out, ok := r.done[v.R]; ok {
			return out, nil
		}
		if r.active[v.R] {
			return raw.NullObj{}, nil
		}
		target, err := r.loader.Resolve(ctx, v)
		if err != nil {
			return nil, err
		}
		r.active[v.R] = true
		out, err := r.resolve(ctx, target, depth+1)
		delete(r.active, v.R)
		if err != nil {
			return nil, err
		}
		r.done[v.R] = out
		return out, nil
	case *raw.DictObj:
		out := raw.Dict()
		for _, k := range v.Keys() {
			if k == "Parent" {
				continue
			}
			val, err := r.resolve(ctx, v.KV[k], depth+1)
			if err != nil {
				return nil, err
			}
			out.Set(k, val)
		}
		return out, nil
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, it := range v.Items {
			val, err := r.resolve(ctx, it, depth+1)
			if err != nil {
				return nil, err
			}
			out.Append(val)
		}
		return out, nil
	case *raw.StreamObj:
		if v.Dict == nil {
			return raw.NewStream(raw.Dict(), v.Data), nil
		}
		dict, err := r.resolve(ctx, v.Dict, depth+1)
		if err != nil {
			return nil, err
		}
		return raw.NewStream(dict.(*raw.DictObj), v.Data), nil
	default:
		return obj, nil
	}
}

func intValue(d *raw.DictObj, key string) int {
	if v, ok := d.Get(key); ok {
		if f, ok := raw.Float(v); ok {
			return int(f)
		}
	}
	return 0
}
