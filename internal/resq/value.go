package resq

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"runtime"
	"sort"
	"strings"
)

// Kind enumerates the closed set of value shapes props and state can take.
type Kind int

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
	KindFunc
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindFunc:
		return "function"
	case KindOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Value is a props/state value read from the component tree. Lists, maps,
// functions and opaque values have reference identity; everything else is
// compared by value.
type Value interface {
	Kind() Kind
}

type undefinedValue struct{}

func (undefinedValue) Kind() Kind { return KindUndefined }

type nullValue struct{}

func (nullValue) Kind() Kind { return KindNull }

var (
	Undefined Value = undefinedValue{}
	Null      Value = nullValue{}
)

type Bool bool

func (Bool) Kind() Kind { return KindBool }

type Number float64

func (Number) Kind() Kind { return KindNumber }

type String string

func (String) Kind() Kind { return KindString }

// List is an ordered sequence.
type List struct {
	Items []Value
}

func (*List) Kind() Kind { return KindList }

// NewList returns a list holding items.
func NewList(items ...Value) *List {
	return &List{Items: items}
}

func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Items)
}

// Map is a keyed mapping that keeps insertion order.
type Map struct {
	keys   []string
	fields map[string]Value
}

func (*Map) Kind() Kind { return KindMap }

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{fields: make(map[string]Value)}
}

// Set stores v under key, appending key if it is new.
func (m *Map) Set(key string, v Value) *Map {
	if m.fields == nil {
		m.fields = make(map[string]Value)
	}
	if _, ok := m.fields[key]; !ok {
		m.keys = append(m.keys, key)
	}
	if v == nil {
		v = Undefined
	}
	m.fields[key] = v
	return m
}

// Get returns the value stored under key and whether the key exists.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Undefined, false
	}
	v, ok := m.fields[key]
	if !ok {
		return Undefined, false
	}
	return v, true
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// without returns a shallow copy of m with key removed.
func (m *Map) without(key string) *Map {
	out := NewMap()
	for _, k := range m.keys {
		if k == key {
			continue
		}
		out.Set(k, m.fields[k])
	}
	return out
}

// Func describes a function value. Functions are never valid filter matchers.
type Func struct {
	Name        string
	DisplayName string
}

func (*Func) Kind() Kind { return KindFunc }

// Opaque stands in for values with no structural meaning here: symbols,
// platform nodes, runtime elements and values cut off by a depth limit.
type Opaque struct {
	Desc string
}

func (*Opaque) Kind() Kind { return KindOpaque }

// ValueOf converts a Go value into a Value. Maps and slices become *Map and
// *List; a map or slice reachable from itself converts to the same pointer so
// cyclic inputs stay cyclic.
func ValueOf(v any) Value {
	return valueOf(reflect.ValueOf(v), map[seenKey]Value{})
}

// seenKey identifies a converted map or slice. Slices sharing a backing array
// differ by length.
type seenKey struct {
	ptr uintptr
	len int
	typ reflect.Type
}

func valueOf(rv reflect.Value, seen map[seenKey]Value) Value {
	if !rv.IsValid() {
		return Null
	}
	if rv.CanInterface() {
		switch x := rv.Interface().(type) {
		case Value:
			if x == nil {
				return Null
			}
			return x
		case json.Number:
			f, err := x.Float64()
			if err != nil {
				return String(x.String())
			}
			return Number(f)
		}
	}

	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return Null
		}
		return valueOf(rv.Elem(), seen)
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.String:
		return String(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float())
	case reflect.Map:
		if rv.IsNil() {
			return Null
		}
		if rv.Type().Key().Kind() != reflect.String {
			return &Opaque{Desc: rv.Type().String()}
		}
		key := seenKey{ptr: rv.Pointer(), typ: rv.Type()}
		if v, ok := seen[key]; ok {
			return v
		}
		m := NewMap()
		seen[key] = m
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		for _, k := range keys {
			m.Set(k.String(), valueOf(rv.MapIndex(k), seen))
		}
		return m
	case reflect.Slice:
		if rv.IsNil() {
			return Null
		}
		key := seenKey{ptr: rv.Pointer(), len: rv.Len(), typ: rv.Type()}
		if rv.Len() > 0 {
			if v, ok := seen[key]; ok {
				return v
			}
		}
		l := &List{Items: make([]Value, 0, rv.Len())}
		if rv.Len() > 0 {
			seen[key] = l
		}
		for i := 0; i < rv.Len(); i++ {
			l.Items = append(l.Items, valueOf(rv.Index(i), seen))
		}
		return l
	case reflect.Array:
		l := &List{Items: make([]Value, 0, rv.Len())}
		for i := 0; i < rv.Len(); i++ {
			l.Items = append(l.Items, valueOf(rv.Index(i), seen))
		}
		return l
	case reflect.Func:
		if rv.IsNil() {
			return Null
		}
		name := ""
		if fn := runtime.FuncForPC(rv.Pointer()); fn != nil {
			name = fn.Name()
			if i := strings.LastIndex(name, "."); i >= 0 {
				name = name[i+1:]
			}
		}
		return &Func{Name: name}
	default:
		return &Opaque{Desc: rv.Type().String()}
	}
}

// Export converts v into plain Go values suitable for encoding/json. Values
// already being exported higher up the stack are replaced by "[Circular]".
func Export(v Value) any {
	return export(v, map[Value]struct{}{})
}

func export(v Value, stack map[Value]struct{}) any {
	switch x := v.(type) {
	case nil, undefinedValue, nullValue:
		return nil
	case Bool:
		return bool(x)
	case Number:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
		return f
	case String:
		return string(x)
	case *List:
		if _, ok := stack[x]; ok {
			return "[Circular]"
		}
		stack[x] = struct{}{}
		defer delete(stack, x)
		out := make([]any, 0, len(x.Items))
		for _, item := range x.Items {
			out = append(out, export(item, stack))
		}
		return out
	case *Map:
		if _, ok := stack[x]; ok {
			return "[Circular]"
		}
		stack[x] = struct{}{}
		defer delete(stack, x)
		out := make(map[string]any, len(x.keys))
		for _, k := range x.keys {
			out[k] = export(x.fields[k], stack)
		}
		return out
	case *Func:
		name := x.DisplayName
		if name == "" {
			name = x.Name
		}
		return "[Function " + name + "]"
	case *Opaque:
		return x.Desc
	default:
		return nil
	}
}

// truthy mirrors JavaScript truthiness for the scalar cases.
func truthy(v Value) bool {
	switch x := v.(type) {
	case nil, undefinedValue, nullValue:
		return false
	case Bool:
		return bool(x)
	case Number:
		f := float64(x)
		return f != 0 && !math.IsNaN(f)
	case String:
		return x != ""
	default:
		return true
	}
}

// strictEqual is JavaScript's === over the value variant.
func strictEqual(a, b Value) bool {
	if a == nil {
		a = Undefined
	}
	if b == nil {
		b = Undefined
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case undefinedValue, nullValue:
		return true
	case Bool:
		return x == b.(Bool)
	case Number:
		return float64(x) == float64(b.(Number))
	case String:
		return x == b.(String)
	default:
		return a == b
	}
}

// sameValueZero is strictEqual except that NaN equals NaN.
func sameValueZero(a, b Value) bool {
	if x, ok := a.(Number); ok {
		if y, ok := b.(Number); ok && math.IsNaN(float64(x)) && math.IsNaN(float64(y)) {
			return true
		}
	}
	return strictEqual(a, b)
}

type valuePair struct {
	a, b Value
}

// deepEqual compares a and b structurally. A pair of containers already under
// comparison higher up the stack compares unequal, so cyclic inputs terminate.
func deepEqual(a, b Value, stack map[valuePair]struct{}) bool {
	if strictEqual(a, b) {
		return true
	}
	switch x := a.(type) {
	case Number:
		y, ok := b.(Number)
		return ok && math.IsNaN(float64(x)) && math.IsNaN(float64(y))
	case *List:
		y, ok := b.(*List)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}
		p := valuePair{a, b}
		if _, busy := stack[p]; busy {
			return false
		}
		stack[p] = struct{}{}
		defer delete(stack, p)
		for i := range x.Items {
			if !deepEqual(x.Items[i], y.Items[i], stack) {
				return false
			}
		}
		return true
	case *Map:
		y, ok := b.(*Map)
		if !ok || len(x.keys) != len(y.keys) {
			return false
		}
		p := valuePair{a, b}
		if _, busy := stack[p]; busy {
			return false
		}
		stack[p] = struct{}{}
		defer delete(stack, p)
		for _, k := range x.keys {
			yv, ok := y.fields[k]
			if !ok {
				return false
			}
			if !deepEqual(x.fields[k], yv, stack) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
