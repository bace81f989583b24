package browser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"resq-mcp-server/internal/resq"
)

// ErrNoReactRoot is returned when a page holds no discoverable React root.
var ErrNoReactRoot = errors.New("react root not found")

// Snapshot is a decoded fiber graph together with the counters the page
// reported while serializing it.
type Snapshot struct {
	Root      *resq.Fiber
	Fibers    int
	Handles   int
	Truncated bool
}

type wireSnapshot struct {
	Root      *int        `json:"root"`
	Fibers    []wireFiber `json:"fibers"`
	Handles   int         `json:"handles"`
	Truncated bool        `json:"truncated"`
}

type wireType struct {
	Kind              string `json:"kind"`
	Name              string `json:"name"`
	DisplayName       string `json:"displayName"`
	StyledComponentID string `json:"styledComponentId"`
}

type wireFiber struct {
	ID        int          `json:"id"`
	Type      wireType     `json:"type"`
	Ctor      string       `json:"ctor"`
	Child     *int         `json:"child"`
	Sibling   *int         `json:"sibling"`
	Return    *int         `json:"return"`
	Props     any          `json:"props"`
	State     any          `json:"state"`
	StateNode *resq.Handle `json:"stateNode"`
}

// decodeSnapshot rebuilds the fiber graph serialized by snapshotReactJS.
func decodeSnapshot(raw []byte) (*Snapshot, error) {
	var ws wireSnapshot
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&ws); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if ws.Root == nil {
		return nil, ErrNoReactRoot
	}

	n := len(ws.Fibers)
	fibers := make([]*resq.Fiber, n)
	for i := range fibers {
		fibers[i] = &resq.Fiber{}
	}
	at := func(id *int) (*resq.Fiber, error) {
		if id == nil {
			return nil, nil
		}
		if *id < 0 || *id >= n {
			return nil, fmt.Errorf("decode snapshot: fiber id %d out of range", *id)
		}
		return fibers[*id], nil
	}

	vd := newValueDecoder()
	for _, wf := range ws.Fibers {
		vd.collect(wf.Props)
		vd.collect(wf.State)
	}

	for _, wf := range ws.Fibers {
		f, err := at(&wf.ID)
		if err != nil {
			return nil, err
		}
		if f.Child, err = at(wf.Child); err != nil {
			return nil, err
		}
		if f.Sibling, err = at(wf.Sibling); err != nil {
			return nil, err
		}
		if f.Return, err = at(wf.Return); err != nil {
			return nil, err
		}
		f.Type = decodeType(wf.Type)
		f.ConstructorName = wf.Ctor
		f.MemoizedProps = vd.build(wf.Props)
		f.MemoizedState = vd.build(wf.State)
		f.StateNode = wf.StateNode
	}

	root, err := at(ws.Root)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, ErrNoReactRoot
	}

	return &Snapshot{Root: root, Fibers: n, Handles: ws.Handles, Truncated: ws.Truncated}, nil
}

func decodeType(t wireType) resq.ElementType {
	switch t.Kind {
	case "function":
		return resq.ElementType{Kind: resq.TypeFunction, Name: t.Name, DisplayName: t.DisplayName}
	case "string":
		return resq.ElementType{Kind: resq.TypeString, Name: t.Name}
	case "object":
		return resq.ElementType{Kind: resq.TypeObject, DisplayName: t.DisplayName, StyledComponentID: t.StyledComponentID}
	default:
		return resq.ElementType{Kind: resq.TypeNone}
	}
}

// valueDecoder turns tagged wire values into resq values. Object and array
// ids are shared by the whole snapshot, so every container is allocated in
// collect before build fills it and back-references can point anywhere.
type valueDecoder struct {
	shells map[int]resq.Value
}

func newValueDecoder() *valueDecoder {
	return &valueDecoder{shells: make(map[int]resq.Value)}
}

func (d *valueDecoder) collect(v any) {
	switch x := v.(type) {
	case map[string]any:
		id, hasID := wireID(x)
		switch x["t"] {
		case "o":
			if hasID {
				d.shells[id] = resq.NewMap()
			}
		case "a":
			if hasID {
				d.shells[id] = resq.NewList()
			}
		default:
			return
		}
		if items, ok := x["v"].([]any); ok {
			for _, item := range items {
				d.collect(item)
			}
		}
	case []any:
		for _, item := range x {
			d.collect(item)
		}
	}
}

func (d *valueDecoder) build(v any) resq.Value {
	switch x := v.(type) {
	case nil:
		return resq.Null
	case bool:
		return resq.Bool(x)
	case float64:
		return resq.Number(x)
	case string:
		return resq.String(x)
	case []any:
		l := resq.NewList()
		for _, item := range x {
			l.Items = append(l.Items, d.build(item))
		}
		return l
	case map[string]any:
		return d.buildTagged(x)
	default:
		return &resq.Opaque{Desc: fmt.Sprintf("%T", v)}
	}
}

func (d *valueDecoder) buildTagged(x map[string]any) resq.Value {
	tag, _ := x["t"].(string)
	switch tag {
	case "u":
		return resq.Undefined
	case "d":
		switch x["v"] {
		case "Infinity":
			return resq.Number(math.Inf(1))
		case "-Infinity":
			return resq.Number(math.Inf(-1))
		default:
			return resq.Number(math.NaN())
		}
	case "f":
		name, _ := x["name"].(string)
		display, _ := x["displayName"].(string)
		return &resq.Func{Name: name, DisplayName: display}
	case "x":
		desc, _ := x["desc"].(string)
		return &resq.Opaque{Desc: desc}
	case "r":
		id, _ := wireID(x)
		if shell, ok := d.shells[id]; ok {
			return shell
		}
		return &resq.Opaque{Desc: "[Unresolved]"}
	case "o":
		m := d.shellMap(x)
		keys, _ := x["k"].([]any)
		vals, _ := x["v"].([]any)
		for i, k := range keys {
			key, ok := k.(string)
			if !ok {
				continue
			}
			var val resq.Value = resq.Undefined
			if i < len(vals) {
				val = d.build(vals[i])
			}
			m.Set(key, val)
		}
		return m
	case "a":
		l := d.shellList(x)
		items, _ := x["v"].([]any)
		for _, item := range items {
			l.Items = append(l.Items, d.build(item))
		}
		return l
	default:
		return &resq.Opaque{Desc: fmt.Sprintf("[unknown value tag %q]", tag)}
	}
}

func (d *valueDecoder) shellMap(x map[string]any) *resq.Map {
	if id, ok := wireID(x); ok {
		if m, ok := d.shells[id].(*resq.Map); ok {
			return m
		}
	}
	return resq.NewMap()
}

func (d *valueDecoder) shellList(x map[string]any) *resq.List {
	if id, ok := wireID(x); ok {
		if l, ok := d.shells[id].(*resq.List); ok {
			return l
		}
	}
	return resq.NewList()
}

func wireID(x map[string]any) (int, bool) {
	f, ok := x["id"].(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}
