package core

import (
	"errors"
	"sync"
)

// ParamKind tags the variant held by a Param.
type ParamKind uint8

const (
	ParamFloat ParamKind = iota
	ParamInt
	ParamBool
)

func (k ParamKind) String() string {
	switch k {
	case ParamFloat:
		return "float"
	case ParamInt:
		return "int"
	case ParamBool:
		return "bool"
	}
	return "unknown"
}

// Access marks a parameter read-only or read-write.
type Access uint8

const (
	ReadOnly Access = iota
	ReadWrite
)

// Value is a tagged parameter value.
type Value struct {
	Kind ParamKind
	F    float32
	I    int32
	B    bool
}

// Float, Int and Bool build tagged values.
func Float(f float32) Value { return Value{Kind: ParamFloat, F: f} }
func Int(i int32) Value     { return Value{Kind: ParamInt, I: i} }
func Bool(b bool) Value     { return Value{Kind: ParamBool, B: b} }

// String renders the value the way the monitor prints it.
func (v Value) String() string {
	switch v.Kind {
	case ParamFloat:
		return ftoa(v.F, 6)
	case ParamInt:
		return itoa(int(v.I))
	case ParamBool:
		if v.B {
			return "1"
		}
		return "0"
	}
	return ""
}

// Param references one exposed field.
type Param struct {
	Name   string
	Kind   ParamKind
	Access Access
	get    func() Value
	set    func(Value) error
}

// FloatParam exposes a float32 field.
func FloatParam(name string, p *float32, access Access) Param {
	return Param{
		Name:   name,
		Kind:   ParamFloat,
		Access: access,
		get:    func() Value { return Float(*p) },
		set: func(v Value) error {
			*p = v.F
			return nil
		},
	}
}

// IntParam exposes an int32 field.
func IntParam(name string, p *int32, access Access) Param {
	return Param{
		Name:   name,
		Kind:   ParamInt,
		Access: access,
		get:    func() Value { return Int(*p) },
		set: func(v Value) error {
			*p = v.I
			return nil
		},
	}
}

// BoolParam exposes a bool field.
func BoolParam(name string, p *bool, access Access) Param {
	return Param{
		Name:   name,
		Kind:   ParamBool,
		Access: access,
		get:    func() Value { return Bool(*p) },
		set: func(v Value) error {
			*p = v.B
			return nil
		},
	}
}

// FuncParam exposes a value behind accessors, for fields that are atomics or
// need side effects on write. set may be nil for read-only parameters and
// returns ErrParamRange for values it refuses.
func FuncParam(name string, kind ParamKind, get func() Value, set func(Value) error) Param {
	access := ReadOnly
	if set != nil {
		access = ReadWrite
	}
	return Param{Name: name, Kind: kind, Access: access, get: get, set: set}
}

// Registry errors
var (
	ErrParamIndex    = errors.New("parameter index out of range")
	ErrParamName     = errors.New("unknown parameter")
	ErrParamReadOnly = errors.New("parameter is read-only")
	ErrParamType     = errors.New("parameter type mismatch")
	ErrParamRange    = errors.New("parameter value out of range")
	ErrParamExists   = errors.New("parameter name already registered")
	ErrMonitorSlot   = errors.New("monitor slot out of range")
)

// MonitorSlots is the number of parameters the monitor line can carry.
const MonitorSlots = 20

// Registry holds all exposed parameters, addressable by flat index or name.
type Registry struct {
	mu      sync.RWMutex
	params  []Param
	byName  map[string]int
	monitor [MonitorSlots]int // parameter index + 1, 0 = empty
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]int)}
}

// Add registers a parameter and returns its flat index.
func (r *Registry) Add(p Param) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[p.Name]; exists {
		return 0, ErrParamExists
	}
	idx := len(r.params)
	r.params = append(r.params, p)
	r.byName[p.Name] = idx
	return idx, nil
}

// Len returns the number of registered parameters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.params)
}

// Lookup returns the flat index of a named parameter.
func (r *Registry) Lookup(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	return idx, ok
}

// Describe returns the parameter at idx.
func (r *Registry) Describe(idx int) (Param, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.params) {
		return Param{}, ErrParamIndex
	}
	return r.params[idx], nil
}

// Get reads the parameter at idx.
func (r *Registry) Get(idx int) (Value, error) {
	p, err := r.Describe(idx)
	if err != nil {
		return Value{}, err
	}
	return p.get(), nil
}

// Set writes the parameter at idx. The value's kind must match.
func (r *Registry) Set(idx int, v Value) error {
	p, err := r.Describe(idx)
	if err != nil {
		return err
	}
	if p.Access != ReadWrite || p.set == nil {
		return ErrParamReadOnly
	}
	if p.Kind != v.Kind {
		return ErrParamType
	}
	return p.set(v)
}

// GetByName reads a named parameter.
func (r *Registry) GetByName(name string) (Value, error) {
	idx, ok := r.Lookup(name)
	if !ok {
		return Value{}, ErrParamName
	}
	return r.Get(idx)
}

// SetByName writes a named parameter.
func (r *Registry) SetByName(name string, v Value) error {
	idx, ok := r.Lookup(name)
	if !ok {
		return ErrParamName
	}
	return r.Set(idx, v)
}

// SetMonitor points a monitor slot at a parameter; idx < 0 clears the slot.
func (r *Registry) SetMonitor(slot, idx int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot < 0 || slot >= MonitorSlots {
		return ErrMonitorSlot
	}
	if idx < 0 {
		r.monitor[slot] = 0
		return nil
	}
	if idx >= len(r.params) {
		return ErrParamIndex
	}
	r.monitor[slot] = idx + 1
	return nil
}

// MonitorLine renders the first limit slots as tab-separated values.
// Rendering stops at the first empty slot.
func (r *Registry) MonitorLine(limit int) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit > MonitorSlots {
		limit = MonitorSlots
	}
	line := ""
	for i := 0; i < limit; i++ {
		idx := r.monitor[i] - 1
		if idx < 0 {
			break
		}
		line += r.params[idx].get().String() + "\t"
	}
	return line
}

// WriteMonitor sends the monitor line to the debug writer.
func (r *Registry) WriteMonitor(limit int) {
	if debugPrintln != nil {
		debugPrintln(r.MonitorLine(limit))
	}
}
