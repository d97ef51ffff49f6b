package blocks

import "sync"

// Registry is a process-wide mapping from block type to BlockSpec (§4.1),
// generalizing the teacher's Registry.RegisterAllTools table-building
// pattern. Procedure registration/unregistration (§4.6, §5) happens
// through a separate, unit-scoped overlay — see ProcedureOverlay — so the
// base Registry stays process-wide and immutable after startup while
// per-file procedures come and go with each scheduling unit.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]BlockSpec
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]BlockSpec)}
}

// Register adds or replaces a BlockSpec by type. Per spec.md §9's open
// question, last registration wins when two specs share a Type — this
// applies uniformly whether the second registration is another built-in
// or a procedure overlay entry (see ProcedureOverlay.Register).
func (r *Registry) Register(spec BlockSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Type] = spec
}

// Lookup returns the BlockSpec registered for typ, if any.
func (r *Registry) Lookup(typ string) (BlockSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[typ]
	return s, ok
}

// ProcedureOverlay is a unit-scoped registry layered on top of a base
// Registry: lookups check the overlay first, falling back to the base.
// This implements §4.6's per-file procedure registration and §5's
// "procedure dispatch table mutations happen only at unit start/end"
// without mutating the shared, process-wide base Registry.
type ProcedureOverlay struct {
	base  *Registry
	specs map[string]BlockSpec
}

// NewProcedureOverlay creates an overlay bound to base.
func NewProcedureOverlay(base *Registry) *ProcedureOverlay {
	return &ProcedureOverlay{base: base, specs: make(map[string]BlockSpec)}
}

// Register adds a procedure-backed BlockSpec to the overlay. A later
// Register with the same Type replaces the earlier one (last wins),
// including shadowing a same-named built-in for the unit's duration
// (§E.1 of SPEC_FULL.md).
func (o *ProcedureOverlay) Register(spec BlockSpec) {
	o.specs[spec.Type] = spec
}

// Lookup checks the overlay first, then the base Registry.
func (o *ProcedureOverlay) Lookup(typ string) (BlockSpec, bool) {
	if s, ok := o.specs[typ]; ok {
		return s, true
	}
	return o.base.Lookup(typ)
}
