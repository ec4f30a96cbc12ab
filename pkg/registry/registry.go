package registry

import (
	"fmt"
	"sync"

	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

// Record is one immutable configuration parameter entry (spec §3.1).
// Records are installed once at Init and never mutated afterward.
type Record struct {
	Name        string
	WireID      int // sparse wire config id, < 16384
	Index       int // dense process-wide index, assigned at Init
	Kind        types.ValueKind
	Default     types.Value
	Min, Max    uint64
	HasMin      bool
	HasMax      bool
	Applicable  types.NodeKindMask
	ChangeClass types.ChangeClass
	Version     types.VersionWindow
	Flags       types.Flags

	// MandatoryBit is this record's bit position (0..63) in the
	// per-kind mandatory mask, valid only when Flags.Mandatory is set.
	MandatoryBit uint
}

// Registry is the process-wide parameter table (spec §4.A). Zero value is
// not usable; construct with New and call Init exactly once.
type Registry struct {
	mu sync.RWMutex

	initialized bool

	byIndex  []*Record
	byWireID map[int]*Record
	byName   map[string]*Record

	mandatoryMask [10]uint64 // indexed by types.NodeKind
}

func New() *Registry {
	return &Registry{
		byWireID: make(map[int]*Record),
		byName:   make(map[string]*Record),
	}
}

// Init installs records, builds the id/name indexes, and computes the
// per-kind mandatory mask. It is guarded by an idempotence flag: a second
// call is a no-op. Duplicate wire ids, duplicate names, or a mandatory bit
// position colliding within a kind are build-time invariant violations and
// panic rather than return an error, matching the original's fatal abort.
func (r *Registry) Init(records []*Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return
	}

	usedMandatoryBit := make(map[types.NodeKind]uint64)

	for i, rec := range records {
		if _, dup := r.byWireID[rec.WireID]; dup {
			panic(fmt.Sprintf("registry: duplicate wire id %d (%s)", rec.WireID, rec.Name))
		}
		if _, dup := r.byName[rec.Name]; dup {
			panic(fmt.Sprintf("registry: duplicate name %q", rec.Name))
		}
		if rec.Flags.StringType && rec.Kind != types.ValueString {
			panic(fmt.Sprintf("registry: %q marked string-type but Kind != ValueString", rec.Name))
		}
		if rec.HasMin && rec.HasMax && rec.Default.Kind != types.ValueString {
			if rec.Default.Uint() < rec.Min || rec.Default.Uint() > rec.Max {
				panic(fmt.Sprintf("registry: %q default out of [min,max] bounds", rec.Name))
			}
		}

		cp := *rec
		cp.Index = i
		r.byIndex = append(r.byIndex, &cp)
		r.byWireID[cp.WireID] = &cp
		r.byName[cp.Name] = &cp

		if cp.Flags.Mandatory {
			bit := uint64(1) << cp.MandatoryBit
			for k := types.KindDataServer; int(k) < 10; k++ {
				if !cp.Applicable.Has(k) {
					continue
				}
				if usedMandatoryBit[k]&bit != 0 {
					panic(fmt.Sprintf("registry: mandatory bit %d collides within kind %s", cp.MandatoryBit, k))
				}
				usedMandatoryBit[k] |= bit
				r.mandatoryMask[k] |= bit
			}
		}
	}

	r.initialized = true
}

// LookupByWireID returns the record for a wire config id.
func (r *Registry) LookupByWireID(id int) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byWireID[id]
	if !ok {
		return nil, icerr.New(icerr.UnknownParameter, "no parameter with wire id %d", id)
	}
	return rec, nil
}

// LookupByName returns the record for a parameter name.
func (r *Registry) LookupByName(name string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byName[name]
	if !ok {
		return nil, icerr.New(icerr.UnknownParameter, "no parameter named %q", name)
	}
	return rec, nil
}

// MandatoryMask returns the OR of every mandatory parameter's bit
// applicable to kind, computed once at Init.
func (r *Registry) MandatoryMask(kind types.NodeKind) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mandatoryMask[kind]
}

// Applicable reports whether rec applies to kind at the given base/extended
// version (spec §4.A applicable_to).
func Applicable(rec *Record, kind types.NodeKind, base, ext int) bool {
	if !rec.Applicable.Has(kind) {
		return false
	}
	if !rec.Version.Contains(base, ext) {
		return false
	}
	if rec.Flags.IClaustronOnly && ext == 0 {
		return false
	}
	return true
}

// FillDefaults writes the default value of every record whose kind bit is
// set in kind into vals, keyed by Index — the map-based analogue of the
// original's struct-offset write (spec §4.A fill_defaults; see DESIGN.md).
func (r *Registry) FillDefaults(vals map[int]types.Value, kind types.NodeKind) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.byIndex {
		if !rec.Applicable.Has(kind) {
			continue
		}
		vals[rec.Index] = rec.Default
	}
}

// All returns every installed record, ordered by Index.
func (r *Registry) All() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Record, len(r.byIndex))
	copy(out, r.byIndex)
	return out
}
