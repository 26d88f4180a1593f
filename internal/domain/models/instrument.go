package models

import (
	"sort"
	"strings"

	"CandlePull/internal/domain/errs"
)

// Instrument is a tradable symbol known to the store.
type Instrument struct {
	Name   string `json:"name" yaml:"name"`
	Index  int    `json:"index" yaml:"index"`
	Digits int    `json:"digits" yaml:"digits"`
}

func (i Instrument) String() string { return i.Name }

// DefaultInstruments are the symbols the candles table is seeded with.
var DefaultInstruments = []Instrument{
	{Name: "EURGBP", Index: 1, Digits: 5},
	{Name: "EURJPY", Index: 2, Digits: 3},
	{Name: "EURUSD", Index: 3, Digits: 5},
	{Name: "GBPJPY", Index: 4, Digits: 3},
	{Name: "GBPUSD", Index: 5, Digits: 5},
	{Name: "USDJPY", Index: 6, Digits: 3},
}

// InstrumentRegistry is an immutable name/index lookup table.
type InstrumentRegistry struct {
	byName  map[string]Instrument
	byIndex map[int]Instrument
}

// NewInstrumentRegistry validates the list and freezes it.
func NewInstrumentRegistry(list ...Instrument) (*InstrumentRegistry, error) {
	r := &InstrumentRegistry{
		byName:  make(map[string]Instrument, len(list)),
		byIndex: make(map[int]Instrument, len(list)),
	}
	for _, inst := range list {
		inst.Name = strings.ToUpper(strings.TrimSpace(inst.Name))
		if inst.Name == "" {
			return nil, errs.Configuration("instrument name is empty")
		}
		if inst.Digits < 0 {
			return nil, errs.Configurationf("instrument %s: digits must be >= 0, got %d", inst.Name, inst.Digits).
				WithParam("digits", inst.Digits)
		}
		if _, dup := r.byName[inst.Name]; dup {
			return nil, errs.Configurationf("instrument %s registered twice", inst.Name)
		}
		if other, dup := r.byIndex[inst.Index]; dup {
			return nil, errs.Configurationf("instruments %s and %s share index %d", other.Name, inst.Name, inst.Index)
		}
		r.byName[inst.Name] = inst
		r.byIndex[inst.Index] = inst
	}
	return r, nil
}

// MustInstrumentRegistry panics on an invalid list. Intended for package-level defaults.
func MustInstrumentRegistry(list ...Instrument) *InstrumentRegistry {
	r, err := NewInstrumentRegistry(list...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup resolves a name case-insensitively.
func (r *InstrumentRegistry) Lookup(name string) (Instrument, error) {
	inst, ok := r.byName[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Instrument{}, errs.Resolutionf("unknown instrument %q", name).WithField("instrument")
	}
	return inst, nil
}

// ByIndex resolves a database index.
func (r *InstrumentRegistry) ByIndex(index int) (Instrument, error) {
	inst, ok := r.byIndex[index]
	if !ok {
		return Instrument{}, errs.Resolutionf("unknown instrument index %d", index)
	}
	return inst, nil
}

// All returns instruments ordered by index.
func (r *InstrumentRegistry) All() []Instrument {
	out := make([]Instrument, 0, len(r.byIndex))
	for _, inst := range r.byIndex {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
