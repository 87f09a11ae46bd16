// Package feature is the registry of queryable physical quantities and the
// dataset variables they are read from.
package feature

import (
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type Feature int

const (
	Invalid Feature = iota
	Depth
	EastwardWaterSpeed
	NorthwardWaterSpeed
	EastwardWindSpeed
	NorthwardWindSpeed
	VerticalVelocity
	Temperature
	Salinity
	WaterVelocity
	WindVelocity
	CurrentMagnitude
	CurrentDirection
)

// Arity is the number of source variables read for a feature. Zero means the
// feature is derived from another one.
type Arity int

const (
	Derived Arity = 0
	Scalar  Arity = 1
	Vector  Arity = 2
)

func (a Arity) String() string {
	switch a {
	case Derived:
		return "derived"
	case Scalar:
		return "scalar"
	case Vector:
		return "vector"
	}
	return fmt.Sprintf("arity(%d)", int(a))
}

type Info struct {
	Feature Feature  `json:"-"`
	Name    string   `json:"name"`
	Arity   Arity    `json:"arity"`
	Vars    []string `json:"vars,omitempty"`
	Unit    string   `json:"unit,omitempty"`
	// Source is the vector feature a derived feature is computed from.
	Source Feature `json:"-"`
}

var (
	table  = orderedmap.New[string, Info]()
	byFeat = map[Feature]Info{}
)

func register(i Info) {
	if len(i.Vars) != int(i.Arity) {
		panic(fmt.Sprintf("feature %s: arity %d with %d vars", i.Name, i.Arity, len(i.Vars)))
	}
	if i.Arity == Derived && i.Source == Invalid {
		panic(fmt.Sprintf("feature %s: derived without source", i.Name))
	}
	table.Set(i.Name, i)
	byFeat[i.Feature] = i
}

func init() {
	register(Info{Feature: Depth, Name: "depth", Arity: Scalar, Vars: []string{"depth"}, Unit: "m"})
	register(Info{Feature: EastwardWaterSpeed, Name: "eastward-water-speed", Arity: Scalar, Vars: []string{"u_east"}, Unit: "m/s"})
	register(Info{Feature: NorthwardWaterSpeed, Name: "northward-water-speed", Arity: Scalar, Vars: []string{"v_north"}, Unit: "m/s"})
	register(Info{Feature: EastwardWindSpeed, Name: "eastward-wind-speed", Arity: Scalar, Vars: []string{"w_east"}, Unit: "m/s"})
	register(Info{Feature: NorthwardWindSpeed, Name: "northward-wind-speed", Arity: Scalar, Vars: []string{"w_north"}, Unit: "m/s"})
	register(Info{Feature: VerticalVelocity, Name: "vertical-velocity", Arity: Scalar, Vars: []string{"w_velocity"}, Unit: "m/s"})
	register(Info{Feature: Temperature, Name: "temperature", Arity: Scalar, Vars: []string{"temperature"}, Unit: "degC"})
	register(Info{Feature: Salinity, Name: "salinity", Arity: Scalar, Vars: []string{"salinity"}, Unit: "1e-3"})
	register(Info{Feature: WaterVelocity, Name: "water-velocity", Arity: Vector, Vars: []string{"u_east", "v_north"}, Unit: "m/s"})
	register(Info{Feature: WindVelocity, Name: "wind-velocity", Arity: Vector, Vars: []string{"w_east", "w_north"}, Unit: "m/s"})
	register(Info{Feature: CurrentMagnitude, Name: "current-magnitude", Arity: Derived, Source: WaterVelocity, Unit: "m/s"})
	register(Info{Feature: CurrentDirection, Name: "current-direction", Arity: Derived, Source: WaterVelocity, Unit: "deg"})
}

// Lookup resolves a feature by name in kebab, snake, camel or screaming case.
func Lookup(name string) (Feature, bool) {
	key := strcase.ToKebab(strings.TrimSpace(name))
	if i, ok := table.Get(key); ok {
		return i.Feature, true
	}
	return Invalid, false
}

// All lists the registry in declaration order.
func All() []Info {
	out := make([]Info, 0, table.Len())
	for p := table.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Value)
	}
	return out
}

func (f Feature) Info() Info { return byFeat[f] }

func (f Feature) Valid() bool {
	_, ok := byFeat[f]
	return ok
}

func (f Feature) String() string {
	if i, ok := byFeat[f]; ok {
		return i.Name
	}
	return fmt.Sprintf("feature(%d)", int(f))
}

func (f Feature) Arity() Arity { return byFeat[f].Arity }

// Var returns the single source variable of a scalar feature.
func (f Feature) Var() string {
	i := byFeat[f]
	if i.Arity != Scalar {
		return ""
	}
	return i.Vars[0]
}

// X and Y return the component variables of a vector feature.
func (f Feature) X() string {
	i := byFeat[f]
	if i.Arity != Vector {
		return ""
	}
	return i.Vars[0]
}

func (f Feature) Y() string {
	i := byFeat[f]
	if i.Arity != Vector {
		return ""
	}
	return i.Vars[1]
}

func (f Feature) Source() Feature { return byFeat[f].Source }

func (f Feature) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("marshal feature %d: unknown", int(f))
	}
	return []byte(f.String()), nil
}

func (f *Feature) UnmarshalText(b []byte) error {
	v, ok := Lookup(string(b))
	if !ok {
		return fmt.Errorf("unknown feature %q", string(b))
	}
	*f = v
	return nil
}
