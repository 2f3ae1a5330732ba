// Package criteria defines the structured filters extracted from a free-text
// query. Each filter kind is its own type; a Set holds at most one per kind.
package criteria

import (
	"sort"
	"time"
)

// Kind identifies a filter variant. The values double as JSON keys.
type Kind string

const (
	KindSpeedCompare Kind = "speed_filter"
	KindSpeedRange   Kind = "speed_range"
	KindMotion       Kind = "moving"
	KindFuelType     Kind = "fuel_type"
	KindAlarm        Kind = "alarm"
	KindRegion       Kind = "region"
	KindDirection    Kind = "direction"
	KindName         Kind = "name"
	KindStatus       Kind = "status"
	KindDateRange    Kind = "date_range"
)

// Criterion is one filter. The set of implementations is closed.
type Criterion interface {
	Kind() Kind
	criterion()
}

// Op is a numeric comparison operator.
type Op string

const (
	OpGT Op = ">"
	OpLT Op = "<"
	OpGE Op = ">="
	OpLE Op = "<="
	OpEQ Op = "="
)

// Apply reports whether "v op target" holds. Unknown operators never match.
func (o Op) Apply(v, target float64) bool {
	switch o {
	case OpGT:
		return v > target
	case OpLT:
		return v < target
	case OpGE:
		return v >= target
	case OpLE:
		return v <= target
	case OpEQ:
		return v == target
	}
	return false
}

// SpeedCompare keeps records whose speed satisfies Op against Value (km/h).
type SpeedCompare struct {
	Op    Op      `json:"op"`
	Value float64 `json:"value"`
}

// SpeedRange keeps records whose speed lies in [Min, Max] (km/h).
type SpeedRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains is inclusive at both ends.
func (r SpeedRange) Contains(v float64) bool { return r.Min <= v && v <= r.Max }

// Motion keeps moving (speed > 0) or stationary records.
type Motion struct {
	Moving bool `json:"moving"`
}

type FuelType struct {
	Value string `json:"value"`
}

type Alarm struct {
	Code string `json:"code"`
}

// Region is matched as a case-insensitive substring of a location description.
type Region struct {
	Value string `json:"value"`
}

// Direction holds a compass label as produced by Heading, e.g. "North-East".
type Direction struct {
	Label string `json:"label"`
}

// Name is matched as a case-insensitive substring of the record name.
type Name struct {
	Value string `json:"value"`
}

// Order statuses recognised in queries.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Status struct {
	Value string `json:"value"`
}

// DateRange is the half-open interval [Start, End).
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls in [Start, End).
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

func (SpeedCompare) Kind() Kind { return KindSpeedCompare }
func (SpeedRange) Kind() Kind   { return KindSpeedRange }
func (Motion) Kind() Kind       { return KindMotion }
func (FuelType) Kind() Kind     { return KindFuelType }
func (Alarm) Kind() Kind        { return KindAlarm }
func (Region) Kind() Kind       { return KindRegion }
func (Direction) Kind() Kind    { return KindDirection }
func (Name) Kind() Kind         { return KindName }
func (Status) Kind() Kind       { return KindStatus }
func (DateRange) Kind() Kind    { return KindDateRange }

func (SpeedCompare) criterion() {}
func (SpeedRange) criterion()   {}
func (Motion) criterion()       {}
func (FuelType) criterion()     {}
func (Alarm) criterion()        {}
func (Region) criterion()       {}
func (Direction) criterion()    {}
func (Name) criterion()         {}
func (Status) criterion()       {}
func (DateRange) criterion()    {}

// Set maps each kind to its filter. The zero value is an empty, read-only set;
// use New or make before calling Put.
type Set map[Kind]Criterion

// New returns a set holding cs. Later entries of the same kind replace earlier ones.
func New(cs ...Criterion) Set {
	s := make(Set, len(cs))
	for _, c := range cs {
		s.Put(c)
	}
	return s
}

// Put stores c, replacing any filter of the same kind.
func (s Set) Put(c Criterion) { s[c.Kind()] = c }

// Has reports whether a filter of kind k is present.
func (s Set) Has(k Kind) bool {
	_, ok := s[k]
	return ok
}

// Remove deletes the filter of kind k, if any.
func (s Set) Remove(k Kind) { delete(s, k) }

// Empty reports whether the set carries no filter at all.
func (s Set) Empty() bool { return len(s) == 0 }

// Kinds returns the present kinds in sorted order.
func (s Set) Kinds() []Kind {
	out := make([]Kind, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Merge copies into s every filter of other whose kind s does not hold yet.
// Filters already present are never overridden.
func (s Set) Merge(other Set) {
	for k, c := range other {
		if _, ok := s[k]; !ok {
			s[k] = c
		}
	}
}

// HasNumericSpeed reports whether a speed comparison or range is present.
// Either one suppresses the plain motion filter.
func (s Set) HasNumericSpeed() bool {
	return s.Has(KindSpeedCompare) || s.Has(KindSpeedRange)
}

// Get returns the filter of type T, if present.
func Get[T Criterion](s Set) (T, bool) {
	var zero T
	c, ok := s[zero.Kind()]
	if !ok {
		return zero, false
	}
	t, ok := c.(T)
	return t, ok
}
