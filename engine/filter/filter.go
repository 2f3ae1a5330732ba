// Package filter applies a criteria set to vehicle or order records. Both
// evaluators return the retained records with a one-sentence summary; records
// that could not be evaluated are reported as exclusions rather than errors.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/fleetdesk/fleetrag/engine/criteria"
	"github.com/fleetdesk/fleetrag/engine/domain"
)

// ReasonUnparsable marks a record whose timestamp could not be read.
const ReasonUnparsable = "unparsable"

// Exclusion records why a record was dropped for a reason other than a
// failed predicate.
type Exclusion struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of one evaluation.
type Result[R any] struct {
	Matches  []R
	Summary  string
	Excluded []Exclusion
}

// A predicate reports whether r passes one filter.
type predicate[R any] func(r R) bool

// Vehicles keeps the vehicles passing every filter in set. Filters run in a
// fixed order and stop at the first failure.
func Vehicles(vs []domain.Vehicle, set criteria.Set) Result[domain.Vehicle] {
	preds := vehiclePredicates(set)
	res := Result[domain.Vehicle]{Matches: []domain.Vehicle{}, Summary: DescribeVehicles(set)}
	for _, v := range vs {
		if all(preds, v) {
			res.Matches = append(res.Matches, v)
		}
	}
	return res
}

func vehiclePredicates(set criteria.Set) []predicate[domain.Vehicle] {
	var ps []predicate[domain.Vehicle]
	if n, ok := criteria.Get[criteria.Name](set); ok {
		want := strings.ToLower(n.Value)
		ps = append(ps, func(v domain.Vehicle) bool {
			return strings.Contains(strings.ToLower(v.Name), want)
		})
	}
	if m, ok := criteria.Get[criteria.Motion](set); ok && !set.HasNumericSpeed() {
		ps = append(ps, func(v domain.Vehicle) bool { return v.Moving() == m.Moving })
	}
	if a, ok := criteria.Get[criteria.Alarm](set); ok {
		ps = append(ps, func(v domain.Vehicle) bool { return v.AlarmCode() == a.Code })
	}
	if f, ok := criteria.Get[criteria.FuelType](set); ok {
		ps = append(ps, func(v domain.Vehicle) bool { return v.Profile.FuelType == f.Value })
	}
	if r, ok := criteria.Get[criteria.Region](set); ok {
		want := strings.ToLower(r.Value)
		ps = append(ps, func(v domain.Vehicle) bool {
			return strings.Contains(strings.ToLower(v.LocationDesc), want)
		})
	}
	if d, ok := criteria.Get[criteria.Direction](set); ok {
		ps = append(ps, func(v domain.Vehicle) bool {
			// A missing heading is Unknown and never equals a compass label.
			return strings.EqualFold(criteria.Heading(v.LastUpdate.Angle), d.Label)
		})
	}
	if r, ok := criteria.Get[criteria.SpeedRange](set); ok {
		ps = append(ps, func(v domain.Vehicle) bool { return r.Contains(v.LastUpdate.Speed) })
	}
	if c, ok := criteria.Get[criteria.SpeedCompare](set); ok {
		ps = append(ps, func(v domain.Vehicle) bool { return c.Op.Apply(v.LastUpdate.Speed, c.Value) })
	}
	return ps
}

// DescribeVehicles phrases the active vehicle filters as a listing header.
func DescribeVehicles(set criteria.Set) string {
	var clauses []string
	if m, ok := criteria.Get[criteria.Motion](set); ok && !set.HasNumericSpeed() {
		if m.Moving {
			clauses = append(clauses, "currently moving")
		} else {
			clauses = append(clauses, "currently stationary")
		}
	}
	if f, ok := criteria.Get[criteria.FuelType](set); ok {
		clauses = append(clauses, fmt.Sprintf("with fuel type '%s'", f.Value))
	}
	if a, ok := criteria.Get[criteria.Alarm](set); ok {
		clauses = append(clauses, fmt.Sprintf("with alarm '%s'", a.Code))
	}
	if r, ok := criteria.Get[criteria.Region](set); ok {
		clauses = append(clauses, fmt.Sprintf("in region '%s'", r.Value))
	}
	if d, ok := criteria.Get[criteria.Direction](set); ok {
		clauses = append(clauses, fmt.Sprintf("heading '%s'", d.Label))
	}
	if n, ok := criteria.Get[criteria.Name](set); ok {
		clauses = append(clauses, fmt.Sprintf("named like '%s'", n.Value))
	}
	if r, ok := criteria.Get[criteria.SpeedRange](set); ok {
		clauses = append(clauses, fmt.Sprintf("speed between %s and %s km/h", num(r.Min), num(r.Max)))
	}
	if c, ok := criteria.Get[criteria.SpeedCompare](set); ok {
		clauses = append(clauses, fmt.Sprintf("speed %s %s km/h", c.Op, num(c.Value)))
	}
	if len(clauses) == 0 {
		return "The following vehicles match your criteria:"
	}
	return "The following vehicles " + strings.Join(clauses, " and ") + ":"
}

// Orders keeps the orders passing the status and date-range filters in set.
// Orders whose created_at cannot be parsed are excluded from a date filter
// and listed in Result.Excluded. Naive timestamps are read in loc.
func Orders(orders []domain.Order, set criteria.Set, loc *time.Location) Result[domain.Order] {
	res := Result[domain.Order]{Matches: []domain.Order{}}
	st, hasStatus := criteria.Get[criteria.Status](set)
	status := strings.ToLower(st.Value)
	dr, hasRange := criteria.Get[criteria.DateRange](set)

	for i, o := range orders {
		if hasStatus && !strings.Contains(strings.ToLower(o.StatusName), status) {
			continue
		}
		if hasRange {
			created, err := o.Created(loc)
			if err != nil {
				res.Excluded = append(res.Excluded, Exclusion{Index: i, Reason: ReasonUnparsable, Detail: o.CreatedAt})
				continue
			}
			if !dr.Contains(created) {
				continue
			}
		}
		res.Matches = append(res.Matches, o)
	}

	switch {
	case hasRange:
		res.Summary = fmt.Sprintf("%d orders created between %s and %s.",
			len(res.Matches), dr.Start.Format(time.DateOnly), dr.End.Format(time.DateOnly))
	case len(res.Matches) > 0:
		res.Summary = fmt.Sprintf("%d matching orders found.", len(res.Matches))
	default:
		res.Summary = "No orders matched."
	}
	return res
}

func all[R any](ps []predicate[R], r R) bool {
	for _, p := range ps {
		if !p(r) {
			return false
		}
	}
	return true
}

func num(f float64) string { return fmt.Sprintf("%g", f) }
