package rag

import (
	"regexp"
	"strings"
	"time"

	"github.com/fleetdesk/fleetrag/engine/criteria"
	"github.com/fleetdesk/fleetrag/engine/domain"
	"github.com/fleetdesk/fleetrag/engine/filter"
	"github.com/fleetdesk/fleetrag/pkg/ordernlp"
	"github.com/fleetdesk/fleetrag/pkg/vehiclenlp"
)

// Domain configures the dispatcher for one record type.
type Domain[R any] struct {
	Name string

	// KeyPattern recognises a record identifier in the upper-cased query.
	// A nil pattern disables the exact-key branch.
	KeyPattern *regexp.Regexp
	// KeyField is the flattened field compared against the identifier.
	KeyField string
	// KeyMissFormat renders the not-found answer; %s is the identifier.
	KeyMissFormat string

	Extract func(text string, now time.Time) criteria.Set
	Filter  func(records []R, set criteria.Set) filter.Result[R]
	Render  func(summary string, top []R, set criteria.Set) string

	NoMatchMessage string
	// ComposeFiltered hands the filtered block to the generator instead of
	// returning it verbatim.
	ComposeFiltered bool
}

func (d Domain[R]) extractKey(question string) (string, bool) {
	if d.KeyPattern == nil {
		return "", false
	}
	k := d.KeyPattern.FindString(strings.ToUpper(question))
	return k, k != ""
}

// OrderNumberPattern matches order identifiers such as ON12345.
var OrderNumberPattern = regexp.MustCompile(`\b[A-Z]{2}\d{5,}\b`)

// OrderDomain answers order questions. Naive timestamps are read in loc.
func OrderDomain(loc *time.Location) Domain[domain.Order] {
	if loc == nil {
		loc = time.Local
	}
	return Domain[domain.Order]{
		Name:          "orders",
		KeyPattern:    OrderNumberPattern,
		KeyField:      "orderno",
		KeyMissFormat: "No order found with order number %s",
		Extract: func(text string, now time.Time) criteria.Set {
			return ordernlp.ExtractCriteria(text, now.In(loc))
		},
		Filter: func(records []domain.Order, set criteria.Set) filter.Result[domain.Order] {
			return filter.Orders(records, set, loc)
		},
		Render: func(summary string, top []domain.Order, _ criteria.Set) string {
			parts := make([]string, len(top))
			for i, o := range top {
				parts[i] = domain.FormatOrder(o)
			}
			return summary + "\n\n" + strings.Join(parts, "\n\n")
		},
		NoMatchMessage: "No orders matched your query.",
	}
}

// VehicleDomain answers fleet questions. Filtered listings are phrased by
// the generator when one is configured.
func VehicleDomain() Domain[domain.Vehicle] {
	return Domain[domain.Vehicle]{
		Name: "vehicles",
		Extract: func(text string, _ time.Time) criteria.Set {
			return vehiclenlp.ExtractCriteria(text)
		},
		Filter: filter.Vehicles,
		Render: func(summary string, top []domain.Vehicle, set criteria.Set) string {
			return summary + "\n" + strings.Join(domain.FormatVehicleList(top, set), "\n")
		},
		NoMatchMessage:  "No matching vehicles found.",
		ComposeFiltered: true,
	}
}
