package vehiclenlp

import (
	"reflect"
	"testing"

	"github.com/fleetdesk/fleetrag/engine/criteria"
)

func TestExtractCriteria(t *testing.T) {
	tests := []struct {
		input string
		want  criteria.Set
	}{
		{"vehicles faster than 60", criteria.New(criteria.SpeedCompare{Op: ">", Value: 60})},
		{"Vehicles slower than 20 km/h", criteria.New(criteria.SpeedCompare{Op: "<", Value: 20})},
		{"at least 50", criteria.New(criteria.SpeedCompare{Op: ">=", Value: 50})},
		{"at or below 30", criteria.New(criteria.SpeedCompare{Op: "<=", Value: 30})},
		{"exactly 40", criteria.New(criteria.SpeedCompare{Op: "=", Value: 40})},
		{"vehicles doing 70", criteria.New(criteria.SpeedCompare{Op: "=", Value: 70})},
		{"speed > 80", criteria.New(criteria.SpeedCompare{Op: ">", Value: 80})},
		{"speed >= 80", criteria.New(criteria.SpeedCompare{Op: ">=", Value: 80})},
		{"travelling <35", criteria.New(criteria.SpeedCompare{Op: "<", Value: 35})},
		{"speed more than 45", criteria.New(criteria.SpeedCompare{Op: ">", Value: 45})},
		{"faster than 60 mph", criteria.New(criteria.SpeedCompare{Op: ">", Value: 96})},
		{"faster than 60mph", criteria.New(criteria.SpeedCompare{Op: ">", Value: 96})},
		{"moving between 20 and 60", criteria.New(criteria.SpeedRange{Min: 20, Max: 60})},
		{"speed from 10 to 20 mph", criteria.New(criteria.SpeedRange{Min: 16, Max: 32})},
		{"which trucks are moving", criteria.New(criteria.Motion{Moving: true})},
		{"vehicles in motion", criteria.New(criteria.Motion{Moving: true})},
		{"vehicles on the move", criteria.New(criteria.Motion{Moving: true})},
		{"show idle trucks", criteria.New(criteria.Motion{Moving: false})},
		{"vehicles not moving", criteria.New(criteria.Motion{Moving: false})},
		{"diesel trucks", criteria.New(criteria.FuelType{Value: "diesel"})},
		{"any hard cornering events", criteria.New(criteria.Alarm{Code: "hardCornering"})},
		{"cornering alarm today", criteria.New(criteria.Alarm{Code: "hardCornering"})},
		{"trucks in riyadh", criteria.New(criteria.Region{Value: "riyadh"})},
		{"trucks near king fahd road heading west", criteria.New(
			criteria.Region{Value: "king fahd road"},
			criteria.Direction{Label: "West"},
		)},
		{"vehicles heading north-east", criteria.New(criteria.Direction{Label: "North-East"})},
		{"vehicles heading north east", criteria.New(criteria.Direction{Label: "North-East"})},
		{"vehicles heading southwest", criteria.New(criteria.Direction{Label: "South-West"})},
		{"vehicles heading south", criteria.New(criteria.Direction{Label: "South"})},
		{"where is 12abc", criteria.New(criteria.Name{Value: "12abc"})},
		{"hello there", criteria.New()},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ExtractCriteria(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractCriteria(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRangeSuppressesMotion(t *testing.T) {
	got := ExtractCriteria("moving between 20 and 60")
	if got.Has(criteria.KindMotion) {
		t.Errorf("range query must not carry a motion filter: %#v", got)
	}
	if got.Has(criteria.KindSpeedCompare) {
		t.Errorf("range must replace the single comparison: %#v", got)
	}
}

func TestComparisonSuppressesMotion(t *testing.T) {
	got := ExtractCriteria("vehicles moving faster than 50")
	want := criteria.New(criteria.SpeedCompare{Op: ">", Value: 50})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestMphMatchesKmh(t *testing.T) {
	mph, _ := criteria.Get[criteria.SpeedCompare](ExtractCriteria("faster than 60 mph"))
	kmh, _ := criteria.Get[criteria.SpeedCompare](ExtractCriteria("faster than 96 km/h"))
	if mph != kmh {
		t.Fatalf("mph %+v != km/h %+v", mph, kmh)
	}
	if !mph.Op.Apply(97, mph.Value) {
		t.Errorf("97 km/h should pass %+v", mph)
	}
}

func TestNameIgnoresUnits(t *testing.T) {
	got := ExtractCriteria("faster than 60mph")
	if got.Has(criteria.KindName) {
		t.Errorf("unit token taken as name: %#v", got)
	}
}

func TestNameIsNotSpeed(t *testing.T) {
	got := ExtractCriteria("status of 12abc")
	if got.Has(criteria.KindSpeedCompare) {
		t.Errorf("glued number taken as speed: %#v", got)
	}
}

func TestRegionRejectsFilterPhrases(t *testing.T) {
	for _, q := range []string{"vehicles in motion", "at least 40", "at or above 40", "in ab"} {
		if got := ExtractCriteria(q); got.Has(criteria.KindRegion) {
			t.Errorf("ExtractCriteria(%q) region = %#v", q, got[criteria.KindRegion])
		}
	}
	got := ExtractCriteria("vehicles in motion in dammam")
	if r, _ := criteria.Get[criteria.Region](got); r.Value != "dammam" {
		t.Errorf("region = %q, want dammam", r.Value)
	}
}

func TestDirectionEarliestWins(t *testing.T) {
	got := ExtractCriteria("going east then north")
	if d, _ := criteria.Get[criteria.Direction](got); d.Label != "East" {
		t.Errorf("direction = %q, want East", d.Label)
	}
}

func TestNewQuery(t *testing.T) {
	q := NewQuery("Over 10 MPH")
	if !q.MPH || q.Text != "over 10 mph" {
		t.Errorf("NewQuery = %+v", q)
	}
	if v, _ := q.Speed("10"); v != 16 {
		t.Errorf("Speed(10 mph) = %v, want 16", v)
	}
	if NewQuery("triumph").MPH {
		t.Error("mph inside a word must not switch units")
	}
}
