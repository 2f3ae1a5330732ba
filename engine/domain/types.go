// Package domain defines the vehicle and order records served by the engine,
// their validation, and the human-readable formatting used in answers.
package domain

import (
	"strconv"
	"time"
)

// Vehicle is one tracked fleet vehicle as delivered by the telemetry feed.
type Vehicle struct {
	Name       string     `json:"name"`
	Driver     Driver     `json:"driver"`
	Profile    Profile    `json:"profile"`
	LastUpdate LastUpdate `json:"last_update"`
	Counters   Counters   `json:"counters"`

	// LocationDesc is a precomputed place description matched by region filters.
	LocationDesc string `json:"_location_str,omitempty"`
}

type Driver struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type Profile struct {
	PlateNumber string `json:"plate_number"`
	FuelType    string `json:"fuel_type"`
	Seats       int    `json:"seats"`
}

// LastUpdate is the latest telemetry fix.
type LastUpdate struct {
	Lat      *float64         `json:"lat"`
	Lng      *float64         `json:"lng"`
	Speed    float64          `json:"spd"`
	Angle    *float64         `json:"ang"`
	Alt      float64          `json:"alt"`
	Acc      int              `json:"acc"`
	IP       string           `json:"ip"`
	ChParams map[string]Param `json:"chPrams"`
}

// Param is a channel parameter reading.
type Param struct {
	V any `json:"v"`
}

type Counters struct {
	Odometer    float64 `json:"odometer"`
	EngineHours float64 `json:"engine_hours"` // seconds
}

// Moving reports whether the vehicle has a positive speed.
func (v Vehicle) Moving() bool { return v.LastUpdate.Speed > 0 }

// AlarmCode returns the string value of the "alarm" channel parameter.
func (v Vehicle) AlarmCode() string {
	p, ok := v.LastUpdate.ChParams["alarm"]
	if !ok {
		return ""
	}
	s, _ := p.V.(string)
	return s
}

// paramNumber returns a numeric channel parameter.
func (v Vehicle) paramNumber(key string) (float64, bool) {
	p, ok := v.LastUpdate.ChParams[key]
	if !ok {
		return 0, false
	}
	switch n := p.V.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// Order is one material order.
type Order struct {
	Orderno      string  `json:"orderno"`
	Qty          float64 `json:"qty"`
	StatusName   string  `json:"status_name"`
	MaterialName string  `json:"material_name"`
	MaterialCode string  `json:"material_code"`
	BranchName   string  `json:"branch_name"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// Created parses CreatedAt. Timestamps without a zone are read in loc.
func (o Order) Created(loc *time.Location) (time.Time, error) {
	return ParseTimestamp(o.CreatedAt, loc)
}
