package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/fleetdesk/fleetrag/engine/criteria"
)

const displayDateLayout = "January 02, 2006 at 03:04 PM"

// FormatOrder renders an order as short labelled sentences, one per line.
// Empty fields are omitted.
func FormatOrder(o Order) string {
	var parts []string
	if o.Orderno != "" && o.Qty != 0 {
		parts = append(parts, fmt.Sprintf("Order %s includes %s units.", o.Orderno, num(o.Qty)))
	}
	if o.StatusName != "" {
		parts = append(parts, fmt.Sprintf("Status: %s.", o.StatusName))
	}
	if o.MaterialName != "" {
		parts = append(parts, fmt.Sprintf("Material: %s (%s).", o.MaterialName, o.MaterialCode))
	}
	if o.BranchName != "" {
		parts = append(parts, fmt.Sprintf("Branch: %s.", o.BranchName))
	}
	if o.CreatedAt != "" {
		parts = append(parts, fmt.Sprintf("Created on: %s.", displayDate(o.CreatedAt)))
	}
	if o.UpdatedAt != "" {
		parts = append(parts, fmt.Sprintf("Last updated: %s.", displayDate(o.UpdatedAt)))
	}
	return strings.Join(parts, "\n")
}

// displayDate keeps the raw value when it cannot be parsed.
func displayDate(s string) string {
	t, err := ParseTimestamp(s, nil)
	if err != nil {
		return s
	}
	return t.Format(displayDateLayout)
}

// FormatVehicle renders the full vehicle report.
func FormatVehicle(v Vehicle) string {
	name := orUnknown(v.Name)
	lu := v.LastUpdate

	location := fmt.Sprintf("The vehicle %s's location is currently unknown", name)
	if v.LocationDesc != "" {
		location = fmt.Sprintf("The vehicle %s is currently located at %s", name, v.LocationDesc)
	}

	engineHours := "Unknown"
	if v.Counters.EngineHours != 0 {
		engineHours = fmt.Sprintf("%.1f hours", v.Counters.EngineHours/3600)
	}

	ignition := "OFF"
	if lu.Acc == 1 {
		ignition = "ON"
	}

	lines := []string{
		fmt.Sprintf("Vehicle: %s (Plate: %s)", name, v.Profile.PlateNumber),
		fmt.Sprintf("- Fuel Type: %s, Seats: %d", v.Profile.FuelType, v.Profile.Seats),
		fmt.Sprintf("Driver: %s | Phone: %s", v.Driver.Name, v.Driver.Phone),
		"Location: " + location,
		fmt.Sprintf("Speed: %s km/h, Altitude: %s m", num(lu.Speed), num(lu.Alt)),
		"Direction: " + criteria.Heading(lu.Angle),
		fmt.Sprintf("External Power: %sV | Internal Power: %sV", v.voltage("ePwrV"), v.voltage("iPwrV")),
		fmt.Sprintf("Odometer: %s km", num(v.Counters.Odometer)),
		"Engine Hours: " + engineHours,
		"Ignition: " + ignition,
		"IP Address: " + lu.IP,
	}
	return strings.Join(lines, "\n")
}

// voltage reports a power channel in volts; readings above 100 are millivolts.
func (v Vehicle) voltage(key string) string {
	n, ok := v.paramNumber(key)
	if !ok {
		return "None"
	}
	if n > 100 {
		n /= 1000
	}
	return num(n)
}

// FormatVehicleLine renders the one-line summary used in filtered listings.
func FormatVehicleLine(v Vehicle) string {
	return fmt.Sprintf("%s (Driver: %s, Direction: %s, Speed: %s km/h)",
		orUnknown(v.Name), orUnknown(v.Driver.Name), criteria.Heading(v.LastUpdate.Angle), num(v.LastUpdate.Speed))
}

// FormatVehicleList renders one line per vehicle. Lines are sorted when the
// set filters on motion or speed.
func FormatVehicleList(vs []Vehicle, set criteria.Set) []string {
	lines := make([]string, len(vs))
	for i, v := range vs {
		lines[i] = FormatVehicleLine(v)
	}
	if set.Has(criteria.KindMotion) || set.HasNumericSpeed() {
		sort.Strings(lines)
	}
	return lines
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
