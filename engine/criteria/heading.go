package criteria

import "math"

// Compass labels, clockwise from North in 45° sectors.
var compass = [8]string{
	"North", "North-East", "East", "South-East",
	"South", "South-West", "West", "North-West",
}

// Unknown is the heading label for a missing angle.
const Unknown = "Unknown"

// Heading buckets an angle in degrees into one of eight sectors centred on
// the compass points, so 337.5..360 and 0..22.5 are both North. A nil angle
// yields Unknown.
func Heading(angle *float64) string {
	if angle == nil || math.IsNaN(*angle) || math.IsInf(*angle, 0) {
		return Unknown
	}
	a := math.Mod(*angle+22.5, 360)
	if a < 0 {
		a += 360
	}
	return compass[int(a/45)%8]
}

// CompassLabels returns the eight labels in clockwise order.
func CompassLabels() []string {
	out := make([]string, len(compass))
	copy(out, compass[:])
	return out
}
