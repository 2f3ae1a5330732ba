// Package vehiclenlp extracts vehicle filters (speed, motion, fuel, alarm,
// region, direction, name) from free-text fleet queries using an ordered
// cascade of regex matchers. No external dependencies.
package vehiclenlp

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/fleetdesk/fleetrag/engine/criteria"
)

// KmhPerMph converts miles per hour to the native km/h unit.
const KmhPerMph = 1.60934

// comparatorOps maps comparator phrases to operators. The empty phrase is
// the bare-number case.
var comparatorOps = map[string]criteria.Op{
	"faster than":  criteria.OpGT,
	"greater than": criteria.OpGT,
	"more than":    criteria.OpGT,
	"above":        criteria.OpGT,
	"over":         criteria.OpGT,
	">":            criteria.OpGT,
	"slower than":  criteria.OpLT,
	"lower than":   criteria.OpLT,
	"less than":    criteria.OpLT,
	"below":        criteria.OpLT,
	"under":        criteria.OpLT,
	"<":            criteria.OpLT,
	"at least":     criteria.OpGE,
	"at or above":  criteria.OpGE,
	">=":           criteria.OpGE,
	"at most":      criteria.OpLE,
	"at or below":  criteria.OpLE,
	"<=":           criteria.OpLE,
	"exactly":      criteria.OpEQ,
	"=":            criteria.OpEQ,
	"":             criteria.OpEQ,
}

// Alternations are ordered longest first; RE2 alternation is leftmost-first.
const (
	wordComparators   = `at or above|at or below|faster than|slower than|greater than|lower than|more than|less than|at least|at most|exactly|above|below|over|under`
	symbolComparators = `>=|<=|>|<|=`
)

var (
	// comparisonRe finds an optional comparator phrase followed by a number.
	// Group 3 captures letters glued to the number ("12abc").
	comparisonRe = regexp.MustCompile(`(?:\b(` + wordComparators + `)\s*)?\b(\d+)([a-z]*)`)

	// keywordSpeedRe anchors on a motion keyword and accepts symbolic operators.
	keywordSpeedRe = regexp.MustCompile(`\b(?:speed|moving|travelling|traveling)\s*(` + symbolComparators + `|` + wordComparators + `)?\s*(\d+)\b`)

	rangeRe = regexp.MustCompile(`\b(?:between|from)\s*(\d+)\s*(?:and|to)\s*(\d+)\b`)

	mphRe = regexp.MustCompile(`(?:^|[^a-z])mph\b`)

	movingRe     = regexp.MustCompile(`\b(?:moving|in motion|driving|on the move|active)\b`)
	stationaryRe = regexp.MustCompile(`\b(?:stationary|stopped|idle|not moving)\b`)

	dieselRe    = regexp.MustCompile(`\bdiesel\b`)
	corneringRe = regexp.MustCompile(`\bhard cornering\b|\bcornering alarm\b`)

	// Region phrases start after a preposition; each preposition is tried in
	// turn so a rejected phrase ("in motion") does not hide a later one.
	prepositionRe = regexp.MustCompile(`\b(?:in|from|at|near|around)\s+`)
	phraseRe      = regexp.MustCompile(`^[a-z][a-z\s]*`)

	// Compound directions are tried first at each position.
	directionRe = regexp.MustCompile(`\b(north|south)[\s-]?(east|west)\b|\b(north|south|east|west)\b`)

	nameRe = regexp.MustCompile(`\b\d+[a-z][a-z0-9-]*`)
)

// speedKeywords must co-occur with a range for it to count as a speed range.
var speedKeywords = []string{"speed", "moving", "travelling", "traveling"}

// unitSuffixes are letters that may follow a number without making it a name.
var unitSuffixes = map[string]bool{
	"": true, "mph": true, "kmh": true, "kph": true, "km": true, "kmph": true,
}

// regionStops end a region phrase.
var regionStops = map[string]bool{
	"heading": true, "moving": true, "going": true, "driving": true, "travelling": true,
	"traveling": true, "facing": true, "towards": true, "toward": true, "with": true,
	"and": true, "or": true, "that": true, "which": true, "who": true, "where": true,
	"faster": true, "slower": true, "above": true, "below": true, "over": true,
	"under": true, "between": true, "speed": true, "exactly": true, "at": true,
	"in": true, "near": true, "around": true, "from": true, "to": true, "is": true,
	"are": true, "running": true, "using": true, "on": true,
}

// regionRejects are phrase heads that belong to other filters ("in motion",
// "at least", "at or above").
var regionRejects = map[string]bool{
	"motion": true, "least": true, "most": true, "or": true,
}

// Query is a lower-cased vehicle query with its unit context.
type Query struct {
	Text string
	MPH  bool
}

// NewQuery normalises text for matching.
func NewQuery(text string) Query {
	t := strings.ToLower(text)
	return Query{Text: t, MPH: mphRe.MatchString(t)}
}

// Speed converts a matched number to km/h. MPH values are truncated to whole
// km/h, so 60 mph is 96 km/h.
func (q Query) Speed(digits string) (float64, bool) {
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	if q.MPH {
		v = math.Floor(v * KmhPerMph)
	}
	return v, true
}

// A matcher inspects the query and returns a criteria fragment (possibly empty).
type matcher func(Query) criteria.Set

// A mergeRule folds a fragment into the accumulated set.
type mergeRule func(acc, frag criteria.Set)

type step struct {
	name  string
	match matcher
	merge mergeRule
}

// fillMissing adds fragment kinds the set does not hold yet.
func fillMissing(acc, frag criteria.Set) { acc.Merge(frag) }

// unlessAny applies fillMissing only when none of kinds is present.
func unlessAny(kinds ...criteria.Kind) mergeRule {
	return func(acc, frag criteria.Set) {
		for _, k := range kinds {
			if acc.Has(k) {
				return
			}
		}
		acc.Merge(frag)
	}
}

// replacing removes kinds when the fragment is non-empty, then stores it.
func replacing(kinds ...criteria.Kind) mergeRule {
	return func(acc, frag criteria.Set) {
		if frag.Empty() {
			return
		}
		for _, k := range kinds {
			acc.Remove(k)
		}
		for _, c := range frag {
			acc.Put(c)
		}
	}
}

// steps is the matcher cascade, in precedence order.
var steps = []step{
	{"comparison", matchComparison, fillMissing},
	{"keyword-speed", matchKeywordSpeed, unlessAny(criteria.KindSpeedCompare)},
	{"range", matchRange, replacing(criteria.KindSpeedCompare)},
	{"motion", matchMotion, unlessAny(criteria.KindSpeedCompare, criteria.KindSpeedRange)},
	{"fuel", matchFuel, fillMissing},
	{"alarm", matchAlarm, fillMissing},
	{"region", matchRegion, fillMissing},
	{"direction", matchDirection, fillMissing},
	{"name", matchName, fillMissing},
}

// ExtractCriteria parses a vehicle query into a criteria set.
func ExtractCriteria(text string) criteria.Set {
	q := NewQuery(text)
	acc := criteria.New()
	for _, s := range steps {
		frag := s.match(q)
		if len(frag) == 0 {
			continue
		}
		s.merge(acc, frag)
	}
	return acc
}

func matchComparison(q Query) criteria.Set {
	for _, m := range comparisonRe.FindAllStringSubmatchIndex(q.Text, -1) {
		phrase := group(q.Text, m, 1)
		suffix := group(q.Text, m, 3)
		if !unitSuffixes[suffix] {
			continue
		}
		// A bare number after a symbolic operator belongs to the keyword matcher.
		if phrase == "" && endsWithSymbol(q.Text[:m[0]]) {
			continue
		}
		v, ok := q.Speed(group(q.Text, m, 2))
		if !ok {
			continue
		}
		return criteria.New(criteria.SpeedCompare{Op: comparatorOps[phrase], Value: v})
	}
	return nil
}

func matchKeywordSpeed(q Query) criteria.Set {
	m := keywordSpeedRe.FindStringSubmatch(q.Text)
	if m == nil {
		return nil
	}
	op, ok := comparatorOps[strings.TrimSpace(m[1])]
	if !ok {
		op = criteria.OpEQ
	}
	v, ok := q.Speed(m[2])
	if !ok {
		return nil
	}
	return criteria.New(criteria.SpeedCompare{Op: op, Value: v})
}

func matchRange(q Query) criteria.Set {
	m := rangeRe.FindStringSubmatch(q.Text)
	if m == nil || !containsAny(q.Text, speedKeywords) {
		return nil
	}
	lo, ok1 := q.Speed(m[1])
	hi, ok2 := q.Speed(m[2])
	if !ok1 || !ok2 {
		return nil
	}
	return criteria.New(criteria.SpeedRange{Min: lo, Max: hi})
}

// matchMotion lets stillness win when both kinds of keyword appear, which
// covers "not moving".
func matchMotion(q Query) criteria.Set {
	switch {
	case stationaryRe.MatchString(q.Text):
		return criteria.New(criteria.Motion{Moving: false})
	case movingRe.MatchString(q.Text):
		return criteria.New(criteria.Motion{Moving: true})
	}
	return nil
}

func matchFuel(q Query) criteria.Set {
	if dieselRe.MatchString(q.Text) {
		return criteria.New(criteria.FuelType{Value: "diesel"})
	}
	return nil
}

func matchAlarm(q Query) criteria.Set {
	if corneringRe.MatchString(q.Text) {
		return criteria.New(criteria.Alarm{Code: "hardCornering"})
	}
	return nil
}

func matchRegion(q Query) criteria.Set {
	for _, loc := range prepositionRe.FindAllStringIndex(q.Text, -1) {
		raw := phraseRe.FindString(q.Text[loc[1]:])
		if r := regionPhrase(raw); r != "" {
			return criteria.New(criteria.Region{Value: r})
		}
	}
	return nil
}

// regionPhrase trims a candidate phrase at the first stop word. It returns ""
// for rejected or too-short phrases.
func regionPhrase(raw string) string {
	words := strings.Fields(raw)
	if len(words) > 0 && words[0] == "the" {
		words = words[1:]
	}
	if len(words) == 0 || regionRejects[words[0]] {
		return ""
	}
	var kept []string
	for _, w := range words {
		if regionStops[w] {
			break
		}
		kept = append(kept, w)
	}
	r := strings.Join(kept, " ")
	if len(r) <= 2 {
		return ""
	}
	return r
}

func matchDirection(q Query) criteria.Set {
	m := directionRe.FindStringSubmatch(q.Text)
	if m == nil {
		return nil
	}
	var label string
	if m[1] != "" {
		label = title(m[1]) + "-" + title(m[2])
	} else {
		label = title(m[3])
	}
	return criteria.New(criteria.Direction{Label: label})
}

func matchName(q Query) criteria.Set {
	for _, tok := range nameRe.FindAllString(q.Text, -1) {
		i := strings.IndexFunc(tok, func(r rune) bool { return r < '0' || r > '9' })
		if unitSuffixes[tok[i:]] {
			continue
		}
		return criteria.New(criteria.Name{Value: tok})
	}
	return nil
}

func group(s string, m []int, i int) string {
	if m[2*i] < 0 {
		return ""
	}
	return s[m[2*i]:m[2*i+1]]
}

func endsWithSymbol(prefix string) bool {
	p := strings.TrimRight(prefix, " \t")
	return strings.HasSuffix(p, ">") || strings.HasSuffix(p, "<") || strings.HasSuffix(p, "=")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func title(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}
