// Package product holds the product collection and its engagement counters.
package product

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	FieldID          = "id"
	FieldEngagement  = "engagement_stats"
	FieldLastUpdated = "last_updated"
)

// Counters are the engagement fields clients may send deltas for.
var Counters = []string{"likes", "dislikes", "rerolls", "routines", "views"}

func isCounter(name string) bool {
	for _, c := range Counters {
		if c == name {
			return true
		}
	}
	return false
}

// Product is a record from the collection. Apart from "id" and
// "engagement_stats" its fields are passed through untouched.
type Product map[string]any

func (p Product) ID() string {
	switch v := p[FieldID].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// Stats returns the engagement_stats object, or nil if the record has none.
func (p Product) Stats() Stats {
	switch v := p[FieldEngagement].(type) {
	case map[string]any:
		return Stats(v)
	case Stats:
		return v
	default:
		return nil
	}
}

// Stats is an engagement_stats object: the five counters and last_updated.
type Stats map[string]any

func newStats(ts string) Stats {
	s := Stats{FieldLastUpdated: ts}
	for _, c := range Counters {
		s[c] = int64(0)
	}
	return s
}

// ensureStats gives p a complete engagement_stats object. Missing counters
// are set to zero and last_updated is stamped only if something was added.
func ensureStats(p Product, ts string) bool {
	stats := p.Stats()
	if stats == nil {
		p[FieldEngagement] = map[string]any(newStats(ts))
		return true
	}

	changed := false
	for _, c := range Counters {
		if _, ok := stats[c]; !ok {
			stats[c] = int64(0)
			changed = true
		}
	}
	if _, ok := stats[FieldLastUpdated]; !ok {
		changed = true
	}
	if changed {
		stats[FieldLastUpdated] = ts
	}
	return changed
}

// applyDeltas adds each recognised counter delta to stats. Unknown names and
// last_updated are ignored. A stored value that is not a number is repaired
// to zero before the delta is added. A non-numeric delta is an error and
// leaves stats unchanged.
func applyDeltas(stats Stats, deltas map[string]any) (map[string]float64, error) {
	parsed := make(map[string]float64)
	for name, raw := range deltas {
		if !isCounter(name) {
			continue
		}
		d, ok := toNumber(raw)
		if !ok {
			return nil, fmt.Errorf("delta for %q must be a number", name)
		}
		parsed[name] = d
	}

	for name, d := range parsed {
		current, ok := toNumber(stats[name])
		if !ok {
			current = 0
		}
		stats[name] = normalise(current + d)
	}
	return parsed, nil
}

func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// normalise keeps whole counts as integers so they serialise without a
// fractional part.
func normalise(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
