package positions

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMissingColumn indicates a report table lacks a column the builder needs.
var ErrMissingColumn = errors.New("positions: required column not found")

// Row is one report line keyed by provider column name.
type Row map[string]any

// Value returns the first candidate column holding a usable number, truncated to
// an integer, or def when none does. It never fails.
func Value(row Row, candidates []string, def int64) int64 {
	for _, name := range candidates {
		raw, ok := row[name]
		if !ok {
			continue
		}
		if v, ok := toInt(raw); ok {
			return v
		}
	}
	return def
}

func toInt(raw any) (int64, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case json.Number:
		return stringToInt(v.String())
	case string:
		return stringToInt(v)
	default:
		return 0, false
	}
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

func stringToInt(s string) (int64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || strings.EqualFold(s, "nan") || s == "." {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return d.IntPart(), true
}

// Columns returns the sorted union of column names present in rows.
func Columns(rows []Row) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DateColumn picks the report date column: an exact candidate first, then any
// column whose name carries an ISO date hint, then any column mentioning "date".
func DateColumn(columns, candidates []string) (string, bool) {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	for _, c := range candidates {
		if present[c] {
			return c, true
		}
	}
	for _, c := range columns {
		lower := strings.ToLower(c)
		if strings.Contains(lower, "yyyy-mm-dd") || strings.Contains(lower, "yyyy_mm_dd") {
			return c, true
		}
	}
	for _, c := range columns {
		if strings.Contains(strings.ToLower(c), "date") {
			return c, true
		}
	}
	return "", false
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
}

// ParseDate coerces a report cell to a calendar day.
func ParseDate(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		y, m, d := v.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				y, m, d := t.Date()
				return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
			}
		}
	}
	return time.Time{}, false
}

// MarketColumn resolves the market-name column among candidates.
func MarketColumn(columns, candidates []string) (string, bool) {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	for _, c := range candidates {
		if present[c] {
			return c, true
		}
	}
	return "", false
}

// CompileMarketPattern anchors pattern at the start and makes it case-insensitive.
func CompileMarketPattern(pattern string) (*regexp.Regexp, error) {
	p := strings.TrimPrefix(pattern, "^")
	re, err := regexp.Compile("(?i)^(?:" + p + ")")
	if err != nil {
		return nil, fmt.Errorf("compile market pattern %q: %w", pattern, err)
	}
	return re, nil
}

// FilterMarket keeps the rows whose market name matches re.
func FilterMarket(rows []Row, candidates []string, re *regexp.Regexp) ([]Row, error) {
	col, ok := MarketColumn(Columns(rows), candidates)
	if !ok {
		return nil, fmt.Errorf("market column: %w", ErrMissingColumn)
	}
	out := make([]Row, 0)
	for _, r := range rows {
		name, ok := r[col].(string)
		if !ok {
			continue
		}
		if re.MatchString(name) {
			out = append(out, r)
		}
	}
	return out, nil
}
