package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"cotwatch/internal/positions"
)

// UpdatedAtLayout is the wall-clock format of updated_at read by the dashboard.
const UpdatedAtLayout = "2006-01-02 15:04:05"

const (
	keyUpdatedAt = "updated_at"
	keyGroups    = "groups"
	keyCurves    = "curves"
	keyInventory = "inventory"
	keyGVZ       = "gvz"
)

// ReservedKey reports whether k is a fixed top-level document key that a
// group or its list may not use.
func ReservedKey(k string) bool {
	switch k {
	case keyUpdatedAt, keyGroups, keyCurves, keyInventory, keyGVZ:
		return true
	}
	return false
}

// groupIndex lets a reader find the per-group keys without knowing the taxonomy.
type groupIndex struct {
	Key     string               `json:"key"`
	Kind    positions.ReportKind `json:"kind"`
	ListKey string               `json:"list_key"`
}

// Documents written before the group index existed use this fixed layout.
var legacyGroups = []groupIndex{
	{Key: "commodities", Kind: positions.Disaggregated, ListKey: "commodity_list"},
	{Key: "tff_instruments", Kind: positions.TFF, ListKey: "tff_instrument_list"},
}

// MarshalJSON writes every group as two top-level keys, the instrument map
// under the group key and the ordered list under its list key, next to
// updated_at, curves, inventory and gvz.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, 5+2*len(s.Groups))
	doc[keyUpdatedAt] = s.UpdatedAt.UTC().Format(UpdatedAtLayout)

	curves := s.Curves
	if curves == nil {
		curves = map[string]ExchangeCurve{}
	}
	doc[keyCurves] = curves
	doc[keyInventory] = nonNil(s.Inventory)
	doc[keyGVZ] = nonNil(s.Volatility)

	keys := make([]string, 0, len(s.Groups))
	for k := range s.Groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	index := make([]groupIndex, 0, len(keys))
	for _, key := range keys {
		g := s.Groups[key]
		listKey := g.ListKeyFor(key)
		for _, k := range []string{key, listKey} {
			if ReservedKey(k) {
				return nil, fmt.Errorf("group %q: key %q is reserved", key, k)
			}
			if _, taken := doc[k]; taken {
				return nil, fmt.Errorf("group %q: key %q used twice", key, k)
			}
		}

		instruments := g.Instruments
		if instruments == nil {
			instruments = map[string]Instrument{}
		}
		doc[key] = instruments
		doc[listKey] = nonNil(g.List)
		index = append(index, groupIndex{Key: key, Kind: g.Kind, ListKey: listKey})
	}
	doc[keyGroups] = index

	return json.Marshal(doc)
}

// UnmarshalJSON reads documents written by MarshalJSON as well as ones that
// predate the group index.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out Snapshot
	if v, ok := raw[keyUpdatedAt]; ok {
		t, err := parseUpdatedAt(v)
		if err != nil {
			return err
		}
		out.UpdatedAt = t
	}
	if err := decodeKey(raw, keyCurves, &out.Curves); err != nil {
		return err
	}
	if err := decodeKey(raw, keyInventory, &out.Inventory); err != nil {
		return err
	}
	if err := decodeKey(raw, keyGVZ, &out.Volatility); err != nil {
		return err
	}

	var index []groupIndex
	if err := decodeKey(raw, keyGroups, &index); err != nil {
		return err
	}
	if index == nil {
		index = legacyGroups
	}

	out.Groups = make(map[string]Group, len(index))
	for _, gi := range index {
		if _, ok := raw[gi.Key]; !ok {
			continue
		}
		g := Group{Kind: gi.Kind, ListKey: gi.ListKey}
		if err := decodeKey(raw, gi.Key, &g.Instruments); err != nil {
			return err
		}
		if err := decodeKey(raw, g.ListKeyFor(gi.Key), &g.List); err != nil {
			return err
		}
		out.Groups[gi.Key] = g
	}

	*s = out
	return nil
}

func parseUpdatedAt(v json.RawMessage) (time.Time, error) {
	var str string
	if err := json.Unmarshal(v, &str); err != nil {
		return time.Time{}, fmt.Errorf("updated_at: %w", err)
	}
	if str == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(UpdatedAtLayout, str, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return time.Time{}, fmt.Errorf("updated_at %q: %w", str, err)
	}
	return t, nil
}

func decodeKey(raw map[string]json.RawMessage, key string, dst any) error {
	v, ok := raw[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

var (
	_ json.Marshaler   = Snapshot{}
	_ json.Unmarshaler = (*Snapshot)(nil)
)
