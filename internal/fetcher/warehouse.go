package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
)

// WarehouseOptions configure the registered-stock endpoint.
type WarehouseOptions struct {
	// URL may contain a {label} placeholder substituted with the query-escaped label.
	URL         string
	TotalField  string
	ChangeField string
	Client      ClientOptions
}

// Warehouse reads exchange warehouse stock from a JSON endpoint.
type Warehouse struct {
	http        *httpClient
	url         string
	totalField  string
	changeField string
}

// NewWarehouse constructs a stock client.
func NewWarehouse(opts WarehouseOptions) *Warehouse {
	total, change := opts.TotalField, opts.ChangeField
	if total == "" {
		total = "total"
	}
	if change == "" {
		change = "change"
	}
	return &Warehouse{
		http:        newHTTPClient("warehouse", opts.Client),
		url:         opts.URL,
		totalField:  total,
		changeField: change,
	}
}

// WarehouseStock returns the current total and its change for label.
func (w *Warehouse) WarehouseStock(ctx context.Context, label string) (Stock, error) {
	endpoint := strings.ReplaceAll(w.url, "{label}", url.QueryEscape(label))
	payload, err := w.http.get(ctx, endpoint, nil)
	if err != nil {
		return Stock{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return Stock{}, upstreamErr("warehouse decode: %v", err)
	}

	total, ok := toDecimal(lookupPath(doc, w.totalField))
	if !ok {
		return Stock{}, upstreamErr("warehouse: field %q missing", w.totalField)
	}
	change, ok := toDecimal(lookupPath(doc, w.changeField))
	if !ok {
		return Stock{}, upstreamErr("warehouse: field %q missing", w.changeField)
	}
	return Stock{Total: total, Change: change}, nil
}

// lookupPath resolves a dotted key path such as "data.total".
func lookupPath(doc map[string]any, path string) any {
	var cur any = doc
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}
