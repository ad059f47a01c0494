package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"cotwatch/internal/positions"
)

const defaultReportDateField = "report_date_as_yyyy_mm_dd"

// CFTCOptions configure the public reporting client.
type CFTCOptions struct {
	BaseURL   string
	Datasets  map[positions.ReportKind]string
	PageLimit int
	AppToken  string
	// DateField is the column used to bound a query to one year.
	DateField string
	Client    ClientOptions
}

// CFTC queries the Socrata-hosted Commitments of Traders datasets.
type CFTC struct {
	http      *httpClient
	baseURL   string
	datasets  map[positions.ReportKind]string
	pageLimit int
	appToken  string
	dateField string
}

// NewCFTC returns a report provider bound to the configured datasets.
func NewCFTC(opts CFTCOptions) *CFTC {
	limit := opts.PageLimit
	if limit <= 0 {
		limit = 50000
	}
	field := opts.DateField
	if field == "" {
		field = defaultReportDateField
	}
	return &CFTC{
		http:      newHTTPClient("cftc", opts.Client),
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		datasets:  opts.Datasets,
		pageLimit: limit,
		appToken:  opts.AppToken,
		dateField: field,
	}
}

// ReportRows returns every row of kind published in year, following pagination.
func (c *CFTC) ReportRows(ctx context.Context, kind positions.ReportKind, year int) ([]positions.Row, error) {
	dataset, ok := c.datasets[kind]
	if !ok || dataset == "" {
		return nil, fmt.Errorf("no dataset configured for report kind %q", kind)
	}

	var headers map[string]string
	if c.appToken != "" {
		headers = map[string]string{"X-App-Token": c.appToken}
	}

	var rows []positions.Row
	for offset := 0; ; offset += c.pageLimit {
		page, err := c.fetchPage(ctx, dataset, year, offset, headers)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		if len(page) < c.pageLimit {
			break
		}
	}
	return rows, nil
}

func (c *CFTC) fetchPage(ctx context.Context, dataset string, year, offset int, headers map[string]string) ([]positions.Row, error) {
	q := url.Values{}
	q.Set("$where", fmt.Sprintf("%s between '%d-01-01T00:00:00' and '%d-12-31T23:59:59'", c.dateField, year, year))
	q.Set("$order", c.dateField)
	q.Set("$limit", strconv.Itoa(c.pageLimit))
	if offset > 0 {
		q.Set("$offset", strconv.Itoa(offset))
	}
	endpoint := fmt.Sprintf("%s/resource/%s.json?%s", c.baseURL, url.PathEscape(dataset), q.Encode())

	payload, err := c.http.get(ctx, endpoint, headers)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, upstreamErr("cftc decode %s/%d: %v", dataset, year, err)
	}

	rows := make([]positions.Row, len(raw))
	for i, r := range raw {
		rows[i] = positions.Row(r)
	}
	return rows, nil
}
