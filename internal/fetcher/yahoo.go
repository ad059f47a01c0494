package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cotwatch/internal/curve"
)

// Yahoo reads daily bars from the chart endpoint.
type Yahoo struct {
	http    *httpClient
	baseURL string
}

// NewYahoo constructs a chart client.
func NewYahoo(baseURL string, opts ClientOptions) *Yahoo {
	return &Yahoo{
		http:    newHTTPClient("yahoo", opts),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// DailyPrices returns daily closes for ticker in [from, to]. Null closes are skipped.
func (y *Yahoo) DailyPrices(ctx context.Context, ticker string, from, to time.Time) ([]curve.PricePoint, error) {
	q := url.Values{}
	q.Set("period1", strconv.FormatInt(from.Unix(), 10))
	// period2 is exclusive upstream.
	q.Set("period2", strconv.FormatInt(to.Add(24*time.Hour).Unix(), 10))
	q.Set("interval", "1d")
	q.Set("includePrePost", "false")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(ticker), q.Encode())

	payload, err := y.http.get(ctx, endpoint, nil)
	if errors.Is(err, ErrNotFound) {
		// Expired and unlisted contracts answer 404 "No data found".
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, upstreamErr("yahoo decode %s: %v", ticker, err)
	}
	if resp.Chart.Error != nil && resp.Chart.Error.Code == "Not Found" {
		return nil, nil
	}
	if resp.Chart.Error != nil {
		return nil, upstreamErr("yahoo %s: %s", ticker, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, nil
	}

	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	points := make([]curve.PricePoint, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		var volume int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			volume = *quote.Volume[i]
		}
		// Bars are stamped at the session open; shift to exchange-local time before truncating.
		day := time.Unix(ts+result.Meta.GMTOffset, 0).UTC()
		points = append(points, curve.PricePoint{
			Date:   time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
			Close:  decimal.NewFromFloat(*quote.Close[i]),
			Volume: volume,
		})
	}
	return points, nil
}
