package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cotwatch/internal/calendar"
	"cotwatch/internal/curve"
)

// Sina reads domestic futures daily K-lines from the JSONP endpoint.
type Sina struct {
	http    *httpClient
	baseURL string
}

// NewSina constructs a K-line client.
func NewSina(baseURL string, opts ClientOptions) *Sina {
	return &Sina{
		http:    newHTTPClient("sina", opts),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type klineRow struct {
	Date   string `json:"d"`
	Close  any    `json:"c"`
	Volume any    `json:"v"`
}

// DailyPrices returns daily closes for symbol in [from, to].
func (s *Sina) DailyPrices(ctx context.Context, symbol string, from, to time.Time) ([]curve.PricePoint, error) {
	callback := "var _" + symbol + "="
	endpoint := fmt.Sprintf("%s/futures/api/jsonp.php/%s/InnerFuturesNewService.getDailyKLine?symbol=%s",
		s.baseURL, url.PathEscape(callback), url.QueryEscape(symbol))

	payload, err := s.http.get(ctx, endpoint, map[string]string{"Referer": "https://finance.sina.com.cn"})
	if err != nil {
		return nil, err
	}

	body, err := unwrapJSONP(payload)
	if err != nil {
		return nil, upstreamErr("sina %s: %v", symbol, err)
	}
	if len(body) == 0 || string(body) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var rows []klineRow
	if err := dec.Decode(&rows); err != nil {
		return nil, upstreamErr("sina decode %s: %v", symbol, err)
	}

	lo, hi := calendar.Day(from), calendar.Day(to)
	points := make([]curve.PricePoint, 0, len(rows))
	for _, r := range rows {
		day, err := time.Parse(calendar.DateLayout, strings.TrimSpace(r.Date))
		if err != nil || day.Before(lo) || day.After(hi) {
			continue
		}
		closePrice, ok := toDecimal(r.Close)
		if !ok {
			continue
		}
		var volume int64
		if v, ok := toDecimal(r.Volume); ok {
			volume = v.IntPart()
		}
		points = append(points, curve.PricePoint{Date: day, Close: closePrice, Volume: volume})
	}
	return points, nil
}

// unwrapJSONP returns the text between the first "(" and the last ")".
func unwrapJSONP(payload []byte) ([]byte, error) {
	open := bytes.IndexByte(payload, '(')
	closing := bytes.LastIndexByte(payload, ')')
	if open < 0 || closing <= open {
		return nil, fmt.Errorf("payload is not a JSONP callback")
	}
	return bytes.TrimSpace(payload[open+1 : closing]), nil
}
