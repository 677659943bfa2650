package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/movers/internal/contracts"
)

// ErrMalformedResponse is returned when the chart payload cannot be interpreted
var ErrMalformedResponse = errors.New("malformed chart response")

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int    `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*float64 `json:"volume"`
}

// GetDailyBars fetches daily OHLCV bars for symbol between start and end
// ⭐ SSOT: Yahoo 일봉 API 호출은 이 함수에서만
func (c *Client) GetDailyBars(ctx context.Context, symbol contracts.InstrumentID, start, end contracts.Date) ([]contracts.PriceBar, error) {
	fullURL := fmt.Sprintf(
		"%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d&events=history&includeAdjustedClose=false",
		c.baseURL, url.PathEscape(string(symbol)), start.Time().Unix(), end.Time().Unix(),
	)

	body, status, err := c.fetchBody(ctx, fullURL)
	if err != nil {
		return nil, err
	}

	var parsed chartResponse
	decodeErr := json.Unmarshal(body, &parsed)

	if !isOK(status) {
		pe := &ProviderError{StatusCode: status}
		if decodeErr == nil && parsed.Chart.Error != nil {
			pe.Code = parsed.Chart.Error.Code
			pe.Description = parsed.Chart.Error.Description
		}
		return nil, pe
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
	}
	if parsed.Chart.Error != nil {
		return nil, &ProviderError{
			StatusCode:  status,
			Code:        parsed.Chart.Error.Code,
			Description: parsed.Chart.Error.Description,
		}
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: no result for %s", ErrMalformedResponse, symbol)
	}

	bars, err := parseBars(symbol, parsed.Chart.Result[0], start, end)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"instrument": symbol,
		"count":      len(bars),
	}).Debug("Fetched daily bars")
	return bars, nil
}

// parseBars converts column arrays into PriceBars sorted by date.
// Rows with any null price are skipped (Yahoo emits them for halted days).
func parseBars(symbol contracts.InstrumentID, res chartResult, start, end contracts.Date) ([]contracts.PriceBar, error) {
	if len(res.Timestamp) == 0 {
		return []contracts.PriceBar{}, nil
	}
	if len(res.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: %s has timestamps but no quote block", ErrMalformedResponse, symbol)
	}

	q := res.Indicators.Quote[0]
	n := len(res.Timestamp)
	if len(q.Open) != n || len(q.High) != n || len(q.Low) != n || len(q.Close) != n || len(q.Volume) != n {
		return nil, fmt.Errorf("%w: %s column length mismatch", ErrMalformedResponse, symbol)
	}

	offset := time.Duration(res.Meta.GMTOffset) * time.Second
	byDate := make(map[contracts.Date]contracts.PriceBar, n)

	for i, ts := range res.Timestamp {
		if q.Open[i] == nil || q.High[i] == nil || q.Low[i] == nil || q.Close[i] == nil {
			continue
		}

		day := contracts.DateOf(time.Unix(ts, 0).UTC().Add(offset))
		if day.Before(start) || day.After(end) {
			continue
		}

		var volume int64
		if q.Volume[i] != nil && *q.Volume[i] > 0 {
			volume = int64(*q.Volume[i])
		}

		byDate[day] = contracts.PriceBar{
			Instrument: symbol,
			Date:       day,
			Open:       decimal.NewFromFloat(*q.Open[i]),
			High:       decimal.NewFromFloat(*q.High[i]),
			Low:        decimal.NewFromFloat(*q.Low[i]),
			Close:      decimal.NewFromFloat(*q.Close[i]),
			Volume:     volume,
		}
	}

	bars := make([]contracts.PriceBar, 0, len(byDate))
	for _, b := range byDate {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})

	return bars, nil
}
