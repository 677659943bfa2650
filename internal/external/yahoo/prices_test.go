package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/movers/internal/contracts"
	"github.com/wonny/movers/pkg/httputil"
	"github.com/wonny/movers/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	httpClient := httputil.NewWithTimeout(logger.Nop(), 2*time.Second)
	return NewClient(httpClient, logger.Nop(), server.URL)
}

// openAt returns the unix time of a 13:00 UTC session open on the given day
func openAt(day int) int64 {
	return time.Date(2024, time.March, day, 13, 0, 0, 0, time.UTC).Unix()
}

var (
	start = contracts.NewDate(2024, time.March, 9)
	end   = contracts.NewDate(2024, time.March, 16)
)

func TestGetDailyBars(t *testing.T) {
	body := fmt.Sprintf(`{"chart":{"result":[{
		"meta":{"symbol":"PETR4.SA","gmtoffset":-10800},
		"timestamp":[%d,%d,%d],
		"indicators":{"quote":[{
			"open":[36.5,37.0,null],
			"high":[37.1,37.4,38.0],
			"low":[36.2,36.8,37.0],
			"close":[36.9,37.25,37.5],
			"volume":[1000,2000,3000]
		}]}
	}],"error":null}}`, openAt(12), openAt(11), openAt(13))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/PETR4.SA", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.Equal(t, fmt.Sprint(start.Time().Unix()), r.URL.Query().Get("period1"))
		assert.Equal(t, fmt.Sprint(end.Time().Unix()), r.URL.Query().Get("period2"))
		_, _ = w.Write([]byte(body))
	})

	bars, err := client.GetDailyBars(context.Background(), "PETR4.SA", start, end)
	require.NoError(t, err)

	// third row has a null open and is skipped; remaining rows come back date-sorted
	require.Len(t, bars, 2)
	assert.Equal(t, contracts.NewDate(2024, time.March, 11), bars[0].Date)
	assert.Equal(t, contracts.NewDate(2024, time.March, 12), bars[1].Date)
	assert.True(t, bars[0].Close.Equal(decimal.RequireFromString("37.25")))
	assert.Equal(t, int64(2000), bars[0].Volume)
	assert.Equal(t, contracts.InstrumentID("PETR4.SA"), bars[1].Instrument)
}

func TestGetDailyBars_EmptyResult(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":{"result":[{"meta":{"symbol":"ZZZ","gmtoffset":0},"indicators":{"quote":[{}]}}],"error":null}}`))
	})

	bars, err := client.GetDailyBars(context.Background(), "ZZZ", start, end)
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestGetDailyBars_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		malformed bool
		temporary bool
	}{
		{"server error", http.StatusInternalServerError, `oops`, false, true},
		{"throttled", http.StatusTooManyRequests, `slow down`, false, true},
		{"not found with chart error", http.StatusNotFound, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`, false, false},
		{"chart error on 200", http.StatusOK, `{"chart":{"result":null,"error":{"code":"Bad Request","description":"invalid range"}}}`, false, false},
		{"not json", http.StatusOK, `<html></html>`, true, false},
		{"no result", http.StatusOK, `{"chart":{"result":[],"error":null}}`, true, false},
		{"column mismatch", http.StatusOK, fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%d],"indicators":{"quote":[{"open":[],"high":[],"low":[],"close":[],"volume":[]}]}}],"error":null}}`, openAt(11)), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.GetDailyBars(context.Background(), "DDD", start, end)
			require.Error(t, err)

			assert.Equal(t, tt.malformed, errors.Is(err, ErrMalformedResponse), "err: %v", err)
			if !tt.malformed {
				var pe *ProviderError
				require.ErrorAs(t, err, &pe)
				if strings.Contains(tt.body, "description") {
					assert.NotEmpty(t, pe.Description)
				}
				assert.Equal(t, tt.temporary, pe.Temporary())
			}
		})
	}
}
