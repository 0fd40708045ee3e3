package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chartPayload(timestamps []int64, closes []float64) string {
	ts := ""
	cl := ""
	for i := range timestamps {
		if i > 0 {
			ts += ","
			cl += ","
		}
		ts += fmt.Sprintf("%d", timestamps[i])
		cl += fmt.Sprintf("%g", closes[i])
	}
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%s],"indicators":{"quote":[{"close":[%s]}]}}],"error":null}}`, ts, cl)
}

func TestHistory_ParsesBars(t *testing.T) {
	day1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		fmt.Fprint(w, chartPayload([]int64{day1.Unix(), day2.Unix()}, []float64{185.5, 186.2}))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(zerolog.Nop(), srv.URL)
	bars, err := client.History(context.Background(), "AAPL", day1, day2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 185.5, bars[0].Close)
	assert.Equal(t, day1, bars[0].Date)
	assert.Equal(t, 186.2, bars[1].Close)
}

func TestHistory_TruncatesSessionTimestamps(t *testing.T) {
	// Yahoo timestamps the bar at the session open (14:30 UTC for NYSE).
	open := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartPayload([]int64{open.Unix()}, []float64{185.5}))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(zerolog.Nop(), srv.URL)
	bars, err := client.History(context.Background(), "AAPL", open, open)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Date)
}

func TestHistory_UnknownSymbolReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(zerolog.Nop(), srv.URL)
	bars, err := client.History(context.Background(), "NOPE", time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestHistory_SkipsNullSessions(t *testing.T) {
	day1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartPayload([]int64{day1.Unix(), day2.Unix()}, []float64{0, 186.2}))
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(zerolog.Nop(), srv.URL)
	bars, err := client.History(context.Background(), "AAPL", day1, day2)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 186.2, bars[0].Close)
}

func TestHistory_ServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(zerolog.Nop(), srv.URL)
	_, err := client.History(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now())
	assert.Error(t, err)
}

func TestCloseOn(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v8/finance/chart/AAPL":
			fmt.Fprint(w, chartPayload([]int64{day.Unix()}, []float64{172.6}))
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found"}}}`)
		}
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(zerolog.Nop(), srv.URL)
	closes, err := client.CloseOn(context.Background(), []string{"AAPL", "NOPE"}, day)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAPL": 172.6}, closes)
}

func TestCloseOn_SkipsFailedSymbols(t *testing.T) {
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v8/finance/chart/AAPL":
			fmt.Fprint(w, chartPayload([]int64{day.Unix()}, []float64{172.6}))
		case "/v8/finance/chart/MSFT":
			w.WriteHeader(http.StatusInternalServerError)
		case "/v8/finance/chart/GOOGL":
			fmt.Fprint(w, chartPayload([]int64{day.Unix()}, []float64{148.2}))
		}
	}))
	defer srv.Close()

	client := NewClientWithBaseURL(zerolog.Nop(), srv.URL)
	closes, err := client.CloseOn(context.Background(), []string{"AAPL", "MSFT", "GOOGL"}, day)
	require.NoError(t, err, "one failed symbol does not abort the batch")
	assert.Equal(t, map[string]float64{"AAPL": 172.6, "GOOGL": 148.2}, closes)
}
