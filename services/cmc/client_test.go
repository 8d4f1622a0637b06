package cmc

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTripFunc lets tests stub HTTP responses without a server
type roundTripFunc func(req *http.Request) *http.Response

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req), nil
}

func newTestClient(keys []string, rt roundTripFunc) *Client {
	c := NewClient(NewKeyRing(keys))
	c.httpClient = &http.Client{Transport: rt}
	return c
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

const listingsBody = `{"data":[{"id":1,"name":"Bitcoin","symbol":"BTC","slug":"bitcoin",
	"cmc_rank":1,"circulating_supply":19000000,"total_supply":19000000,"max_supply":21000000,
	"date_added":"2013-04-28T00:00:00.000Z","last_updated":"2024-05-01T12:00:00.000Z",
	"tags":["mineable","store-of-value"],
	"quote":{"USD":{"price":64000.5,"volume_24h":30000000000,"market_cap":1200000000000,
	"percent_change_1h":0.1,"percent_change_24h":1.5,"percent_change_7d":-2.3}}}]}`

func TestFetchListings(t *testing.T) {
	var seenKeys []string
	client := newTestClient([]string{"key-a"}, func(req *http.Request) *http.Response {
		seenKeys = append(seenKeys, req.Header.Get("X-CMC_PRO_API_KEY"))
		assert.Contains(t, req.URL.String(), "/v1/cryptocurrency/listings/latest")
		assert.Contains(t, req.URL.RawQuery, "limit=100")
		assert.Contains(t, req.URL.RawQuery, "convert=USD")
		return jsonResponse(http.StatusOK, listingsBody)
	})

	listings, err := client.FetchListings(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, listings, 1)

	assert.Equal(t, []string{"key-a"}, seenKeys)
	assert.Equal(t, "BTC", listings[0].Symbol)
	assert.Equal(t, uint(1), listings[0].ID)
	require.NotNil(t, listings[0].MaxSupply)
	assert.Equal(t, float64(21000000), *listings[0].MaxSupply)
	quote, ok := listings[0].Quote["USD"]
	require.True(t, ok)
	assert.Equal(t, 64000.5, quote.Price)
}

func TestRateLimitRotatesToNextKey(t *testing.T) {
	// First key is rate limited; the second key succeeds on the retry
	var seenKeys []string
	client := newTestClient([]string{"key-a", "key-b"}, func(req *http.Request) *http.Response {
		key := req.Header.Get("X-CMC_PRO_API_KEY")
		seenKeys = append(seenKeys, key)
		if key == "key-a" {
			return jsonResponse(http.StatusTooManyRequests, `{"status":{"error_code":1008}}`)
		}
		return jsonResponse(http.StatusOK, listingsBody)
	})

	listings, err := client.FetchListings(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, listings, 1)
	assert.Equal(t, []string{"key-a", "key-b"}, seenKeys)
}

func TestRateLimitExhaustsAllKeys(t *testing.T) {
	calls := 0
	client := newTestClient([]string{"key-a", "key-b", "key-c"}, func(req *http.Request) *http.Response {
		calls++
		return jsonResponse(http.StatusTooManyRequests, `{"status":{"error_code":1008}}`)
	})

	_, err := client.FetchListings(context.Background(), 100)
	assert.ErrorIs(t, err, ErrAllKeysExhausted)
	// One pass over the ring, no endless retrying
	assert.Equal(t, 3, calls)
}

func TestMissingDataField(t *testing.T) {
	client := newTestClient([]string{"key-a"}, func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusOK, `{"status":{"error_code":0}}`)
	})

	_, err := client.FetchListings(context.Background(), 100)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestNoKeysConfigured(t *testing.T) {
	client := newTestClient(nil, func(req *http.Request) *http.Response {
		t.Fatal("no request should be made without keys")
		return nil
	})

	_, err := client.FetchListings(context.Background(), 100)
	assert.ErrorIs(t, err, ErrNoAPIKeys)
}

func TestUnexpectedStatus(t *testing.T) {
	client := newTestClient([]string{"key-a"}, func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusInternalServerError, `{"status":{"error_code":500}}`)
	})

	_, err := client.FetchListings(context.Background(), 100)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestFetchFearGreedHistory(t *testing.T) {
	body := `{"data":[
		{"timestamp":"1714521600","value":72,"value_classification":"Greed"},
		{"timestamp":"1714608000","value":65,"value_classification":"Greed"}]}`
	client := newTestClient([]string{"key-a"}, func(req *http.Request) *http.Response {
		assert.Contains(t, req.URL.String(), "/v3/fear-and-greed/historical")
		assert.Contains(t, req.URL.RawQuery, "count=30")
		return jsonResponse(http.StatusOK, body)
	})

	entries, err := client.FetchFearGreedHistory(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 72, entries[0].Value)
	assert.Equal(t, "Greed", entries[0].ValueClassification)
}

func TestFetchAltcoinSeason(t *testing.T) {
	body := `{"data":{"points":[
		{"timestamp":"1714521600","altcoinIndex":"42.5","altcoinMarketcap":"950000000000"},
		{"timestamp":"1714608000","altcoinIndex":"45.1","altcoinMarketcap":"970000000000"}]}}`
	client := newTestClient([]string{"key-a"}, func(req *http.Request) *http.Response {
		assert.Contains(t, req.URL.Path, "/data-api/v3/altcoin-season/chart")
		assert.Contains(t, req.URL.RawQuery, "convertId=2781")
		assert.Equal(t, "key-a", req.Header.Get("X-CMC_PRO_API_KEY"))
		return jsonResponse(http.StatusOK, body)
	})

	entries, err := client.FetchAltcoinSeason(context.Background(), 30)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "42.5", entries[0].AltcoinIndex)
}

func TestFetchAltcoinSeasonMissingPoints(t *testing.T) {
	client := newTestClient([]string{"key-a"}, func(req *http.Request) *http.Response {
		return jsonResponse(http.StatusOK, `{"data":{"series":[]}}`)
	})

	_, err := client.FetchAltcoinSeason(context.Background(), 30)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}
