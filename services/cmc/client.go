package cmc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	proAPIBaseURL  = "https://pro-api.coinmarketcap.com"
	dataAPIBaseURL = "https://api.coinmarketcap.com"

	// USD conversion id used by the altcoin-season chart endpoint
	altcoinSeasonConvertID = 2781
)

// ErrAllKeysExhausted is returned when every configured API key was rate
// limited during a single logical call.
var ErrAllKeysExhausted = errors.New("all CoinMarketCap API keys exhausted by rate limiting")

// ErrInvalidResponse is returned when the provider responds with an
// unexpected status or a payload missing the expected data field.
var ErrInvalidResponse = errors.New("invalid response from CoinMarketCap API")

// Client fetches the three CoinMarketCap feeds: listings, fear-and-greed
// history and the altcoin-season index. Every outbound call takes a key from
// the ring; an HTTP 429 rotates to the next key and retries immediately, for
// at most one full pass over the ring.
type Client struct {
	httpClient *http.Client
	keys       *KeyRing
	proBase    string
	dataBase   string
}

// NewClient creates a CoinMarketCap client using the given key ring.
func NewClient(keys *KeyRing) *Client {
	return NewClientWithBases(keys, proAPIBaseURL, dataAPIBaseURL)
}

// NewClientWithBases creates a client pointed at alternate base URLs for the
// pro API and the data API, e.g. a local proxy.
func NewClientWithBases(keys *KeyRing, proBase, dataBase string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		keys:       keys,
		proBase:    proBase,
		dataBase:   dataBase,
	}
}

// Listing is one cryptocurrency row from the listings endpoint.
type Listing struct {
	ID                uint              `json:"id"`
	Name              string            `json:"name"`
	Symbol            string            `json:"symbol"`
	Slug              string            `json:"slug"`
	CmcRank           int               `json:"cmc_rank"`
	NumMarketPairs    int               `json:"num_market_pairs"`
	CirculatingSupply float64           `json:"circulating_supply"`
	TotalSupply       float64           `json:"total_supply"`
	MaxSupply         *float64          `json:"max_supply"`
	InfiniteSupply    bool              `json:"infinite_supply"`
	DateAdded         string            `json:"date_added"`
	LastUpdated       string            `json:"last_updated"`
	Tags              []string         `json:"tags"`
	Quote             map[string]Quote `json:"quote"`
}

// Quote is the per-currency conversion block of a listing.
type Quote struct {
	Price                 float64 `json:"price"`
	Volume24h             float64 `json:"volume_24h"`
	VolumeChange24h       float64 `json:"volume_change_24h"`
	PercentChange1h       float64 `json:"percent_change_1h"`
	PercentChange24h      float64 `json:"percent_change_24h"`
	PercentChange7d       float64 `json:"percent_change_7d"`
	MarketCap             float64 `json:"market_cap"`
	MarketCapDominance    float64 `json:"market_cap_dominance"`
	FullyDilutedMarketCap float64 `json:"fully_diluted_market_cap"`
}

// FearGreedEntry is one historical fear-and-greed index observation.
type FearGreedEntry struct {
	Timestamp           string `json:"timestamp"`
	Value               int    `json:"value"`
	ValueClassification string `json:"value_classification"`
}

// AltcoinSeasonEntry is one point of the altcoin-season chart. The data API
// returns all values as strings.
type AltcoinSeasonEntry struct {
	Timestamp        string `json:"timestamp"`
	AltcoinIndex     string `json:"altcoinIndex"`
	AltcoinMarketcap string `json:"altcoinMarketcap"`
}

// FetchListings fetches the top-limit cryptocurrency listings snapshot.
func (c *Client) FetchListings(ctx context.Context, limit int) ([]Listing, error) {
	url := fmt.Sprintf("%s/v1/cryptocurrency/listings/latest?limit=%d&convert=USD", c.proBase, limit)

	data, err := c.getData(ctx, url)
	if err != nil {
		return nil, err
	}

	var listings []Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("%w: malformed listings data: %v", ErrInvalidResponse, err)
	}
	return listings, nil
}

// FetchFearGreedHistory fetches the last count days of the fear-and-greed
// index.
func (c *Client) FetchFearGreedHistory(ctx context.Context, count int) ([]FearGreedEntry, error) {
	url := fmt.Sprintf("%s/v3/fear-and-greed/historical?count=%d&format=json&invert-scale=false", c.proBase, count)

	data, err := c.getData(ctx, url)
	if err != nil {
		return nil, err
	}

	var entries []FearGreedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: malformed fear-and-greed data: %v", ErrInvalidResponse, err)
	}
	return entries, nil
}

// FetchAltcoinSeason fetches the altcoin-season chart for a rolling window of
// the given number of days ending now.
func (c *Client) FetchAltcoinSeason(ctx context.Context, days int) ([]AltcoinSeasonEntry, error) {
	end := time.Now().Unix()
	start := end - int64(days)*24*60*60
	url := fmt.Sprintf("%s/data-api/v3/altcoin-season/chart?start=%d&end=%d&convertId=%d",
		c.dataBase, start, end, altcoinSeasonConvertID)

	data, err := c.getData(ctx, url)
	if err != nil {
		return nil, err
	}

	var inner struct {
		Points json.RawMessage `json:"points"`
	}
	if err := json.Unmarshal(data, &inner); err != nil {
		return nil, fmt.Errorf("%w: malformed altcoin-season data: %v", ErrInvalidResponse, err)
	}
	if inner.Points == nil {
		return nil, fmt.Errorf("%w: missing data.points field", ErrInvalidResponse)
	}

	var entries []AltcoinSeasonEntry
	if err := json.Unmarshal(inner.Points, &entries); err != nil {
		return nil, fmt.Errorf("%w: malformed altcoin-season points: %v", ErrInvalidResponse, err)
	}
	return entries, nil
}

// getData performs an authenticated GET and returns the raw top-level data
// field of the response body.
func (c *Client) getData(ctx context.Context, url string) (json.RawMessage, error) {
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed body: %v", ErrInvalidResponse, err)
	}
	if payload.Data == nil {
		return nil, fmt.Errorf("%w: missing data field", ErrInvalidResponse)
	}
	return payload.Data, nil
}

// get performs the GET request, rotating API keys on HTTP 429. At most one
// full pass over the key ring is attempted before giving up.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	attempts := c.keys.Len()
	if attempts == 0 {
		return nil, ErrNoAPIKeys
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		key, err := c.keys.NextKey()
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-CMC_PRO_API_KEY", key)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			log.Printf("CoinMarketCap rate limit hit, rotating API key (attempt %d/%d)", attempt, attempts)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, truncate(body, 200))
		}

		return body, nil
	}

	return nil, ErrAllKeysExhausted
}

// truncate limits response bodies quoted in error messages
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
