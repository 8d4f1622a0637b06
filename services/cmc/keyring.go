package cmc

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
)

// ErrNoAPIKeys is returned when no CoinMarketCap API keys are configured.
var ErrNoAPIKeys = errors.New("no CoinMarketCap API keys configured")

// KeyRing hands out CoinMarketCap API keys round-robin. The ring is shared by
// all feed fetchers, so key usage interleaves across feeds; keys are fungible
// and the exact order does not matter.
type KeyRing struct {
	mu   sync.Mutex
	keys []string
	next int
}

// NewKeyRing creates a key ring over the given keys.
func NewKeyRing(keys []string) *KeyRing {
	if len(keys) == 0 {
		log.Println("Warning: no CoinMarketCap API keys configured")
	} else {
		log.Printf("Loaded %d CoinMarketCap API keys", len(keys))
	}
	return &KeyRing{keys: keys}
}

// NewKeyRingFromEnv loads the primary key from COINMARKETCAP_API_KEY plus
// indexed fallback keys COINMARKETCAP_API_KEY_1, COINMARKETCAP_API_KEY_2, ...
func NewKeyRingFromEnv() *KeyRing {
	var keys []string
	if key := os.Getenv("COINMARKETCAP_API_KEY"); key != "" {
		keys = append(keys, key)
	}
	for i := 1; i <= 100; i++ {
		if key := os.Getenv(fmt.Sprintf("COINMARKETCAP_API_KEY_%d", i)); key != "" {
			keys = append(keys, key)
		}
	}
	return NewKeyRing(keys)
}

// NextKey returns the key at the cursor and advances the cursor, wrapping
// around at the end of the list.
func (r *KeyRing) NextKey() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.keys) == 0 {
		return "", ErrNoAPIKeys
	}

	key := r.keys[r.next]
	r.next = (r.next + 1) % len(r.keys)
	return key, nil
}

// Len returns the number of configured keys.
func (r *KeyRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}
