// Package entropy provides the injectable random sources used by the economy
// engine: seeded generators for reproducible play and tests, a crypto/rand
// source, and an optional random.org pool with crypto/rand fallback.
package entropy

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"math"
	mrand "math/rand"
	"net/http"
	"sync"
	"time"
)

// Source is the randomness the engine consumes. *math/rand.Rand satisfies it.
type Source interface {
	Float64() float64 // uniform in [0, 1)
	Intn(n int) int   // uniform in [0, n); n > 0
}

// NewSeeded returns a deterministic source. It is not safe for concurrent use;
// give each settlement its own or wrap it with Locked.
func NewSeeded(seed int64) Source {
	return mrand.New(mrand.NewSource(seed))
}

// SeedFor derives a per-owner seed from a base seed so that every settlement
// draws from its own reproducible stream.
func SeedFor(base int64, owner string) int64 {
	h := fnv.New64a()
	h.Write([]byte(owner))
	return base ^ int64(h.Sum64()>>1)
}

// Locked serializes access to a shared Source.
type Locked struct {
	mu  sync.Mutex
	src Source
}

// NewLocked wraps src for concurrent use.
func NewLocked(src Source) *Locked {
	return &Locked{src: src}
}

func (l *Locked) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Float64()
}

func (l *Locked) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.src.Intn(n)
}

// Crypto draws from crypto/rand. Safe for concurrent use.
type Crypto struct{}

func (Crypto) Float64() float64 { return cryptoRandFloat() }

func (Crypto) Intn(n int) int { return intnFromFloat(cryptoRandFloat(), n) }

// Client provides true random numbers from random.org with a local pool.
// Draws never wait on the network: when the pool runs low a background
// refill starts, and an empty pool falls back to crypto/rand. Failed refills
// back off exponentially.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client
	now      func() time.Time

	lowWater    int
	baseBackoff time.Duration
	maxBackoff  time.Duration

	mu        sync.Mutex
	pool      []float64
	refilling bool
	failures  int
	nextTry   time.Time
}

const randomOrgEndpoint = "https://api.random.org/json-rpc/4/invoke"

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:      apiKey,
		endpoint:    randomOrgEndpoint,
		client:      &http.Client{Timeout: 15 * time.Second},
		now:         time.Now,
		lowWater:    10,
		baseBackoff: time.Second,
		maxBackoff:  10 * time.Minute,
	}
}

// Float64 returns a random float64 in [0, 1) from the pool, or from
// crypto/rand while the pool is empty.
func (c *Client) Float64() float64 {
	if c == nil {
		return cryptoRandFloat()
	}

	c.mu.Lock()
	var val float64
	ok := len(c.pool) > 0
	if ok {
		val = c.pool[0]
		c.pool = c.pool[1:]
	}
	if len(c.pool) < c.lowWater && !c.refilling && !c.now().Before(c.nextTry) {
		c.refilling = true
		go c.refill()
	}
	c.mu.Unlock()

	if !ok {
		return cryptoRandFloat()
	}
	return val
}

func (c *Client) Intn(n int) int {
	return intnFromFloat(c.Float64(), n)
}

// Enabled returns true if the client has a valid API key.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Pooled returns how many random.org numbers are waiting in the pool.
func (c *Client) Pooled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pool)
}

func (c *Client) refill() {
	data, err := c.fetch()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.refilling = false

	if err != nil {
		c.failures++
		wait := c.baseBackoff << min(c.failures-1, 20)
		if wait <= 0 || wait > c.maxBackoff {
			wait = c.maxBackoff
		}
		c.nextTry = c.now().Add(wait)
		slog.Debug("random.org refill failed", "error", err, "failures", c.failures, "retry_in", wait)
		return
	}

	c.failures = 0
	c.nextTry = time.Time{}
	for _, v := range data {
		if v >= 0 && v < 1 {
			c.pool = append(c.pool, v)
		}
	}
	slog.Debug("random.org pool refilled", "count", len(c.pool))
}

func (c *Client) fetch() ([]float64, error) {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        c.apiKey,
			"n":             100,
			"decimalPlaces": 6,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	resp, err := c.client.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	var result struct {
		Result struct {
			Random struct {
				Data []float64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("api: %s", result.Error.Message)
	}
	return result.Result.Random.Data, nil
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// crypto/rand does not fail on supported platforms.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

func intnFromFloat(f float64, n int) int {
	if n <= 0 {
		panic("entropy: invalid argument to Intn")
	}
	v := int(math.Floor(f * float64(n)))
	if v >= n {
		v = n - 1
	}
	if v < 0 {
		v = 0
	}
	return v
}
