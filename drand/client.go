package drand

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Source is the narrow interface deaddrop and client depend on, so tests can
// substitute a fake without spinning up an HTTP server. The asset owner and
// the deaddrop's key-update freshness check call GetBeaconFromFirstChain
// directly instead.
type Source interface {
	ChainList(ctx context.Context) ([]string, error)
	ChainInfo(ctx context.Context, chain string) (ChainInfo, error)
	ChainLatestRandomness(ctx context.Context, chain string) (Beacon, error)
}

// BasicClient talks to a drand HTTP gateway directly, with no caching.
type BasicClient struct {
	baseURL string
	http    *http.Client
}

func NewBasicClient(baseURL string) *BasicClient {
	return &BasicClient{baseURL: baseURL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *BasicClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", path, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: unexpected status %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *BasicClient) ChainList(ctx context.Context) ([]string, error) {
	var chains []string
	if err := c.get(ctx, "/chains", &chains); err != nil {
		return nil, err
	}
	return chains, nil
}

func (c *BasicClient) ChainInfo(ctx context.Context, chain string) (ChainInfo, error) {
	var info ChainInfo
	if err := c.get(ctx, "/"+chain+"/info", &info); err != nil {
		return ChainInfo{}, err
	}
	return info, nil
}

func (c *BasicClient) ChainRandomness(ctx context.Context, chain string, round uint64) (Beacon, error) {
	var beacon Beacon
	if err := c.get(ctx, fmt.Sprintf("/%s/public/%d", chain, round), &beacon); err != nil {
		return Beacon{}, err
	}
	return beacon, nil
}

func (c *BasicClient) ChainLatestRandomness(ctx context.Context, chain string) (Beacon, error) {
	var beacon Beacon
	if err := c.get(ctx, "/"+chain+"/public/latest", &beacon); err != nil {
		return Beacon{}, err
	}
	return beacon, nil
}

type cachedBeacon struct {
	fetchedAt time.Time
	beacon    Beacon
	ttl       time.Duration
}

// CachingClient wraps BasicClient with per-chain info caching (chain info
// never changes) and per-chain beacon caching, with the beacon TTL aligned
// to the chain's own round schedule the way the reference implementation's
// caching client does.
type CachingClient struct {
	client *BasicClient

	mu     sync.Mutex
	info   map[string]ChainInfo
	beacon map[string]cachedBeacon
}

func NewCachingClient(baseURL string) *CachingClient {
	return &CachingClient{
		client: NewBasicClient(baseURL),
		info:   make(map[string]ChainInfo),
		beacon: make(map[string]cachedBeacon),
	}
}

func (c *CachingClient) ChainList(ctx context.Context) ([]string, error) {
	return c.client.ChainList(ctx)
}

func (c *CachingClient) ChainInfo(ctx context.Context, chain string) (ChainInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chainInfoLocked(ctx, chain)
}

func (c *CachingClient) chainInfoLocked(ctx context.Context, chain string) (ChainInfo, error) {
	if info, ok := c.info[chain]; ok {
		return info, nil
	}
	info, err := c.client.ChainInfo(ctx, chain)
	if err != nil {
		return ChainInfo{}, err
	}
	c.info[chain] = info
	return info, nil
}

func (c *CachingClient) ChainRandomness(ctx context.Context, chain string, round uint64) (Beacon, error) {
	return c.client.ChainRandomness(ctx, chain, round)
}

func (c *CachingClient) ChainLatestRandomness(ctx context.Context, chain string) (Beacon, error) {
	c.mu.Lock()
	if entry, ok := c.beacon[chain]; ok {
		if time.Since(entry.fetchedAt) <= entry.ttl {
			c.mu.Unlock()
			return entry.beacon, nil
		}
		delete(c.beacon, chain)
	}
	info, err := c.chainInfoLocked(ctx, chain)
	c.mu.Unlock()
	if err != nil {
		return Beacon{}, err
	}

	beacon, err := c.client.ChainLatestRandomness(ctx, chain)
	if err != nil {
		return Beacon{}, err
	}

	now := uint64(time.Now().Unix())
	ttl := time.Duration(0)
	if info.PeriodSeconds > 0 && now > info.GenesisTime {
		ttl = time.Duration((now-info.GenesisTime)%uint64(info.PeriodSeconds)) * time.Second
	}

	c.mu.Lock()
	c.beacon[chain] = cachedBeacon{fetchedAt: time.Now(), beacon: beacon, ttl: ttl}
	c.mu.Unlock()

	return beacon, nil
}

// GetBeaconFromFirstChain fetches the latest beacon from the lexically
// first chain on the default drand gateway — used by the asset owner to
// anchor the freshness of its key updates without needing a configured
// chain.
func GetBeaconFromFirstChain(ctx context.Context) (Beacon, error) {
	client := NewBasicClient(DefaultAPIURL)
	chains, err := client.ChainList(ctx)
	if err != nil {
		return Beacon{}, fmt.Errorf("list chains: %w", err)
	}
	if len(chains) == 0 {
		return Beacon{}, fmt.Errorf("no drand chains available")
	}
	sort.Strings(chains)
	return client.ChainLatestRandomness(ctx, chains[0])
}
