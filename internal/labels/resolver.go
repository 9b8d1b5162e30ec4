// Package labels resolves voter addresses to human readable labels such as
// exchange or delegate names.
package labels

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Resolver fetches and caches an address to label mapping from a JSON
// document. The document is either an object keyed by address or a list
// of {"address", "label"} entries.
type Resolver struct {
	url       string
	mu        sync.RWMutex
	cache     map[string]string // lower case address -> label
	lastFetch time.Time
	ttl       time.Duration
	client    *http.Client
}

// NewResolver returns nil when url is empty. A nil Resolver resolves
// nothing.
func NewResolver(url string) *Resolver {
	if url == "" {
		return nil
	}
	return &Resolver{
		url:    url,
		cache:  map[string]string{},
		ttl:    30 * time.Minute, // labels change rarely
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func key(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Resolve returns the label of address or "".
func (r *Resolver) Resolve(ctx context.Context, address string) string {
	if r == nil || address == "" {
		return ""
	}
	k := key(address)

	r.mu.RLock()
	if l, ok := r.cache[k]; ok {
		r.mu.RUnlock()
		return l
	}
	stale := time.Since(r.lastFetch) > r.ttl
	r.mu.RUnlock()

	if stale {
		r.refresh(ctx)
	}

	r.mu.RLock()
	l := r.cache[k]
	r.mu.RUnlock()
	return l
}

func (r *Resolver) refresh(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Double-check under lock
	if time.Since(r.lastFetch) <= r.ttl {
		return
	}
	// A failed fetch is not retried before the next ttl.
	r.lastFetch = time.Now()

	mapping, err := r.fetch(ctx)
	if err != nil {
		log.Warnf("Label fetch failed: %v", err)
		return
	}
	r.cache = mapping
	log.Infof("Cached %d address labels", len(mapping))
}

type entry struct {
	Address string `json:"address"`
	Label   string `json:"label"`
}

func (r *Resolver) fetch(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("GET %v: %v", r.url, resp.Status)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decode labels")
	}

	mapping := make(map[string]string)
	var byAddress map[string]string
	if err := json.Unmarshal(raw, &byAddress); err == nil {
		for a, l := range byAddress {
			mapping[key(a)] = l
		}
		return mapping, nil
	}
	var list []entry
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, errors.Wrap(err, "labels are neither an object nor a list")
	}
	for _, e := range list {
		if e.Address != "" {
			mapping[key(e.Address)] = e.Label
		}
	}
	return mapping, nil
}
