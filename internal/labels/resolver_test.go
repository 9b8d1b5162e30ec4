package labels

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestResolveObject(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, `{"0x00000000000000000000000000000000000000AA": "a16z"}`)
	}))
	defer srv.Close()

	r := NewResolver(srv.URL)
	ctx := context.Background()
	if got := r.Resolve(ctx, "0x00000000000000000000000000000000000000aa"); got != "a16z" {
		t.Errorf("got %q", got)
	}
	if got := r.Resolve(ctx, "0x00000000000000000000000000000000000000bb"); got != "" {
		t.Errorf("got %q", got)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("fetched %d times, want 1", n)
	}
}

func TestResolveList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"address": "0xCC", "label": "Binance 14"}]`)
	}))
	defer srv.Close()

	if got := NewResolver(srv.URL).Resolve(context.Background(), "0xcc"); got != "Binance 14" {
		t.Errorf("got %q", got)
	}
}

func TestResolveFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	if got := NewResolver(srv.URL).Resolve(context.Background(), "0xcc"); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestNilResolver(t *testing.T) {
	var r *Resolver = NewResolver("")
	if got := r.Resolve(context.Background(), "0xcc"); got != "" {
		t.Errorf("got %q", got)
	}
}
