package backend

import (
	"context"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"

	"github.com/angeloszaimis/adaptive-balancer/internal/replica"
)

// Backend is one upstream replica reachable through a reverse proxy.
type Backend struct {
	replica           replica.Replica
	url               *url.URL
	proxy             *httputil.ReverseProxy
	healthy           atomic.Bool
	activeConnections atomic.Int64
}

type transportErrorKey struct{}

// New creates a healthy backend for url. Its replica identity is the URL host.
func New(url *url.URL) *Backend {
	b := &Backend{
		replica: replica.Replica(url.Host),
		url:     url,
		proxy:   httputil.NewSingleHostReverseProxy(url),
	}
	b.proxy.ErrorHandler = transportError
	b.healthy.Store(true)

	return b
}

// transportError hands the error back to Forward instead of writing a 502,
// leaving the response untouched so the caller may try another replica.
func transportError(w http.ResponseWriter, r *http.Request, err error) {
	if slot, ok := r.Context().Value(transportErrorKey{}).(*error); ok {
		*slot = err
		return
	}
	w.WriteHeader(http.StatusBadGateway)
}

// Forward proxies r to the backend. A non-nil error means the backend could
// not be reached and nothing was written to w.
func (b *Backend) Forward(w http.ResponseWriter, r *http.Request) error {
	var err error
	ctx := context.WithValue(r.Context(), transportErrorKey{}, &err)
	b.proxy.ServeHTTP(w, r.WithContext(ctx))
	return err
}

func (b *Backend) Replica() replica.Replica {
	return b.replica
}

// URL returns the backend server URL.
func (b *Backend) URL() *url.URL {
	return b.url
}

func (b *Backend) ReverseProxy() *httputil.ReverseProxy {
	return b.proxy
}

func (b *Backend) IncrementConn() {
	b.activeConnections.Add(1)
}

func (b *Backend) DecrementConn() {
	for {
		current := b.activeConnections.Load()
		if current <= 0 || b.activeConnections.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func (b *Backend) ActiveConnections() int {
	return int(b.activeConnections.Load())
}

// IsHealthy returns true if the backend is currently healthy.
func (b *Backend) IsHealthy() bool {
	return b.healthy.Load()
}

// SetHealthy updates the backend's health status.
// Returns true if the status changed, false if it was already in that state.
func (b *Backend) SetHealthy(healthy bool) (changed bool) {
	return b.healthy.Swap(healthy) != healthy
}
