package credential

import (
	"fmt"
	"net/http"
	"sync"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
	"github.com/stephnangue/porter/logger"
	"golang.org/x/net/http2"
)

// SharedTransportManager hands out one shared HTTP client to all in-flight
// issuer calls, constructing it lazily on the first acquire and disposing it
// exactly once, on the last release. Without this, one request finishing and
// closing "its own" client while another request is mid-flight on the same
// connection pool makes the in-flight request fail with a "client already
// closed" style error.
//
// Callers must pair every Acquire with exactly one Release on every exit
// path, including error paths:
//
//	client, err := mgr.Acquire()
//	if err != nil { ... }
//	defer mgr.Release()
type SharedTransportManager struct {
	mu       sync.Mutex
	refcount int
	client   *http.Client
	log      logger.Logger

	// buildFn is replaceable in tests to count constructions or fail them
	buildFn func() (*http.Client, error)
}

// NewSharedTransportManager creates an uninitialized manager. The transport
// is not constructed until the first Acquire.
func NewSharedTransportManager(log logger.Logger) *SharedTransportManager {
	return &SharedTransportManager{
		log:     log,
		buildFn: buildPooledClient,
	}
}

// buildPooledClient constructs the shared connection-pooled HTTP client
func buildPooledClient() (*http.Client, error) {
	transport := cleanhttp.DefaultPooledTransport()
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("failed to configure http2: %w", err)
	}
	return &http.Client{Transport: transport}, nil
}

// Acquire returns the shared client, incrementing the reference count.
// The caller that moves the refcount 0->1 performs construction; a failed
// construction rolls the increment back and propagates the error to that
// caller only.
func (m *SharedTransportManager) Acquire() (*http.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refcount++
	if m.refcount == 1 {
		client, err := m.buildFn()
		if err != nil {
			m.refcount--
			return nil, err
		}
		m.client = client
		m.log.Debug("shared transport constructed")
	}

	return m.client, nil
}

// Release decrements the reference count. The release that brings the count
// to zero tears the client down. A release without a matching acquire is a
// defect elsewhere: it is clamped to zero and logged, never propagated, so
// it cannot take down an unrelated request.
func (m *SharedTransportManager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.refcount <= 0:
		m.refcount = 0
		m.log.Error("transport lifecycle violation", logger.Err(ErrTransportLifecycle))
	case m.refcount == 1:
		m.refcount = 0
		m.client.CloseIdleConnections()
		m.client = nil
		m.log.Debug("shared transport torn down")
	default:
		m.refcount--
	}
}

// Refcount returns the current number of holders
func (m *SharedTransportManager) Refcount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refcount
}

// Active reports whether the shared client currently exists
func (m *SharedTransportManager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client != nil
}
