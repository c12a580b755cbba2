package api

import (
	"context"
	"net"
	"net/http"
	"time"
)

// NewServer builds the HTTP server. Request contexts derive from parent for its
// values only: cancelling parent (the shutdown signal) must not abort requests
// that Shutdown is still draining.
func NewServer(parent context.Context, addr string, h http.Handler) *http.Server {
	base := context.WithoutCancel(parent)
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}
