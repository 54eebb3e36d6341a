// Package dblock serialises database-backed test binaries that share one
// Postgres instance. Packages run in parallel under `go test ./...`, so each
// TestMain holds a loopback listener for the lifetime of its run.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultLockAddr = "127.0.0.1:45432"

// Acquire blocks until the lock is free and returns its release func.
func Acquire() func() {
	addr := os.Getenv("TEST_DB_LOCK_ADDR")
	if addr == "" {
		addr = defaultLockAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
