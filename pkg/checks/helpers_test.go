package checks

import (
	"net"
	"os"
	"path/filepath"
	"testing"
)

// unusedPort binds a loopback listener, closes it immediately, and returns
// the port it held — a standard trick for getting a port nothing is
// listening on (used by the TCP-CLOSED scenario, spec §8).
func unusedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unusedPort: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

// writeScript writes an executable bash script to a fresh temp directory
// and returns its directory and basename, for pointing TCPLauncherDir/
// TCPProbeBin or HTTPProbeBin at during a test.
func writeScript(t *testing.T, name, body string) (dir, base string) {
	t.Helper()
	dir = t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/bash\n"+body), 0o755); err != nil {
		t.Fatalf("writeScript: %v", err)
	}
	return dir, name
}
