package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"time"
)

// BinaryProbe checks that a binary resolves on PATH.
type BinaryProbe struct {
	Label  string
	Binary string
}

// NewBinaryProbe creates a PATH lookup probe.
func NewBinaryProbe(label, binary string) *BinaryProbe {
	return &BinaryProbe{Label: label, Binary: binary}
}

func (b *BinaryProbe) Name() string { return b.Label }

func (b *BinaryProbe) Check(ctx context.Context) Result {
	start := time.Now()
	path, err := exec.LookPath(b.Binary)
	if err != nil {
		return Result{
			Status:   StatusError,
			Message:  fmt.Sprintf("%s not found on PATH", b.Binary),
			Duration: time.Since(start),
		}
	}
	return Result{
		Status:   StatusOK,
		Message:  path,
		Duration: time.Since(start),
	}
}

// TCPProbe checks reachability of a host:port pair.
type TCPProbe struct {
	Label   string
	Address string
}

// NewTCPProbe creates a TCP reachability probe.
func NewTCPProbe(label, address string) *TCPProbe {
	return &TCPProbe{Label: label, Address: address}
}

func (t *TCPProbe) Name() string { return t.Label }

func (t *TCPProbe) Check(ctx context.Context) Result {
	start := time.Now()
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return Result{
			Status:   StatusError,
			Message:  fmt.Sprintf("connect %s: %v", t.Address, err),
			Duration: time.Since(start),
		}
	}
	conn.Close()
	return Result{
		Status:   StatusOK,
		Message:  fmt.Sprintf("reachable at %s", t.Address),
		Duration: time.Since(start),
	}
}

// FileProbe checks that a file exists at a well-known global path.
type FileProbe struct {
	Label string
	Path  string
}

// NewFileProbe creates a file existence probe.
func NewFileProbe(label, path string) *FileProbe {
	return &FileProbe{Label: label, Path: path}
}

func (f *FileProbe) Name() string { return f.Label }

func (f *FileProbe) Check(ctx context.Context) Result {
	start := time.Now()
	if _, err := os.Stat(f.Path); err != nil {
		return Result{
			Status:   StatusError,
			Message:  fmt.Sprintf("missing %s", f.Path),
			Duration: time.Since(start),
		}
	}
	return Result{
		Status:   StatusOK,
		Message:  f.Path,
		Duration: time.Since(start),
	}
}
