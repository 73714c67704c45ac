package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// EnvStateRoot overrides the per-user state root directory.
	EnvStateRoot = "HACK_STATE_ROOT"

	// EnvDaemonSocket overrides the daemon socket path.
	EnvDaemonSocket = "HACK_DAEMON_SOCKET"

	// DefaultRootName is the directory under the user's home that holds
	// all daemon state.
	DefaultRootName = ".hack"
)

// Paths mints the well-known locations under the per-user state root.
type Paths struct {
	Root         string
	PIDFile      string
	SocketPath   string
	LogFile      string
	RegistryFile string
	TokensFile   string
	CountersFile string
	ConfigFile   string
	LaunchdPlist string
}

// Resolve determines the state root (HACK_STATE_ROOT, else ~/.hack) and
// derives the well-known paths. The root directory is created if absent.
func Resolve() (*Paths, error) {
	root := os.Getenv(EnvStateRoot)
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		root = filepath.Join(home, DefaultRootName)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create state root %s: %w", root, err)
	}

	socket := os.Getenv(EnvDaemonSocket)
	if socket == "" {
		socket = filepath.Join(root, "hackd.sock")
	}

	home, _ := os.UserHomeDir()

	return &Paths{
		Root:         root,
		PIDFile:      filepath.Join(root, "hackd.pid"),
		SocketPath:   socket,
		LogFile:      filepath.Join(root, "hackd.log"),
		RegistryFile: filepath.Join(root, "registry.json"),
		TokensFile:   filepath.Join(root, "tokens.json"),
		CountersFile: filepath.Join(root, "runtime-counters.json"),
		ConfigFile:   filepath.Join(root, "config.yaml"),
		LaunchdPlist: filepath.Join(home, "Library", "LaunchAgents", "com.hackstack.hackd.plist"),
	}, nil
}

// Writable reports whether the state root accepts writes.
func (p *Paths) Writable() error {
	probe := filepath.Join(p.Root, ".writable")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("state root %s is not writable: %w", p.Root, err)
	}
	f.Close()
	os.Remove(probe)
	return nil
}
