package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"

	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/types"
)

// launchdLabel identifies the daemon to the macOS service manager.
const launchdLabel = "com.hackstack.hackd"

const plistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
		<string>%s</string>
		<string>daemon</string>
		<string>run</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>%s</string>
	<key>StandardErrorPath</key>
	<string>%s</string>
</dict>
</plist>
`

// Install registers the daemon with the user's service manager so it
// starts at login. Only launchd is supported.
func (s *Supervisor) Install() error {
	if goruntime.GOOS != "darwin" {
		return types.NewCodedError(types.CodeInvalidRequest,
			"service install is only supported on macOS")
	}

	plist := fmt.Sprintf(plistTemplate, launchdLabel, s.binary, s.paths.LogFile, s.paths.LogFile)
	if err := os.MkdirAll(filepath.Dir(s.paths.LaunchdPlist), 0o755); err != nil {
		return fmt.Errorf("create LaunchAgents dir: %w", err)
	}
	if err := os.WriteFile(s.paths.LaunchdPlist, []byte(plist), 0o644); err != nil {
		return fmt.Errorf("write service descriptor: %w", err)
	}

	logger := log.WithComponent("supervisor")
	logger.Info().Str("plist", s.paths.LaunchdPlist).Msg("service descriptor written")

	// Kickstart is best effort; the descriptor alone takes effect at
	// next login.
	target := fmt.Sprintf("gui/%d/%s", os.Getuid(), launchdLabel)
	if out, err := exec.Command("launchctl", "bootstrap",
		fmt.Sprintf("gui/%d", os.Getuid()), s.paths.LaunchdPlist).CombinedOutput(); err != nil {
		logger.Debug().Err(err).Str("output", string(out)).Msg("launchctl bootstrap failed")
	}
	if out, err := exec.Command("launchctl", "kickstart", "-k", target).CombinedOutput(); err != nil {
		logger.Warn().Err(err).Str("output", string(out)).Msg("launchctl kickstart failed")
	}
	return nil
}
