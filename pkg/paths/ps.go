package paths

import (
	"os/exec"
	"strconv"
	"strings"
)

// runPS fetches a process command line via ps on platforms without /proc.
func runPS(pid int) (string, error) {
	out, err := exec.Command("ps", "-o", "command=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
