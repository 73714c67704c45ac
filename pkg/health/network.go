package health

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// NetworkProbe checks that a named runtime network exists, optionally
// asserting its subnet.
type NetworkProbe struct {
	Label   string
	Binary  string // runtime binary, defaults to docker
	Network string
	Subnet  string // optional CIDR assertion
}

// NewNetworkProbe creates a named network existence probe.
func NewNetworkProbe(label, binary, network, subnet string) *NetworkProbe {
	if binary == "" {
		binary = "docker"
	}
	return &NetworkProbe{Label: label, Binary: binary, Network: network, Subnet: subnet}
}

func (n *NetworkProbe) Name() string { return n.Label }

type networkDetail struct {
	Name string `json:"Name"`
	IPAM struct {
		Config []struct {
			Subnet string `json:"Subnet"`
		} `json:"Config"`
	} `json:"IPAM"`
}

func (n *NetworkProbe) Check(ctx context.Context) Result {
	start := time.Now()

	cmd := exec.CommandContext(ctx, n.Binary, "network", "inspect", n.Network)
	cmd.WaitDelay = 2 * time.Second
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return Result{
			Status:   StatusError,
			Message:  fmt.Sprintf("network %s not found", n.Network),
			Duration: time.Since(start),
		}
	}

	var details []networkDetail
	if err := json.Unmarshal(stdout.Bytes(), &details); err != nil || len(details) == 0 {
		return Result{
			Status:   StatusWarn,
			Message:  fmt.Sprintf("network %s: malformed inspect output", n.Network),
			Duration: time.Since(start),
		}
	}

	if n.Subnet != "" {
		for _, cfg := range details[0].IPAM.Config {
			if cfg.Subnet == n.Subnet {
				return Result{
					Status:   StatusOK,
					Message:  fmt.Sprintf("%s on %s", n.Network, n.Subnet),
					Duration: time.Since(start),
				}
			}
		}
		return Result{
			Status:   StatusError,
			Message:  fmt.Sprintf("network %s exists but not on subnet %s", n.Network, n.Subnet),
			Duration: time.Since(start),
		}
	}

	return Result{
		Status:   StatusOK,
		Message:  n.Network,
		Duration: time.Since(start),
	}
}
