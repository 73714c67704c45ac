package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hackstack/hack/pkg/log"
	"github.com/hackstack/hack/pkg/types"
)

// Compose label keys recorded by the container runtime.
const (
	labelProject    = "com.docker.compose.project"
	labelService    = "com.docker.compose.service"
	labelOneOff     = "com.docker.compose.oneoff"
	labelWorkingDir = "com.docker.compose.project.working_dir"
	labelOrdinal    = "com.docker.compose.container-number"
)

// ProjectInventory groups one compose project's containers by service.
type ProjectInventory struct {
	Label      string
	WorkingDir string
	Infra      bool // working dir lives under the state root
	Services   map[string][]types.ContainerRecord
}

// ServiceNames returns the project's services sorted by name.
func (p *ProjectInventory) ServiceNames() []string {
	names := make([]string, 0, len(p.Services))
	for name := range p.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunningServices counts services with at least one running container,
// ignoring one-off containers.
func (p *ProjectInventory) RunningServices() int {
	n := 0
	for _, containers := range p.Services {
		for _, c := range containers {
			if !c.OneOff && c.State == types.ContainerRunning {
				n++
				break
			}
		}
	}
	return n
}

// ContainerCount counts non-one-off containers across all services.
func (p *ProjectInventory) ContainerCount() int {
	n := 0
	for _, containers := range p.Services {
		for _, c := range containers {
			if !c.OneOff {
				n++
			}
		}
	}
	return n
}

// Inventory is the derived container topology. When the runtime is absent
// or unreachable, Projects is empty and Unavailable carries the
// diagnostic; that is not a fatal condition.
type Inventory struct {
	Projects    map[string]*ProjectInventory
	Unavailable string
}

// SortedProjects returns the projects sorted by label.
func (inv *Inventory) SortedProjects() []*ProjectInventory {
	out := make([]*ProjectInventory, 0, len(inv.Projects))
	for _, p := range inv.Projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Client shells out to the container runtime CLI.
type Client struct {
	binary    string
	stateRoot string
}

// NewClient creates an inventory client. stateRoot classifies compose
// projects whose working dir lives under it as global infra.
func NewClient(binary, stateRoot string) *Client {
	if binary == "" {
		binary = "docker"
	}
	return &Client{binary: binary, stateRoot: stateRoot}
}

// List enumerates compose-labeled containers and inspects them in bulk.
// Determinism: projects sort by label, services by name, containers by id.
func (c *Client) List(ctx context.Context) (*Inventory, error) {
	inv := &Inventory{Projects: make(map[string]*ProjectInventory)}

	ids, err := c.enumerate(ctx)
	if err != nil {
		inv.Unavailable = err.Error()
		log.WithComponent("runtime").Debug().Err(err).Msg("container runtime unavailable")
		return inv, nil
	}
	if len(ids) == 0 {
		return inv, nil
	}

	details, err := c.inspect(ctx, ids)
	if err != nil {
		inv.Unavailable = err.Error()
		return inv, nil
	}

	for _, d := range details {
		labels := d.Config.Labels
		project := labels[labelProject]
		service := labels[labelService]
		if project == "" || service == "" {
			continue
		}

		ordinal, _ := strconv.Atoi(labels[labelOrdinal])
		record := types.ContainerRecord{
			ID:              d.ID,
			ProjectLabel:    project,
			ServiceLabel:    service,
			InstanceOrdinal: ordinal,
			State:           types.ParseContainerState(d.State.Status),
			Status:          d.State.Status,
			WorkingDir:      labels[labelWorkingDir],
			OneOff:          strings.EqualFold(labels[labelOneOff], "true"),
		}

		entry, ok := inv.Projects[project]
		if !ok {
			entry = &ProjectInventory{
				Label:      project,
				WorkingDir: record.WorkingDir,
				Infra:      c.isInfra(record.WorkingDir),
				Services:   make(map[string][]types.ContainerRecord),
			}
			inv.Projects[project] = entry
		}
		entry.Services[service] = append(entry.Services[service], record)
	}

	for _, p := range inv.Projects {
		for _, containers := range p.Services {
			sort.Slice(containers, func(i, j int) bool { return containers[i].ID < containers[j].ID })
		}
	}
	return inv, nil
}

// enumerate lists container ids carrying the compose project label.
func (c *Client) enumerate(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "ps", "--all", "--quiet", "--no-trunc",
		"--filter", "label="+labelProject)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			ids = append(ids, line)
		}
	}
	return ids, nil
}

// inspectDetail is the subset of docker inspect output the inventory
// consumes.
type inspectDetail struct {
	ID    string `json:"Id"`
	State struct {
		Status string `json:"Status"`
	} `json:"State"`
	Config struct {
		Labels map[string]string `json:"Labels"`
	} `json:"Config"`
}

func (c *Client) inspect(ctx context.Context, ids []string) ([]inspectDetail, error) {
	args := append([]string{"inspect"}, ids...)
	out, err := c.run(ctx, args...)
	if err != nil {
		return nil, err
	}
	var details []inspectDetail
	if err := json.Unmarshal([]byte(out), &details); err != nil {
		return nil, fmt.Errorf("parse inspect output: %w", err)
	}
	return details, nil
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	// Runtime CLIs can leave children holding the output pipes; without a
	// wait delay a cancelled command blocks Run until those children exit.
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", types.NewCodedError(types.CodeRuntimeUnavailable, "%s %s: %s", c.binary, args[0], msg)
	}
	return stdout.String(), nil
}

func (c *Client) isInfra(workingDir string) bool {
	if c.stateRoot == "" || workingDir == "" {
		return false
	}
	rel := strings.TrimPrefix(workingDir, strings.TrimSuffix(c.stateRoot, "/"))
	return rel != workingDir && (rel == "" || strings.HasPrefix(rel, "/"))
}
