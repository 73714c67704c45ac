package health

import (
	"context"
	"fmt"
	"time"

	"github.com/hackstack/hack/pkg/runtime"
)

// RuntimeProbe checks that the container runtime answers inventory
// queries.
type RuntimeProbe struct {
	Label  string
	Client *runtime.Client
}

// NewRuntimeProbe creates a runtime reachability probe.
func NewRuntimeProbe(label string, client *runtime.Client) *RuntimeProbe {
	return &RuntimeProbe{Label: label, Client: client}
}

func (r *RuntimeProbe) Name() string { return r.Label }

func (r *RuntimeProbe) Check(ctx context.Context) Result {
	start := time.Now()
	inv, err := r.Client.List(ctx)
	if err != nil {
		return Result{
			Status:   StatusError,
			Message:  err.Error(),
			Duration: time.Since(start),
		}
	}
	if inv.Unavailable != "" {
		return Result{
			Status:   StatusError,
			Message:  inv.Unavailable,
			Duration: time.Since(start),
		}
	}
	return Result{
		Status:   StatusOK,
		Message:  fmt.Sprintf("%d compose projects", len(inv.Projects)),
		Duration: time.Since(start),
	}
}
