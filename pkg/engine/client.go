package engine

import (
	"context"

	"github.com/cuemby/gpubox/pkg/types"
)

// Labels applied to every container gpubox creates
const (
	LabelUser    = "gpubox.user"
	LabelManaged = "gpubox.managed"
)

// Client is the capability set of the container engine. Every lifecycle
// operation goes through it so the engine can be replaced in tests.
type Client interface {
	// Run creates and starts a detached container
	Run(ctx context.Context, spec RunSpec) error
	// Remove force-removes a container. A missing container is not an error.
	Remove(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	// Exec runs cmd inside a running container, feeding it stdin when non-empty
	Exec(ctx context.Context, name string, stdin string, cmd ...string) (string, error)
	// Logs returns the last tail lines of the container output
	Logs(ctx context.Context, name string, tail int) (string, error)

	// Inspect returns the live state of one container. A container unknown
	// to the engine yields StateNotFound and a nil error.
	Inspect(ctx context.Context, name string) (types.StatusSnapshot, error)
	// Stats returns a one-shot usage sample of one container
	Stats(ctx context.Context, name string) (types.StatsSnapshot, error)

	// InspectBatch and StatsBatch query many containers with a single engine
	// invocation each and never invoke the engine for an empty name set
	InspectBatch(ctx context.Context, names []string) (map[string]types.StatusSnapshot, error)
	StatsBatch(ctx context.Context, names []string) (map[string]types.StatsSnapshot, error)

	// Search finds images whose name contains term
	Search(ctx context.Context, term string, limit int) ([]types.ImageSearchResult, error)
	// ListManaged returns the names of all containers labelled as gpubox managed
	ListManaged(ctx context.Context) ([]string, error)
	// Ping checks that the engine daemon answers
	Ping(ctx context.Context) error
}
