package types

import (
	"strings"
	"time"
)

// Role is the authorization role carried by a user
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User represents a tenant of the platform
type User struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// Actor is the authenticated caller of an operation
type Actor struct {
	UserID uint64
	Role   Role
}

// IsAdmin reports whether the actor holds the administrator role
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Container is the persisted record of a rented development container.
// Name is also the engine-side container identifier.
type Container struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	ImageName   string    `json:"imageName"`
	SSHPort     int       `json:"sshPort"`
	JupyterPort int       `json:"jupyterPort"`
	Password    string    `json:"password"`
	CPU         float64   `json:"CPU"`
	RAM         string    `json:"RAM"`
	GPU         string    `json:"GPU"`
	UserID      uint64    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Ports returns the host ports claimed by the container
func (c *Container) Ports() []int {
	return []int{c.SSHPort, c.JupyterPort}
}

// GPUDisabled reports whether the GPU specification requests no GPU
func GPUDisabled(spec string) bool {
	return strings.EqualFold(strings.TrimSpace(spec), "none")
}

// TicketStatus is the workflow state of a support ticket
type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketClosed     TicketStatus = "closed"
)

// Ticket is a support ticket opened against a container.
// ContainerID is nil once the referenced container has been deleted;
// ContainerName and OwnerUserID keep the context of the original reference.
type Ticket struct {
	ID            uint64       `json:"id"`
	ContainerID   *uint64      `json:"containerId"`
	ContainerName string       `json:"containerName"`
	OwnerUserID   uint64       `json:"ownerUserId"`
	Subject       string       `json:"subject"`
	Body          string       `json:"body"`
	Status        TicketStatus `json:"status"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// ContainerState is the engine-observed state of a container
type ContainerState string

const (
	StateRunning  ContainerState = "running"
	StateExited   ContainerState = "exited"
	StateCreated  ContainerState = "created"
	StateNotFound ContainerState = "not_found"
	StateUnknown  ContainerState = "unknown"
)

// Known reports whether the state came from a live engine answer
func (s ContainerState) Known() bool {
	return s != StateNotFound && s != StateUnknown && s != ""
}

// StatusSnapshot is the live status of one container as reported by the engine
type StatusSnapshot struct {
	Name  string         `json:"name"`
	State ContainerState `json:"state"`
	Pid   int            `json:"pid"`
}

// StatsSnapshot is a one-shot resource usage sample for one container.
// Values are kept as the engine formats them.
type StatsSnapshot struct {
	Name      string `json:"name"`
	ID        string `json:"id,omitempty"`
	CPUPerc   string `json:"cpuPerc"`
	MemUsage  string `json:"memUsage"`
	MemPerc   string `json:"memPerc"`
	NetIO     string `json:"netIO"`
	BlockIO   string `json:"blockIO"`
	PIDs      string `json:"pids"`
	MemBytes  int64  `json:"memBytes,omitempty"`
	MemLimitB int64  `json:"memLimitBytes,omitempty"`
}

// ContainerView is a persisted record merged with its live engine status.
// Status is nil when the engine has no such container or could not be queried.
type ContainerView struct {
	*Container
	Status *string        `json:"status"`
	State  ContainerState `json:"state"`
}

// ImageSearchResult is one entry of an image search
type ImageSearchResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Stars       string `json:"stars"`
	Official    bool   `json:"official"`
}

// SweepReport lists mismatches between persisted records and engine containers
// and port claims held for names that have no record. A create whose cleanup
// failed leaves its claims behind on purpose; they show up here.
type SweepReport struct {
	PersistedWithoutEngine []string  `json:"persistedWithoutEngine"`
	EngineWithoutPersisted []string  `json:"engineWithoutPersisted"`
	ClaimsWithoutPersisted []string  `json:"claimsWithoutPersisted"`
	CheckedAt              time.Time `json:"checkedAt"`
}

// Clean reports whether the sweep found no mismatch
func (r *SweepReport) Clean() bool {
	return len(r.PersistedWithoutEngine) == 0 && len(r.EngineWithoutPersisted) == 0 &&
		len(r.ClaimsWithoutPersisted) == 0
}
