package storage

import (
	"github.com/cuemby/gpubox/pkg/types"
)

// Store defines the interface for persisted platform state
type Store interface {
	// Users
	CreateUser(user *types.User) error
	GetUser(id uint64) (*types.User, error)
	ListUsers() ([]*types.User, error)

	// Port claims. A claim reserves a host port for a container name from
	// allocation until the container is deleted or its creation rolled back.
	ClaimPorts(owner string, n int, candidates []int) ([]int, error)
	ReleasePorts(owner string) error
	ListPortClaims() (map[int]string, error)

	// Containers
	CreateContainer(container *types.Container) error
	GetContainerByName(name string) (*types.Container, error)
	ListContainers() ([]*types.Container, error)
	ListContainersByUser(userID uint64) ([]*types.Container, error)
	UpdateContainerPassword(name, password string) error
	// DeleteContainer removes the record and its port claims, and detaches
	// every ticket that referenced it, in one transaction
	DeleteContainer(name string) error

	// Tickets
	CreateTicket(ticket *types.Ticket) error
	GetTicket(id uint64) (*types.Ticket, error)
	ListTickets() ([]*types.Ticket, error)
	ListTicketsByOwner(userID uint64) ([]*types.Ticket, error)

	// Utility
	Close() error
}
