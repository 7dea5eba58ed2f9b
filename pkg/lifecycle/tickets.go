package lifecycle

import (
	"strings"

	"github.com/cuemby/gpubox/pkg/types"
)

// TicketRequest opens a support ticket, optionally about a container
type TicketRequest struct {
	ContainerName string `json:"containerName,omitempty"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
}

// OpenTicket records a ticket for the actor. A ticket about a container
// requires owner or administrator access to it.
func (m *Manager) OpenTicket(actor types.Actor, req TicketRequest) (*types.Ticket, error) {
	if err := authorize(actor, nil, AnyUser); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, types.Validationf("subject is required")
	}

	ticket := &types.Ticket{
		OwnerUserID: actor.UserID,
		Subject:     strings.TrimSpace(req.Subject),
		Body:        req.Body,
		Status:      types.TicketOpen,
	}
	if req.ContainerName != "" {
		c, err := m.lookup(actor, req.ContainerName, OwnerOrAdmin)
		if err != nil {
			return nil, err
		}
		id := c.ID
		ticket.ContainerID = &id
		// tickets belong to the container owner even when an admin files them
		ticket.OwnerUserID = c.UserID
	}

	if err := m.store.CreateTicket(ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Tickets lists every ticket for administrators and the actor's own tickets
// for everyone else
func (m *Manager) Tickets(actor types.Actor) ([]*types.Ticket, error) {
	if err := authorize(actor, nil, AnyUser); err != nil {
		return nil, err
	}
	if actor.IsAdmin() {
		return m.store.ListTickets()
	}
	return m.store.ListTicketsByOwner(actor.UserID)
}
