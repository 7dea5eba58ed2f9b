package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/gpubox/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketUsers      = []byte("users")
	bucketContainers = []byte("containers")
	bucketNames      = []byte("container_names")
	bucketPortClaims = []byte("port_claims")
	bucketTickets    = []byte("tickets")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "gpubox.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketUsers,
			bucketContainers,
			bucketNames,
			bucketPortClaims,
			bucketTickets,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func portKey(port int) []byte {
	return itob(uint64(port))
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// User operations
func (s *BoltStore) CreateUser(user *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if user.ID == 0 {
			id, err := b.NextSequence()
			if err != nil {
				return err
			}
			user.ID = id
		} else if b.Get(itob(user.ID)) != nil {
			return fmt.Errorf("%w: user %d already exists", types.ErrConflict, user.ID)
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = time.Now()
		}
		return putJSON(b, itob(user.ID), user)
	})
}

func (s *BoltStore) GetUser(id uint64) (*types.User, error) {
	var user types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get(itob(id))
		if data == nil {
			return types.NotFoundf("user %d", id)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) ListUsers() ([]*types.User, error) {
	var users []*types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(k, v []byte) error {
			var user types.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			users = append(users, &user)
			return nil
		})
	})
	return users, err
}

// Port claim operations

// ClaimPorts walks candidates in order and claims the first n ports that are
// not already claimed. Either all n ports are claimed or none.
func (s *BoltStore) ClaimPorts(owner string, n int, candidates []int) ([]int, error) {
	if n <= 0 {
		return nil, nil
	}

	var claimed []int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPortClaims)
		seen := make(map[int]bool, n)
		for _, port := range candidates {
			if seen[port] || b.Get(portKey(port)) != nil {
				continue
			}
			seen[port] = true
			claimed = append(claimed, port)
			if len(claimed) == n {
				break
			}
		}
		if len(claimed) < n {
			return fmt.Errorf("%w: %d free ports needed, %d available", types.ErrResourceExhausted, n, len(claimed))
		}
		for _, port := range claimed {
			if err := b.Put(portKey(port), []byte(owner)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ReleasePorts removes every claim held by owner
func (s *BoltStore) ReleasePorts(owner string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return releaseClaims(tx.Bucket(bucketPortClaims), owner)
	})
}

func releaseClaims(b *bolt.Bucket, owner string) error {
	var keys [][]byte
	err := b.ForEach(func(k, v []byte) error {
		if string(v) == owner {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) ListPortClaims() (map[int]string, error) {
	claims := make(map[int]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPortClaims).ForEach(func(k, v []byte) error {
			claims[int(binary.BigEndian.Uint64(k))] = string(v)
			return nil
		})
	})
	return claims, err
}

// Container operations

// CreateContainer persists a new record. Both of its ports must be free or
// already claimed by the container's name.
func (s *BoltStore) CreateContainer(container *types.Container) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		names := tx.Bucket(bucketNames)
		if names.Get([]byte(container.Name)) != nil {
			return fmt.Errorf("%w: container name %s already in use", types.ErrConflict, container.Name)
		}
		if container.SSHPort == container.JupyterPort {
			return types.Validationf("ssh and jupyter ports must differ")
		}

		claims := tx.Bucket(bucketPortClaims)
		for _, port := range container.Ports() {
			owner := claims.Get(portKey(port))
			if owner != nil && string(owner) != container.Name {
				return fmt.Errorf("%w: port %d is claimed by %s", types.ErrConflict, port, owner)
			}
			if err := claims.Put(portKey(port), []byte(container.Name)); err != nil {
				return err
			}
		}

		b := tx.Bucket(bucketContainers)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		container.ID = id
		if container.CreatedAt.IsZero() {
			container.CreatedAt = time.Now()
		}

		if err := names.Put([]byte(container.Name), itob(id)); err != nil {
			return err
		}
		return putJSON(b, itob(id), container)
	})
}

func getContainerByName(tx *bolt.Tx, name string) (*types.Container, error) {
	id := tx.Bucket(bucketNames).Get([]byte(name))
	if id == nil {
		return nil, types.NotFoundf("container %s", name)
	}
	data := tx.Bucket(bucketContainers).Get(id)
	if data == nil {
		return nil, types.NotFoundf("container %s", name)
	}
	var container types.Container
	if err := json.Unmarshal(data, &container); err != nil {
		return nil, err
	}
	return &container, nil
}

func (s *BoltStore) GetContainerByName(name string) (*types.Container, error) {
	var container *types.Container
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		container, err = getContainerByName(tx, name)
		return err
	})
	return container, err
}

func (s *BoltStore) listContainers(filter func(*types.Container) bool) ([]*types.Container, error) {
	var containers []*types.Container
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContainers).ForEach(func(k, v []byte) error {
			var container types.Container
			if err := json.Unmarshal(v, &container); err != nil {
				return err
			}
			if filter == nil || filter(&container) {
				containers = append(containers, &container)
			}
			return nil
		})
	})
	return containers, err
}

func (s *BoltStore) ListContainers() ([]*types.Container, error) {
	return s.listContainers(nil)
}

func (s *BoltStore) ListContainersByUser(userID uint64) ([]*types.Container, error) {
	return s.listContainers(func(c *types.Container) bool {
		return c.UserID == userID
	})
}

func (s *BoltStore) UpdateContainerPassword(name, password string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		container, err := getContainerByName(tx, name)
		if err != nil {
			return err
		}
		container.Password = password
		return putJSON(tx.Bucket(bucketContainers), itob(container.ID), container)
	})
}

func (s *BoltStore) DeleteContainer(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		container, err := getContainerByName(tx, name)
		if err != nil {
			return err
		}

		// Detach tickets first so no ticket keeps a dangling reference
		tickets := tx.Bucket(bucketTickets)
		type update struct {
			key    []byte
			ticket types.Ticket
		}
		var updates []update
		err = tickets.ForEach(func(k, v []byte) error {
			var ticket types.Ticket
			if err := json.Unmarshal(v, &ticket); err != nil {
				return err
			}
			if ticket.ContainerID != nil && *ticket.ContainerID == container.ID {
				updates = append(updates, update{key: append([]byte(nil), k...), ticket: ticket})
			}
			return nil
		})
		if err != nil {
			return err
		}
		now := time.Now()
		for _, u := range updates {
			u.ticket.ContainerID = nil
			if u.ticket.ContainerName == "" {
				u.ticket.ContainerName = container.Name
			}
			if u.ticket.OwnerUserID == 0 {
				u.ticket.OwnerUserID = container.UserID
			}
			u.ticket.UpdatedAt = now
			if err := putJSON(tickets, u.key, u.ticket); err != nil {
				return err
			}
		}

		if err := releaseClaims(tx.Bucket(bucketPortClaims), container.Name); err != nil {
			return err
		}
		if err := tx.Bucket(bucketNames).Delete([]byte(container.Name)); err != nil {
			return err
		}
		return tx.Bucket(bucketContainers).Delete(itob(container.ID))
	})
}

// Ticket operations

// CreateTicket persists a ticket. A non-nil ContainerID must reference an
// existing container; its name and owner are copied onto the ticket.
func (s *BoltStore) CreateTicket(ticket *types.Ticket) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if ticket.ContainerID != nil {
			data := tx.Bucket(bucketContainers).Get(itob(*ticket.ContainerID))
			if data == nil {
				return types.NotFoundf("container %d", *ticket.ContainerID)
			}
			var container types.Container
			if err := json.Unmarshal(data, &container); err != nil {
				return err
			}
			ticket.ContainerName = container.Name
			if ticket.OwnerUserID == 0 {
				ticket.OwnerUserID = container.UserID
			}
		}

		b := tx.Bucket(bucketTickets)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		ticket.ID = id
		if ticket.Status == "" {
			ticket.Status = types.TicketOpen
		}
		now := time.Now()
		ticket.CreatedAt = now
		ticket.UpdatedAt = now
		return putJSON(b, itob(id), ticket)
	})
}

func (s *BoltStore) GetTicket(id uint64) (*types.Ticket, error) {
	var ticket types.Ticket
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTickets).Get(itob(id))
		if data == nil {
			return types.NotFoundf("ticket %d", id)
		}
		return json.Unmarshal(data, &ticket)
	})
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *BoltStore) listTickets(filter func(*types.Ticket) bool) ([]*types.Ticket, error) {
	var tickets []*types.Ticket
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTickets).ForEach(func(k, v []byte) error {
			var ticket types.Ticket
			if err := json.Unmarshal(v, &ticket); err != nil {
				return err
			}
			if filter == nil || filter(&ticket) {
				tickets = append(tickets, &ticket)
			}
			return nil
		})
	})
	return tickets, err
}

func (s *BoltStore) ListTickets() ([]*types.Ticket, error) {
	return s.listTickets(nil)
}

func (s *BoltStore) ListTicketsByOwner(userID uint64) ([]*types.Ticket, error) {
	return s.listTickets(func(t *types.Ticket) bool {
		return t.OwnerUserID == userID
	})
}
