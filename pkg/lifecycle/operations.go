package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/gpubox/pkg/engine"
	"github.com/cuemby/gpubox/pkg/events"
	"github.com/cuemby/gpubox/pkg/log"
	"github.com/cuemby/gpubox/pkg/metrics"
	"github.com/cuemby/gpubox/pkg/types"
)

// startSSHScript starts sshd when the image has it and succeeds otherwise
const startSSHScript = "if command -v sshd >/dev/null 2>&1; then mkdir -p /run/sshd && (pgrep -x sshd >/dev/null || /usr/sbin/sshd); fi"

// CreateRequest describes a container to provision for a user
type CreateRequest struct {
	Image       string  `json:"image"`
	MemoryLimit string  `json:"memoryLimit"`
	CPUs        float64 `json:"cpus"`
	GPUs        string  `json:"gpus"`
	UserID      uint64  `json:"userContainer"`
}

// Validate checks that every required field is present and well formed
func (r CreateRequest) Validate() error {
	var missing []string
	if r.Image == "" {
		missing = append(missing, "image")
	}
	if r.MemoryLimit == "" {
		missing = append(missing, "memoryLimit")
	}
	if r.CPUs == 0 {
		missing = append(missing, "cpus")
	}
	if r.GPUs == "" {
		missing = append(missing, "gpus")
	}
	if r.UserID == 0 {
		missing = append(missing, "userContainer")
	}
	if len(missing) > 0 {
		return types.Validationf("missing required fields: %s", strings.Join(missing, ", "))
	}

	if err := engine.ValidateImage(r.Image); err != nil {
		return err
	}
	if err := engine.ValidateMemory(r.MemoryLimit); err != nil {
		return err
	}
	if r.CPUs < 0 {
		return types.Validationf("cpus must be positive")
	}
	return engine.ValidateGPU(r.GPUs)
}

// Create provisions a container for req.UserID. Only administrators may
// create containers. No record is written unless the engine run succeeds.
func (m *Manager) Create(ctx context.Context, actor types.Actor, req CreateRequest) (_ *types.Container, err error) {
	const op = "create"
	timer := metrics.NewTimer()
	defer func() { m.observe(op, timer, err) }()

	if err := authorize(actor, nil, AdminOnly); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if m.opts.MaxCPUs > 0 && req.CPUs > float64(m.opts.MaxCPUs) {
		return nil, types.Validationf("cpus %g exceeds host capacity of %d", req.CPUs, m.opts.MaxCPUs)
	}

	user, err := m.store.GetUser(req.UserID)
	if err != nil {
		return nil, err
	}

	name := containerName(user.Name, m.now())
	unlock := m.locks.Lock(name)
	defer unlock()

	logger := log.WithContainer("lifecycle", name).With().Str("op", op).Uint64("user_id", user.ID).Logger()

	ports, err := m.ports.Allocate(ctx, name, 2)
	if err != nil {
		if errors.Is(err, types.ErrResourceExhausted) {
			m.publish(events.EventPortRangeExhausted, name, actor, err.Error(), nil)
		}
		return nil, err
	}
	releasePorts := func() {
		if rerr := m.ports.Release(name); rerr != nil {
			logger.Error().Err(rerr).Msg("Failed to release port claims")
		}
	}

	password, err := generatePassword(generatedPasswordLength)
	if err != nil {
		releasePorts()
		return nil, fmt.Errorf("failed to generate password: %w", err)
	}

	record := &types.Container{
		Name:        name,
		ImageName:   req.Image,
		SSHPort:     ports[0],
		JupyterPort: ports[1],
		Password:    password,
		CPU:         req.CPUs,
		RAM:         req.MemoryLimit,
		GPU:         req.GPUs,
		UserID:      user.ID,
	}

	logger.Info().Int("ssh_port", record.SSHPort).Int("jupyter_port", record.JupyterPort).
		Str("image", record.ImageName).Msg("Creating container")

	if err := m.engine.Run(ctx, engine.RunSpecFor(record)); err != nil {
		// a timed out or noisy run may still have left a container behind
		if errors.Is(err, types.ErrValidation) || m.removeQuietly(ctx, name) {
			releasePorts()
		} else {
			logger.Warn().Msg("Keeping port claims for a container the engine may still run")
		}
		return nil, fmt.Errorf("failed to create container %s: %w", name, err)
	}

	if err := m.store.CreateContainer(record); err != nil {
		cctx, cancel := m.cleanupContext(ctx)
		defer cancel()
		rmErr := m.engine.Remove(cctx, name)
		if rmErr != nil {
			// the container still holds its host ports, so do its claims
			return nil, m.partialFailure(actor, &types.PartialFailureError{
				Container: name,
				Op:        op,
				Succeeded: "engine run",
				Failed:    "record write and compensating engine remove",
				Err:       errors.Join(err, rmErr),
			})
		}
		releasePorts()
		m.publish(events.EventCreateCompensated, name, actor, err.Error(), nil)
		return nil, fmt.Errorf("failed to persist container %s, engine container removed: %w", name, err)
	}

	m.publish(events.EventContainerCreated, name, actor, "", map[string]string{
		"user_id":      strconv.FormatUint(user.ID, 10),
		"image":        record.ImageName,
		"ssh_port":     strconv.Itoa(record.SSHPort),
		"jupyter_port": strconv.Itoa(record.JupyterPort),
	})
	logger.Info().Dur("took", timer.Duration()).Msg("Container created")
	return record, nil
}

// removeQuietly force-removes a container, logs a failure and reports
// whether the container is gone
func (m *Manager) removeQuietly(ctx context.Context, name string) bool {
	cctx, cancel := m.cleanupContext(ctx)
	defer cancel()
	if err := m.engine.Remove(cctx, name); err != nil {
		logger := log.WithContainer("lifecycle", name)
		logger.Warn().Err(err).Msg("Failed to clean up engine container")
		return false
	}
	return true
}

// Reset recreates the engine container from the persisted record. The record
// itself is not modified, so name, ports and password survive the reset.
func (m *Manager) Reset(ctx context.Context, actor types.Actor, name string) error {
	return m.mutate(ctx, actor, "reset", name, OwnerOnly, func(c *types.Container) error {
		if err := m.engine.Remove(ctx, name); err != nil {
			return fmt.Errorf("failed to remove container %s: %w", name, err)
		}
		if err := m.engine.Run(ctx, engine.RunSpecFor(c)); err != nil {
			return fmt.Errorf("failed to recreate container %s: %w", name, err)
		}
		m.publish(events.EventContainerReset, name, actor, "", nil)
		return nil
	})
}

// Start starts a stopped container and its SSH daemon when present
func (m *Manager) Start(ctx context.Context, actor types.Actor, name string) error {
	return m.mutate(ctx, actor, "start", name, AdminOnly, func(c *types.Container) error {
		if err := m.engine.Start(ctx, name); err != nil {
			return fmt.Errorf("failed to start container %s: %w", name, err)
		}
		m.startSSH(ctx, name)
		m.publish(events.EventContainerStarted, name, actor, "", nil)
		return nil
	})
}

// Stop stops a running container
func (m *Manager) Stop(ctx context.Context, actor types.Actor, name string) error {
	return m.mutate(ctx, actor, "stop", name, AdminOnly, func(c *types.Container) error {
		if err := m.engine.Stop(ctx, name); err != nil {
			return fmt.Errorf("failed to stop container %s: %w", name, err)
		}
		m.publish(events.EventContainerStopped, name, actor, "", nil)
		return nil
	})
}

// Restart restarts a container and its SSH daemon when present
func (m *Manager) Restart(ctx context.Context, actor types.Actor, name string) error {
	return m.mutate(ctx, actor, "restart", name, OwnerOnly, func(c *types.Container) error {
		if err := m.engine.Restart(ctx, name); err != nil {
			return fmt.Errorf("failed to restart container %s: %w", name, err)
		}
		m.startSSH(ctx, name)
		m.publish(events.EventContainerRestarted, name, actor, "", nil)
		return nil
	})
}

// startSSH starts sshd inside the container. Images without sshd and
// failures are tolerated.
func (m *Manager) startSSH(ctx context.Context, name string) {
	if _, err := m.engine.Exec(ctx, name, "", "sh", "-c", startSSHScript); err != nil {
		logger := log.WithContainer("lifecycle", name)
		logger.Debug().Err(err).Msg("SSH daemon not started")
	}
}

// Delete removes the engine container and then the record. Tickets that
// referenced the container are kept with their reference cleared.
func (m *Manager) Delete(ctx context.Context, actor types.Actor, name string) error {
	const op = "delete"
	return m.mutate(ctx, actor, op, name, AdminOnly, func(c *types.Container) error {
		if err := m.engine.Remove(ctx, name); err != nil {
			return fmt.Errorf("failed to remove container %s: %w", name, err)
		}
		if err := m.store.DeleteContainer(name); err != nil {
			return m.partialFailure(actor, &types.PartialFailureError{
				Container: name,
				Op:        op,
				Succeeded: "engine remove",
				Failed:    "record delete",
				Err:       err,
			})
		}
		m.publish(events.EventContainerDeleted, name, actor, "", nil)
		return nil
	})
}

// ChangePassword sets the root password inside the container and then on the
// record. The record keeps the old password if the engine call fails.
func (m *Manager) ChangePassword(ctx context.Context, actor types.Actor, name, password string) error {
	const op = "change_password"
	return m.mutate(ctx, actor, op, name, OwnerOnly, func(c *types.Container) error {
		if err := m.validatePassword(password); err != nil {
			return err
		}
		if _, err := m.engine.Exec(ctx, name, "root:"+password+"\n", "chpasswd"); err != nil {
			return fmt.Errorf("failed to set password in container %s: %w", name, err)
		}
		if err := m.store.UpdateContainerPassword(name, password); err != nil {
			return m.partialFailure(actor, &types.PartialFailureError{
				Container: name,
				Op:        op,
				Succeeded: "engine password change",
				Failed:    "record update",
				Err:       err,
			})
		}
		m.publish(events.EventPasswordChanged, name, actor, "", nil)
		return nil
	})
}

func (m *Manager) validatePassword(password string) error {
	if password == "" {
		return types.Validationf("password is required")
	}
	if len(password) < m.opts.PasswordMinLength {
		return types.Validationf("password must be at least %d characters", m.opts.PasswordMinLength)
	}
	if strings.ContainsAny(password, "\r\n") {
		return types.Validationf("password must be a single line")
	}
	return nil
}
