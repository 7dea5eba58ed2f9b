/*
Package types defines the data structures shared by every gpubox package.

The package holds the persisted entities (User, Container, Ticket), the live
views built on top of them (StatusSnapshot, StatsSnapshot, ContainerView), the
orphan sweep report and the error taxonomy used across the stack.

# Containers

A Container record is created once per rental and is identified on the engine
side by its Name. The record stores everything needed to recreate the engine
container verbatim: image, both host ports, root password and the CPU, RAM
and GPU quota. Reset relies on this and never rewrites the row.

# Tickets

Tickets reference containers weakly. When a container is deleted its tickets
are kept: ContainerID becomes nil while ContainerName and OwnerUserID keep
the original context.

# Errors

Operations return errors wrapping one of the sentinel kinds:

  - ErrValidation: malformed or missing request fields
  - ErrUnauthenticated: missing or invalid credentials
  - ErrUnauthorized: role or ownership check failed
  - ErrNotFound: referenced record absent
  - ErrConflict: uniqueness violated
  - ErrEngine: engine process failed (see EngineError)
  - ErrResourceExhausted: host port range saturated
  - ErrTimeout: engine process exceeded its deadline

PartialFailureError wraps the cause of a two-step operation that completed
only one step, and names which one.

Code maps any error to a stable string used in API responses.
*/
package types
