/*
Package lifecycle orchestrates GPU container rentals. A Manager ties the
record store, the container engine and the port allocator together and
exposes one method per user-facing operation.

# Operations

	Create          admin        allocate ports, run, then persist
	Reset           owner        remove and run again from the record
	Start, Stop     admin        engine start/stop; Start also starts sshd
	Restart         owner        engine restart and sshd
	Delete          admin        engine remove, then record delete
	ChangePassword  owner        chpasswd inside the container, then record
	Get, Logs,      owner/admin  read paths
	Stats, JupyterURL
	ListMine        any user     own containers with live status
	ListAll         admin        every container with live status
	BatchStats      admin        one stats and one inspect query for all
	Sweep           admin        orphan report in both directions

Every check goes through authorize with a Policy. Authorization runs before
any engine call, so a denied request never touches the engine. "Owner" is
strict: administrators cannot reset, restart or change the password of a
container they do not own.

# Consistency

The engine and the store cannot share a transaction. Create persists only
after the engine run succeeds and removes the engine container again when
the write fails. Delete and ChangePassword change the engine first. When the
second step of any of these fails and cannot be undone, the caller receives
a *types.PartialFailureError, an EventPartialFailure is published and the
gpubox_partial_failures_total counter is incremented.

Mutating operations on the same container name are serialized by an
in-process keyed mutex. Live status is never written back into records;
Sweep reports drift without repairing it.
*/
package lifecycle
