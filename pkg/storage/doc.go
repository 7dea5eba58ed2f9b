/*
Package storage provides BoltDB-backed persistence for gpubox.

BoltStore keeps every entity as JSON in its own bucket:

	users            user ID (uint64, big endian)      -> User
	containers       container ID (uint64, big endian) -> Container
	container_names  container name                    -> container ID
	port_claims      host port (uint64, big endian)    -> owning container name
	tickets          ticket ID (uint64, big endian)    -> Ticket

IDs come from the bucket sequence, so they behave like relational surrogate
keys: assigned at insert, never reused.

# Port claims

Port allocation and container creation are split by an engine call that can
take minutes. ClaimPorts closes the check-then-act window: inside a single
write transaction it skips ports already present in port_claims and records
the chosen ones under the new container's name. bbolt serializes write
transactions, so two concurrent creations can never receive the same port.
Claims are dropped by ReleasePorts when a creation is rolled back, and by
DeleteContainer together with the record.

# Ticket references

DeleteContainer detaches tickets instead of deleting them. In the same
transaction that removes the container row it clears ContainerID on every
ticket that pointed at it; the ticket keeps ContainerName and OwnerUserID.
*/
package storage
