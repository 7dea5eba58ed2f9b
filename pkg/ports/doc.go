// Package ports allocates host ports for container service bindings.
//
// An Allocator draws from one inclusive range shared by every service. It
// scans the whole range once in a random order and reserves the chosen ports
// through an atomic store claim, so concurrent allocations never hand out the
// same port and a saturated range fails with types.ErrResourceExhausted
// instead of retrying forever.
package ports
