// Package auth issues and verifies the HS256 bearer tokens accepted by the
// gpubox API. A verified token becomes a types.Actor; the role stored for
// the user takes precedence over the role recorded in the token.
package auth
