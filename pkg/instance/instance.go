// Package instance derives a stable identifier for this bot installation.
package instance

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
)

const appID = "dca-core"

// ID returns an app-scoped hash of the host machine id, so the raw id never
// leaves the machine. If the machine id is unavailable a random id is used and
// ok is false.
func ID() (id string, ok bool) {
	if mid, err := machineid.ProtectedID(appID); err == nil && mid != "" {
		return mid, true
	}
	return uuid.NewString(), false
}

// Short returns the first n characters of id.
func Short(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n]
}
