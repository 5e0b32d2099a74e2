package vehicle

import (
	"os"

	"github.com/denisbrodbeck/machineid"
)

const appID = "evt-vehicle"

// NodeID derives the node id from the machine id, hashed per application.
// Hosts without a machine id fall back to the hostname.
func NodeID() string {
	id, err := machineid.ProtectedID(appID)
	if err == nil {
		return id[:16]
	}
	host, herr := os.Hostname()
	if herr != nil {
		panic(err)
	}
	return host
}
