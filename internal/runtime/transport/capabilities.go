package transport

import (
	"github.com/drblury/routeflow/transport"
)

// Capabilities is an alias for the transport Capabilities.
type Capabilities = transport.Capabilities

// CapabilitiesFor returns what the configured transport guarantees.
func CapabilitiesFor(transportName string) Capabilities {
	return transport.GetCapabilities(transportName)
}
