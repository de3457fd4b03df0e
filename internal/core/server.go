package core

import "time"

// CandidateSource records where a server candidate came from.
type CandidateSource string

const (
	SourceDiscovery CandidateSource = "discovery"
	SourceRegistry  CandidateSource = "registry"
	SourceManual    CandidateSource = "manual"
)

// NetworkClass is the network a candidate is expected to be reached over.
type NetworkClass string

const (
	NetworkLocal    NetworkClass = "local"
	NetworkWideArea NetworkClass = "wide-area"
	NetworkUnknown  NetworkClass = "unknown"
)

// Via is the path a registry entry resolved through.
type Via string

const (
	ViaLAN Via = "lan"
	ViaWAN Via = "wan"
)

// ServerCandidate is a connectable server endpoint.
type ServerCandidate struct {
	ID      string          `json:"id"`
	Label   string          `json:"label"`
	URL     string          `json:"url"`
	Source  CandidateSource `json:"source"`
	Network NetworkClass    `json:"network"`
	Via     Via             `json:"via,omitempty"`
}

// NetworkHint maps the candidate onto the play request's network_type.
func (c ServerCandidate) NetworkHint() string {
	switch c.Network {
	case NetworkLocal:
		return string(ViaLAN)
	case NetworkWideArea:
		return string(ViaWAN)
	}
	return ""
}

// RegistryEntry is one server listed in the account registry.
type RegistryEntry struct {
	ServerID        string     `json:"server_id"`
	DeviceName      string     `json:"device_name"`
	LANAddresses    []string   `json:"lan_addresses"`
	WANEndpoint     string     `json:"wan_direct_endpoint,omitempty"`
	OverlayEndpoint string     `json:"overlay_endpoint,omitempty"`
	Status          string     `json:"status,omitempty"`
	LastSeenAt      *time.Time `json:"last_seen_at,omitempty"`
}

// ResolvedEndpoint is the endpoint chosen for a registry entry.
type ResolvedEndpoint struct {
	URL string `json:"url"`
	Via Via    `json:"via"`
	Raw string `json:"raw"`
}
