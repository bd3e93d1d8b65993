package core

import "sort"

// Discoverable is the capability contract for anything that can participate
// in pattern discovery: it must expose a dictionary view and name the keys
// that identify it.
type Discoverable interface {
	ToDict() map[string]interface{}
	DiscoveryKeys() []string
}

// MapPayload adapts an arbitrary flat map to the Discoverable contract.
// It is the default adapter for payloads with no richer representation.
type MapPayload map[string]interface{}

// ToDict implements Discoverable.
func (m MapPayload) ToDict() map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DiscoveryKeys implements Discoverable, returning the map's keys sorted
// for determinism.
func (m MapPayload) DiscoveryKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
