// Package schema is the catalogue of WireGuard configuration keys understood by wgconf.
package schema

import "strings"

// Section identifies which part of a configuration file a key belongs to.
type Section int

const (
	// SectionInterface keys describe the local interface ([Interface]).
	SectionInterface Section = iota
	// SectionPeer keys describe a remote peer ([Peer]).
	SectionPeer
)

func (s Section) String() string {
	if s == SectionPeer {
		return "Peer"
	}
	return "Interface"
}

// Param is one recognized configuration key.
type Param struct {
	Name    string // display spelling, used on write
	Field   string // lower-case canonical field name
	Section Section
	Minimal bool // required for a complete coordinator
}

// Interface keys in file order.
var InterfaceKeys = []string{
	"Address", "ListenPort", "PrivateKey", "DNS", "Table", "MTU",
	"PreUp", "PostUp", "PreDown", "PostDown",
}

// Peer keys in file order.
var PeerKeys = []string{"AllowedIPs", "Endpoint", "PublicKey", "PersistentKeepalive"}

// MinimalKeys must be non-empty for a coordinator to be exported.
var MinimalKeys = []string{"Address", "PrivateKey"}

var params = buildParams()

func buildParams() map[string]Param {
	m := make(map[string]Param, len(InterfaceKeys)+len(PeerKeys))
	for _, k := range InterfaceKeys {
		m[strings.ToLower(k)] = Param{Name: k, Field: strings.ToLower(k), Section: SectionInterface}
	}
	for _, k := range PeerKeys {
		m[strings.ToLower(k)] = Param{Name: k, Field: strings.ToLower(k), Section: SectionPeer}
	}
	for _, k := range MinimalKeys {
		p := m[strings.ToLower(k)]
		p.Minimal = true
		m[p.Field] = p
	}
	return m
}

// Lookup resolves a key case-insensitively.
func Lookup(key string) (Param, bool) {
	p, ok := params[strings.ToLower(strings.TrimSpace(key))]
	return p, ok
}

// IsPeerKey reports whether key belongs to the [Peer] section.
func IsPeerKey(key string) bool {
	p, ok := Lookup(key)
	return ok && p.Section == SectionPeer
}

// IsInterfaceKey reports whether key belongs to the [Interface] section.
func IsInterfaceKey(key string) bool {
	p, ok := Lookup(key)
	return ok && p.Section == SectionInterface
}

// All returns every parameter, interface keys first, in file order.
func All() []Param {
	out := make([]Param, 0, len(params))
	for _, k := range InterfaceKeys {
		out = append(out, params[strings.ToLower(k)])
	}
	for _, k := range PeerKeys {
		out = append(out, params[strings.ToLower(k)])
	}
	return out
}
