// Package model holds the in-memory representation of a coordinator and its peers.
package model

import (
	"strings"

	"github.com/wgconf/wgconf/internal/schema"
)

// DefaultCoordinatorFile is the coordinator's file name inside the configuration directory.
const DefaultCoordinatorFile = "wg0.conf"

// Interface holds one value per [Interface] key. Empty means unset.
type Interface struct {
	Address    string
	ListenPort string
	PrivateKey string
	DNS        string
	Table      string
	MTU        string
	PreUp      string
	PostUp     string
	PreDown    string
	PostDown   string
}

// PeerSection holds one value per [Peer] key. Empty means unset.
type PeerSection struct {
	AllowedIPs          string
	Endpoint            string
	PublicKey           string
	PersistentKeepalive string
}

// IsEmpty reports whether no key of the section is set.
func (s PeerSection) IsEmpty() bool {
	return s == PeerSection{}
}

var interfaceFields = map[string]func(*Interface) *string{
	"address":    func(i *Interface) *string { return &i.Address },
	"listenport": func(i *Interface) *string { return &i.ListenPort },
	"privatekey": func(i *Interface) *string { return &i.PrivateKey },
	"dns":        func(i *Interface) *string { return &i.DNS },
	"table":      func(i *Interface) *string { return &i.Table },
	"mtu":        func(i *Interface) *string { return &i.MTU },
	"preup":      func(i *Interface) *string { return &i.PreUp },
	"postup":     func(i *Interface) *string { return &i.PostUp },
	"predown":    func(i *Interface) *string { return &i.PreDown },
	"postdown":   func(i *Interface) *string { return &i.PostDown },
}

var peerFields = map[string]func(*PeerSection) *string{
	"allowedips":          func(s *PeerSection) *string { return &s.AllowedIPs },
	"endpoint":            func(s *PeerSection) *string { return &s.Endpoint },
	"publickey":           func(s *PeerSection) *string { return &s.PublicKey },
	"persistentkeepalive": func(s *PeerSection) *string { return &s.PersistentKeepalive },
}

// Field returns a pointer to the value of an [Interface] key, matched case-insensitively.
func (i *Interface) Field(key string) (*string, bool) {
	p, ok := schema.Lookup(key)
	if !ok || p.Section != schema.SectionInterface {
		return nil, false
	}
	return interfaceFields[p.Field](i), true
}

// Field returns a pointer to the value of a [Peer] key, matched case-insensitively.
func (s *PeerSection) Field(key string) (*string, bool) {
	p, ok := schema.Lookup(key)
	if !ok || p.Section != schema.SectionPeer {
		return nil, false
	}
	return peerFields[p.Field](s), true
}

// Coordinator is the hub configuration. It owns its peers.
type Coordinator struct {
	Name     string
	Filename string
	Interface
	Peers []*Peer
}

// NewCoordinator returns an empty coordinator with the default file name.
func NewCoordinator() *Coordinator {
	return &Coordinator{Filename: DefaultCoordinatorFile}
}

// Missing lists the display names of unset minimal keys.
func (c *Coordinator) Missing() []string {
	var missing []string
	for _, k := range schema.MinimalKeys {
		v, _ := c.Interface.Field(k)
		if strings.TrimSpace(*v) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// Peer is a remote client configuration.
//
// Remote is the [Peer] block of the peer's own file and describes the
// coordinator. Client is the coordinator file's [Peer] block for this peer.
type Peer struct {
	Name     string
	Filename string
	Interface
	Remote PeerSection
	Client PeerSection
}

// FindByPublicKey returns the indices of peers whose Client.PublicKey equals key.
func (c *Coordinator) FindByPublicKey(key string) []int {
	var out []int
	if key == "" {
		return out
	}
	for i, p := range c.Peers {
		if p.Client.PublicKey == key {
			out = append(out, i)
		}
	}
	return out
}
