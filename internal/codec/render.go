package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wgconf/wgconf/internal/model"
	"github.com/wgconf/wgconf/internal/schema"
)

// ErrNoSuchPeer is returned when a peer index is out of range.
var ErrNoSuchPeer = errors.New("no such peer")

// Kind selects which file Serialize renders.
type Kind int

const (
	KindCoordinator Kind = iota
	KindPeer
)

// Serialize renders the coordinator file (KindCoordinator) or the file of
// the peer at index (KindPeer).
func Serialize(kind Kind, c *model.Coordinator, index int) (string, error) {
	if kind == KindCoordinator {
		return RenderCoordinator(c), nil
	}
	return RenderPeer(c, index)
}

// RenderTarget renders the file addressed by t.
func RenderTarget(c *model.Coordinator, t model.Target) (string, error) {
	if t.Coordinator {
		return Serialize(KindCoordinator, c, 0)
	}
	return Serialize(KindPeer, c, t.Index)
}

// RenderCoordinator renders the coordinator file: its [Interface] section
// followed by one [Peer] block per peer, built from the peers' Client sections.
func RenderCoordinator(c *model.Coordinator) string {
	var sb strings.Builder
	writeInterface(&sb, c.Name, &c.Interface)

	for _, p := range c.Peers {
		sb.WriteString("\n[Peer]\n")
		if p.Name != "" {
			sb.WriteString(fmt.Sprintf("# Name = %s\n", p.Name))
		}
		writePeerKeys(&sb, &p.Client)
	}
	return sb.String()
}

// RenderPeer renders the file of the peer at index: its own [Interface]
// section and a single [Peer] block describing the coordinator.
func RenderPeer(c *model.Coordinator, index int) (string, error) {
	if index < 0 || index >= len(c.Peers) {
		return "", fmt.Errorf("peer index %d: %w", index, ErrNoSuchPeer)
	}
	p := c.Peers[index]

	var sb strings.Builder
	writeInterface(&sb, p.Name, &p.Interface)
	sb.WriteString("\n[Peer]\n")
	writePeerKeys(&sb, &p.Remote)
	return sb.String(), nil
}

func writeInterface(sb *strings.Builder, name string, iface *model.Interface) {
	sb.WriteString("[Interface]\n")
	if name != "" {
		sb.WriteString(fmt.Sprintf("# Name = %s\n", name))
	}
	for _, k := range schema.InterfaceKeys {
		if v, _ := iface.Field(k); *v != "" {
			sb.WriteString(fmt.Sprintf("%s = %s\n", k, *v))
		}
	}
}

func writePeerKeys(sb *strings.Builder, s *model.PeerSection) {
	for _, k := range schema.PeerKeys {
		if v, _ := s.Field(k); *v != "" {
			sb.WriteString(fmt.Sprintf("%s = %s\n", k, *v))
		}
	}
}
