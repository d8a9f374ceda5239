// Package manage edits a configuration model: creating it, adding and
// removing peers, changing fields, rotating keys and renumbering the network.
//
// Nothing here touches the disk; callers export the model when done.
package manage

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/wgconf/wgconf/internal/diag"
	"github.com/wgconf/wgconf/internal/keys"
	"github.com/wgconf/wgconf/internal/model"
	"github.com/wgconf/wgconf/internal/netsize"
)

// Defaults for a new configuration.
const (
	DefaultCoordinatorName    = "WireGuard VPN-Server"
	DefaultCoordinatorAddress = "192.168.0.254/24"
	DefaultListenPort         = "51820"
)

var (
	ErrDuplicatePublicKey = errors.New("public key already used by another peer")
	ErrNetworkTooSmall    = errors.New("network too small")
	ErrNoFreeAddress      = errors.New("no free address in network")
	ErrUnknownField       = errors.New("unknown field")
	ErrReadOnlyField      = errors.New("field cannot be changed here")
)

// Manager applies edits to a configuration model.
type Manager struct {
	keys   keys.Source
	logger zerolog.Logger
}

// New returns a Manager that uses src for new and derived keys.
func New(src keys.Source, logger zerolog.Logger) *Manager {
	return &Manager{keys: src, logger: logger}
}

// CoordinatorOptions describe a new configuration. Empty fields take defaults.
type CoordinatorOptions struct {
	Name       string
	Address    string
	ListenPort string
}

// NewCoordinator returns a fresh coordinator with its own key pair and no peers.
func (m *Manager) NewCoordinator(opts CoordinatorOptions) (*model.Coordinator, error) {
	if opts.Name == "" {
		opts.Name = DefaultCoordinatorName
	}
	if opts.Address == "" {
		opts.Address = DefaultCoordinatorAddress
	}
	if opts.ListenPort == "" {
		opts.ListenPort = DefaultListenPort
	}

	if _, err := coordinatorNetwork(opts.Address); err != nil {
		return nil, err
	}
	if err := ValidateValue("ListenPort", opts.ListenPort); err != nil {
		return nil, err
	}

	priv, _, err := m.keys.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	c := model.NewCoordinator()
	c.Name = opts.Name
	c.Address = opts.Address
	c.ListenPort = opts.ListenPort
	c.PrivateKey = priv
	m.logger.Debug().Str("address", c.Address).Msg("new configuration")
	return c, nil
}

// coordinatorNetwork parses the coordinator's address and returns its
// network. The network must leave at least two host bits.
func coordinatorNetwork(address string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(firstItem(address))
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("coordinator address %q: %w: %v", address, ErrInvalidValue, err)
	}
	if !p.Addr().Is4() {
		return netip.Prefix{}, fmt.Errorf("coordinator address %q: %w", address, netsize.ErrNotIPv4)
	}
	if netsize.HostCount(p) < 2 {
		return netip.Prefix{}, fmt.Errorf("coordinator address %q: prefix /%d leaves no room for peers: %w", address, p.Bits(), ErrNetworkTooSmall)
	}
	return p.Masked(), nil
}

// PeerOptions describe a new peer. Empty fields take defaults.
type PeerOptions struct {
	Name      string
	Address   string // host address; the coordinator's prefix length is added
	Endpoint  string
	Keepalive string
	// Params are applied with SetField after the peer is built.
	Params [][2]string
}

// AddPeer appends a new peer with a fresh key pair to c and returns its
// 0-based index. Address problems that still leave a usable configuration
// are returned as warnings.
func (m *Manager) AddPeer(c *model.Coordinator, opts PeerOptions) (int, diag.List, error) {
	var warnings diag.List

	network, err := coordinatorNetwork(c.Address)
	if err != nil {
		return -1, nil, err
	}
	coordPub, err := m.keys.PublicKey(c.PrivateKey)
	if err != nil {
		return -1, nil, fmt.Errorf("coordinator private key: %w", err)
	}
	if opts.Endpoint != "" {
		if err := ValidateEndpoint(opts.Endpoint); err != nil {
			return -1, nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
	}
	if err := ValidateValue("PersistentKeepalive", opts.Keepalive); err != nil {
		return -1, nil, err
	}

	var addr netip.Addr
	if opts.Address == "" {
		addr, err = nextFreeHost(c, network)
		if err != nil {
			return -1, nil, err
		}
	} else {
		addr, err = parseHost(opts.Address)
		if err != nil {
			return -1, nil, err
		}
		warnings = append(warnings, addressWarnings(c, network, addr, -1)...)
	}

	priv, pub, err := m.keys.GenerateKeyPair()
	if err != nil {
		return -1, nil, err
	}
	if len(c.FindByPublicKey(pub)) > 0 {
		return -1, nil, fmt.Errorf("%s: %w", pub, ErrDuplicatePublicKey)
	}

	name := opts.Name
	if name == "" {
		name = "Client " + strconv.Itoa(len(c.Peers)+1)
	}

	p := &model.Peer{
		Name: name,
		Interface: model.Interface{
			Address:    netip.PrefixFrom(addr, network.Bits()).String(),
			PrivateKey: priv,
		},
		Remote: model.PeerSection{
			PublicKey:           coordPub,
			Endpoint:            opts.Endpoint,
			AllowedIPs:          network.String(),
			PersistentKeepalive: opts.Keepalive,
		},
		Client: model.PeerSection{
			PublicKey:  pub,
			AllowedIPs: netip.PrefixFrom(addr, 32).String(),
		},
	}
	if opts.Endpoint == "" {
		warnings.Add(diag.Diagnostic{
			Severity: diag.Warning,
			Key:      "Endpoint",
			Message:  fmt.Sprintf("peer %q has no endpoint for the coordinator, set one before distributing its file", name),
		})
	}

	c.Peers = append(c.Peers, p)
	index := len(c.Peers) - 1
	for _, kv := range opts.Params {
		if err := m.SetField(c, model.PeerTarget(index), kv[0], kv[1]); err != nil {
			c.Peers = c.Peers[:index]
			return -1, nil, err
		}
	}

	m.logger.Debug().Str("name", p.Name).Str("address", p.Address).Msg("peer added")
	return index, warnings, nil
}

// RemovePeer deletes the peer at index.
func (m *Manager) RemovePeer(c *model.Coordinator, index int) error {
	if index < 0 || index >= len(c.Peers) {
		return fmt.Errorf("peer index %d: %w", index, model.ErrIDOutOfRange)
	}
	name := c.Peers[index].Name
	c.Peers = append(c.Peers[:index], c.Peers[index+1:]...)
	m.logger.Debug().Str("name", name).Msg("peer removed")
	return nil
}

// Rekey gives the target a fresh key pair. A new coordinator key is pushed
// into every peer's view of the coordinator.
func (m *Manager) Rekey(c *model.Coordinator, t model.Target) error {
	if !t.Coordinator && (t.Index < 0 || t.Index >= len(c.Peers)) {
		return fmt.Errorf("peer index %d: %w", t.Index, model.ErrIDOutOfRange)
	}

	priv, pub, err := m.keys.GenerateKeyPair()
	if err != nil {
		return err
	}

	if t.Coordinator {
		c.PrivateKey = priv
		for _, p := range c.Peers {
			p.Remote.PublicKey = pub
		}
		m.logger.Info().Int("peers", len(c.Peers)).Msg("coordinator rekeyed, every peer file changes")
		return nil
	}

	for i, other := range c.Peers {
		if i != t.Index && other.Client.PublicKey == pub {
			return fmt.Errorf("%s: %w", pub, ErrDuplicatePublicKey)
		}
	}
	p := c.Peers[t.Index]
	p.PrivateKey = priv
	p.Client.PublicKey = pub
	m.logger.Info().Str("name", p.Name).Msg("peer rekeyed")
	return nil
}

func nextFreeHost(c *model.Coordinator, network netip.Prefix) (netip.Addr, error) {
	used := usedAddresses(c, -1)
	for i := 0; i < netsize.HostCount(network); i++ {
		a, err := netsize.HostAt(network, i)
		if err != nil {
			return netip.Addr{}, err
		}
		if !used[a] {
			return a, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("%s: %w", network, ErrNoFreeAddress)
}

// usedAddresses collects the host addresses of the coordinator and every
// peer except skip.
func usedAddresses(c *model.Coordinator, skip int) map[netip.Addr]bool {
	used := make(map[netip.Addr]bool)
	if a, err := parseHost(c.Address); err == nil {
		used[a] = true
	}
	for i, p := range c.Peers {
		if i == skip {
			continue
		}
		if a, err := parseHost(p.Address); err == nil {
			used[a] = true
		}
	}
	return used
}

func addressWarnings(c *model.Coordinator, network netip.Prefix, addr netip.Addr, skip int) diag.List {
	var out diag.List
	if !netsize.IsHost(network, addr) {
		out.Add(diag.Diagnostic{
			Severity: diag.Warning,
			Key:      "Address",
			Message:  fmt.Sprintf("%s is not a host address of the coordinator network %s", addr, network),
		})
	}
	if usedAddresses(c, skip)[addr] {
		out.Add(diag.Diagnostic{
			Severity: diag.Warning,
			Key:      "Address",
			Message:  fmt.Sprintf("%s is already used by the coordinator or another peer", addr),
		})
	}
	return out
}

// parseHost accepts "10.0.0.2" or "10.0.0.2/24" and returns the address.
// Only the first entry of a comma-separated list is considered.
func parseHost(s string) (netip.Addr, error) {
	s = firstItem(s)
	if p, err := netip.ParsePrefix(s); err == nil {
		return p.Addr(), nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("address %q: %w", s, ErrInvalidValue)
	}
	return a, nil
}
