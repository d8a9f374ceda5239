package manage

import (
	"fmt"
	"net/netip"

	"github.com/wgconf/wgconf/internal/model"
	"github.com/wgconf/wgconf/internal/netsize"
)

// Resize renumbers the configuration into a private network sized for
// hosts addresses. Peers get the first hosts in order and the coordinator
// the last one; AllowedIPs on both sides follow.
func (m *Manager) Resize(c *model.Coordinator, hosts int) (netip.Prefix, error) {
	if hosts < len(c.Peers)+1 {
		return netip.Prefix{}, fmt.Errorf("%d hosts for %d peers and the coordinator: %w", hosts, len(c.Peers), ErrNetworkTooSmall)
	}
	network, err := netsize.PoolForHosts(hosts)
	if err != nil {
		return netip.Prefix{}, err
	}

	last, err := netsize.LastHost(network)
	if err != nil {
		return netip.Prefix{}, err
	}
	addrs := make([]netip.Addr, len(c.Peers))
	for i := range c.Peers {
		if addrs[i], err = netsize.HostAt(network, i); err != nil {
			return netip.Prefix{}, err
		}
	}

	c.Address = netip.PrefixFrom(last, network.Bits()).String()
	for i, p := range c.Peers {
		p.Address = netip.PrefixFrom(addrs[i], network.Bits()).String()
		p.Client.AllowedIPs = netip.PrefixFrom(addrs[i], 32).String()
		p.Remote.AllowedIPs = network.String()
	}

	m.logger.Info().Str("network", network.String()).Int("peers", len(c.Peers)).Msg("network resized")
	return network, nil
}
