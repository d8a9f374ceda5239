// Package netsize picks IPv4 networks large enough for a number of hosts
// and enumerates their usable addresses.
package netsize

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

var (
	ErrInvalidHostCount = errors.New("host count must not be negative")
	ErrTooManyHosts     = errors.New("too many hosts for a private IPv4 network")
	ErrNotIPv4          = errors.New("only IPv4 networks are supported")
	ErrNoHost           = errors.New("host index outside network")
)

// MaxHostBits is the largest network handed out (a /8).
const MaxHostBits = 24

// PrefixForHosts returns the longest prefix length whose network holds more
// than n usable host addresses.
func PrefixForHosts(n int) (int, error) {
	if n < 0 {
		return 0, fmt.Errorf("%d: %w", n, ErrInvalidHostCount)
	}
	for s := 0; s <= MaxHostBits; s++ {
		if (1<<s)-2 > n {
			return 32 - s, nil
		}
	}
	return 0, fmt.Errorf("%d: %w", n, ErrTooManyHosts)
}

// PoolForHosts returns a private network sized by PrefixForHosts, taken from
// 192.168.0.0/16, 172.16.0.0/12 or 10.0.0.0/8 depending on its size.
func PoolForHosts(n int) (netip.Prefix, error) {
	bits, err := PrefixForHosts(n)
	if err != nil {
		return netip.Prefix{}, err
	}
	var base netip.Addr
	switch {
	case bits >= 24:
		base = netip.AddrFrom4([4]byte{192, 168, 0, 0})
	case bits >= 16:
		base = netip.AddrFrom4([4]byte{172, 16, 0, 0})
	default:
		base = netip.AddrFrom4([4]byte{10, 0, 0, 0})
	}
	return netip.PrefixFrom(base, bits), nil
}

// HostCount is the number of usable host addresses in p, excluding the
// network and broadcast addresses.
func HostCount(p netip.Prefix) int {
	if !p.Addr().Is4() {
		return 0
	}
	s := 32 - p.Bits()
	if s < 2 {
		return 0
	}
	return (1 << s) - 2
}

// HostAt returns the i-th usable host of p, counting from zero.
func HostAt(p netip.Prefix, i int) (netip.Addr, error) {
	if !p.Addr().Is4() {
		return netip.Addr{}, ErrNotIPv4
	}
	if i < 0 || i >= HostCount(p) {
		return netip.Addr{}, fmt.Errorf("%d in %s: %w", i, p, ErrNoHost)
	}
	base := p.Masked().Addr().As4()
	v := binary.BigEndian.Uint32(base[:]) + uint32(i) + 1
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], v)
	return netip.AddrFrom4(out), nil
}

// LastHost returns the highest usable host of p.
func LastHost(p netip.Prefix) (netip.Addr, error) {
	return HostAt(p, HostCount(p)-1)
}

// Hosts lists every usable host of p in ascending order.
func Hosts(p netip.Prefix) []netip.Addr {
	n := HostCount(p)
	out := make([]netip.Addr, 0, n)
	for i := 0; i < n; i++ {
		a, _ := HostAt(p, i)
		out = append(out, a)
	}
	return out
}

// IsHost reports whether a is a usable host address of p.
func IsHost(p netip.Prefix, a netip.Addr) bool {
	if HostCount(p) == 0 || !p.Contains(a) {
		return false
	}
	m := p.Masked()
	return a != m.Addr() && a != broadcast(m)
}

func broadcast(p netip.Prefix) netip.Addr {
	b := p.Addr().As4()
	v := binary.BigEndian.Uint32(b[:]) | (1<<(32-p.Bits()) - 1)
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], v)
	return netip.AddrFrom4(out)
}
