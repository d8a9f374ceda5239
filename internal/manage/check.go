package manage

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/wgconf/wgconf/internal/diag"
	"github.com/wgconf/wgconf/internal/model"
	"github.com/wgconf/wgconf/internal/netsize"
)

// Check looks for inconsistencies between the coordinator and its peers
// that parsing alone cannot see.
func (m *Manager) Check(c *model.Coordinator) diag.List {
	var out diag.List
	report := func(sev diag.Severity, file, key, format string, args ...any) {
		out.Add(diag.Diagnostic{Severity: sev, File: file, Key: key, Message: fmt.Sprintf(format, args...)})
	}

	if missing := c.Missing(); len(missing) > 0 {
		report(diag.Error, c.Filename, "", "coordinator incomplete, missing %s", strings.Join(missing, ", "))
	}

	network, netErr := coordinatorNetwork(c.Address)
	if netErr != nil && c.Address != "" {
		report(diag.Error, c.Filename, "Address", "%v", netErr)
	}

	coordPub := ""
	if c.PrivateKey != "" {
		pub, err := m.keys.PublicKey(c.PrivateKey)
		if err != nil {
			report(diag.Error, c.Filename, "PrivateKey", "coordinator private key unusable: %v", err)
		} else {
			coordPub = pub
		}
	}

	seenAddr := make(map[netip.Addr]string)
	if a, err := parseHost(c.Address); err == nil {
		seenAddr[a] = "the coordinator"
	}
	seenKey := make(map[string]int)

	for i, p := range c.Peers {
		id := model.DisplayID(i)
		file := p.Filename
		label := fmt.Sprintf("peer %d (%s)", id, p.Name)

		if p.Address == "" || p.PrivateKey == "" {
			report(diag.Error, file, "", "%s incomplete, needs Address and PrivateKey", label)
		}

		if p.Client.PublicKey == "" || p.Client.AllowedIPs == "" {
			report(diag.Warning, file, "AllowedIPs", "%s has no [Peer] block in the coordinator file, it cannot connect", label)
		}

		if p.PrivateKey != "" {
			pub, err := m.keys.PublicKey(p.PrivateKey)
			switch {
			case err != nil:
				report(diag.Error, file, "PrivateKey", "%s private key unusable: %v", label, err)
			case p.Client.PublicKey != "" && pub != p.Client.PublicKey:
				report(diag.Error, file, "PublicKey", "%s private key does not match the public key the coordinator knows", label)
			}
		}

		if coordPub != "" && p.Remote.PublicKey != coordPub {
			report(diag.Error, file, "PublicKey", "%s does not carry the coordinator's current public key", label)
		}

		if p.Client.PublicKey != "" {
			if prev, ok := seenKey[p.Client.PublicKey]; ok {
				report(diag.Error, file, "PublicKey", "%s shares its public key with peer %d", label, prev)
			} else {
				seenKey[p.Client.PublicKey] = id
			}
		}

		if a, err := parseHost(p.Address); err == nil {
			if owner, ok := seenAddr[a]; ok {
				report(diag.Error, file, "Address", "%s uses %s, already taken by %s", label, a, owner)
			} else {
				seenAddr[a] = label
			}
			if netErr == nil && !netsize.IsHost(network, a) {
				report(diag.Warning, file, "Address", "%s address %s is outside the coordinator network %s", label, a, network)
			}
		} else if p.Address != "" {
			report(diag.Error, file, "Address", "%s address %q is not an IP address", label, p.Address)
		}
	}
	return out
}

// SummaryRow is one line of the configuration overview.
type SummaryRow struct {
	ID         int
	Name       string
	PrivateKey string // shortened
	Address    string
}

// Summary lists the coordinator (ID 0) and every peer.
func Summary(c *model.Coordinator) []SummaryRow {
	rows := make([]SummaryRow, 0, len(c.Peers)+1)
	rows = append(rows, SummaryRow{ID: 0, Name: c.Name, PrivateKey: shortKey(c.PrivateKey), Address: c.Address})
	for i, p := range c.Peers {
		rows = append(rows, SummaryRow{
			ID:         model.DisplayID(i),
			Name:       p.Name,
			PrivateKey: shortKey(p.PrivateKey),
			Address:    p.Address,
		})
	}
	return rows
}

func shortKey(k string) string {
	if len(k) <= 12 {
		return k
	}
	return k[:8] + "..."
}
