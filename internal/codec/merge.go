package codec

import (
	"fmt"
	"strings"

	"github.com/wgconf/wgconf/internal/diag"
	"github.com/wgconf/wgconf/internal/model"
	"github.com/wgconf/wgconf/internal/schema"
)

// Outcome of merging a cross-reference into a coordinator.
type Outcome int

const (
	// Matched means at least one peer received the block's values.
	Matched Outcome = iota
	// Unmatched means no peer has the block's public key; the block was dropped.
	Unmatched
	// Unresolvable means the block has no public key to match on.
	Unresolvable
)

func (o Outcome) String() string {
	switch o {
	case Matched:
		return "matched"
	case Unmatched:
		return "unmatched"
	case Unresolvable:
		return "unresolvable"
	default:
		return "unknown"
	}
}

// MergeResult reports what Merge did.
type MergeResult struct {
	Outcome     Outcome
	Indices     []int // 0-based indices of updated peers
	Diagnostics diag.List
}

// Merge copies the peer keys of ref into the Client section of every peer
// of c whose Client.PublicKey equals ref.PublicKey. The block's name comment
// is adopted only by peers that have no name yet.
func Merge(ref CrossRef, c *model.Coordinator) MergeResult {
	if ref.PublicKey == "" {
		var present []string
		for _, k := range schema.PeerKeys {
			if v, _ := ref.Field(k); *v != "" {
				present = append(present, fmt.Sprintf("%s = %s", k, *v))
			}
		}
		msg := "[Peer] section without PublicKey cannot be assigned to a peer: empty section"
		if len(present) > 0 {
			msg = "[Peer] section without PublicKey cannot be assigned to a peer, check " + strings.Join(present, ", ")
		}
		return MergeResult{
			Outcome: Unresolvable,
			Diagnostics: diag.List{{
				Severity: diag.Warning,
				File:     c.Filename,
				Line:     ref.Line,
				Key:      "PublicKey",
				Message:  msg,
			}},
		}
	}

	indices := c.FindByPublicKey(ref.PublicKey)
	if len(indices) == 0 {
		return MergeResult{
			Outcome: Unmatched,
			Diagnostics: diag.List{{
				Severity: diag.Warning,
				File:     c.Filename,
				Line:     ref.Line,
				Key:      "PublicKey",
				Message:  fmt.Sprintf("no peer configuration has public key %s, section dropped", ref.PublicKey),
			}},
		}
	}

	for _, i := range indices {
		p := c.Peers[i]
		p.Client = ref.PeerSection
		if p.Name == "" {
			p.Name = ref.Name
		}
	}
	res := MergeResult{Outcome: Matched, Indices: indices}
	if len(indices) > 1 {
		res.Diagnostics.Add(diag.Diagnostic{
			Severity: diag.Warning,
			File:     c.Filename,
			Line:     ref.Line,
			Key:      "PublicKey",
			Message:  fmt.Sprintf("public key %s is shared by %d peers, all were updated", ref.PublicKey, len(indices)),
		})
	}
	return res
}
