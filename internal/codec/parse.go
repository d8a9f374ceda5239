// Package codec converts between the record model and WireGuard configuration files.
//
// The format looks like INI but is not: a coordinator file repeats [Peer]
// for every client, the first comment carries the record's name, and keys
// are case-insensitive. Parsing is best effort; problems are returned as
// diagnostics and never abort the parse.
package codec

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/wgconf/wgconf/internal/diag"
	"github.com/wgconf/wgconf/internal/model"
	"github.com/wgconf/wgconf/internal/schema"
)

var (
	reSection  = regexp.MustCompile(`^\s*\[(.*)\]\s*$`)
	reComment  = regexp.MustCompile(`^\s*#`)
	reKeyValue = regexp.MustCompile(`^\s*([^=\s]*)\s*=\s*(.*?)\s*$`)
	reName     = regexp.MustCompile(`^\s*#+\s*(?:(?i:name)\b\s*)?=?\s*(.*?)\s*$`)
)

// CrossRef is the content of one [Peer] block of a coordinator file. It
// lives only until it is merged into the matching peer.
type CrossRef struct {
	Name string
	model.PeerSection
	Line int // line of the [Peer] header
}

// ParsePeer reads a peer file into p. Keys of the [Peer] block land in
// p.Remote. The returned error is set only when r cannot be read.
func ParsePeer(r io.Reader, p *model.Peer) (diag.List, error) {
	ps := &parser{file: p.Filename, iface: &p.Interface, name: &p.Name, remote: &p.Remote}
	return ps.run(r)
}

// ParseCoordinator reads a coordinator file into c. Every [Peer] block is
// merged into the peer already in c.Peers whose Client.PublicKey matches;
// blocks without a match are reported and dropped.
func ParseCoordinator(r io.Reader, c *model.Coordinator) (diag.List, error) {
	ps := &parser{file: c.Filename, iface: &c.Interface, name: &c.Name, coord: c}
	return ps.run(r)
}

// ParseCoordinatorString is ParseCoordinator over a string.
func ParseCoordinatorString(s string, c *model.Coordinator) diag.List {
	d, _ := ParseCoordinator(strings.NewReader(s), c)
	return d
}

// ParsePeerString is ParsePeer over a string.
func ParsePeerString(s string, p *model.Peer) diag.List {
	d, _ := ParsePeer(strings.NewReader(s), p)
	return d
}

type parser struct {
	file   string
	iface  *model.Interface
	name   *string
	remote *model.PeerSection // peer files only
	coord  *model.Coordinator // coordinator files only

	named   bool
	pending *CrossRef // open [Peer] block of a coordinator file
	refName bool      // pending already has its name comment
	line    int
	diags   diag.List
}

func (ps *parser) report(sev diag.Severity, key, format string, args ...any) {
	ps.diags.Add(diag.Diagnostic{
		Severity: sev,
		File:     ps.file,
		Line:     ps.line,
		Key:      key,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (ps *parser) run(r io.Reader) (diag.List, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		ps.line++
		ps.parseLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return ps.diags, fmt.Errorf("read %s: %w", ps.file, err)
	}

	ps.line = 0
	var missing []string
	for _, k := range schema.MinimalKeys {
		if v, _ := ps.iface.Field(k); *v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		ps.report(diag.Warning, "", "incomplete configuration, missing %s", strings.Join(missing, ", "))
	}
	ps.flush()
	return ps.diags, nil
}

func (ps *parser) parseLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}

	if m := reSection.FindStringSubmatch(line); m != nil {
		ps.section(strings.TrimSpace(m[1]))
		return
	}

	if reComment.MatchString(line) {
		ps.comment(line)
		return
	}

	if m := reKeyValue.FindStringSubmatch(line); m != nil {
		ps.keyValue(m[1], m[2])
		return
	}

	ps.report(diag.Error, "", "invalid line %q", strings.TrimSpace(line))
}

// section opens a new cross-reference on [Peer] in a coordinator file.
// Other headers leave the parser state alone.
func (ps *parser) section(name string) {
	if ps.coord == nil || !strings.EqualFold(name, "Peer") {
		return
	}
	ps.flush()
	ps.pending = &CrossRef{Line: ps.line}
	ps.refName = false
}

func (ps *parser) comment(line string) {
	text := reName.FindStringSubmatch(line)[1]
	if ps.pending != nil {
		if !ps.refName {
			ps.pending.Name = text
			ps.refName = true
		}
		return
	}
	if ps.named {
		ps.report(diag.Info, "", "ignoring comment, the first comment already named this configuration")
		return
	}
	ps.named = true
	*ps.name = text
}

func (ps *parser) keyValue(key, value string) {
	p, ok := schema.Lookup(key)
	if !ok {
		ps.report(diag.Warning, key, "unknown parameter")
		return
	}

	if p.Section == schema.SectionPeer {
		switch {
		case ps.pending != nil:
			v, _ := ps.pending.Field(p.Name)
			*v = value
		case ps.remote != nil:
			v, _ := ps.remote.Field(p.Name)
			*v = value
		default:
			ps.report(diag.Warning, p.Name, "peer parameter outside a [Peer] section ignored")
		}
		return
	}

	if ps.pending != nil {
		ps.report(diag.Warning, p.Name, "interface parameter inside a [Peer] section applied to the coordinator")
	}
	v, _ := ps.iface.Field(p.Name)
	*v = value
}

// flush merges the open [Peer] block of a coordinator file, if any.
func (ps *parser) flush() {
	if ps.pending == nil {
		return
	}
	res := Merge(*ps.pending, ps.coord)
	ps.diags = append(ps.diags, res.Diagnostics...)
	ps.pending = nil
	ps.refName = false
}
