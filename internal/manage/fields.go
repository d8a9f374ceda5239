package manage

import (
	"fmt"
	"strings"

	"github.com/wgconf/wgconf/internal/model"
	"github.com/wgconf/wgconf/internal/schema"
)

// Field names beyond the configuration keys.
const (
	FieldName     = "name"
	FieldFilename = "filename"
	ClientPrefix  = "client_"
)

// field resolves key for target to a pointer into c.
func field(c *model.Coordinator, t model.Target, key string) (*string, string, error) {
	k := strings.ToLower(strings.TrimSpace(key))

	if t.Coordinator {
		switch {
		case k == FieldName:
			return &c.Name, FieldName, nil
		case k == FieldFilename:
			return nil, "", fmt.Errorf("%s of the coordinator: %w", key, ErrReadOnlyField)
		case strings.HasPrefix(k, ClientPrefix) || schema.IsPeerKey(k):
			return nil, "", fmt.Errorf("%s: the coordinator has no [Peer] keys of its own, set them on a peer: %w", key, ErrReadOnlyField)
		}
		v, ok := c.Interface.Field(k)
		if !ok {
			return nil, "", fmt.Errorf("%s: %w", key, ErrUnknownField)
		}
		p, _ := schema.Lookup(k)
		return v, p.Name, nil
	}

	if t.Index < 0 || t.Index >= len(c.Peers) {
		return nil, "", fmt.Errorf("peer index %d: %w", t.Index, model.ErrIDOutOfRange)
	}
	p := c.Peers[t.Index]

	switch {
	case k == FieldName:
		return &p.Name, FieldName, nil
	case k == FieldFilename:
		return &p.Filename, FieldFilename, nil
	case strings.HasPrefix(k, ClientPrefix):
		sk := strings.TrimPrefix(k, ClientPrefix)
		v, ok := p.Client.Field(sk)
		if !ok {
			return nil, "", fmt.Errorf("%s: %w", key, ErrUnknownField)
		}
		param, _ := schema.Lookup(sk)
		return v, ClientPrefix + param.Name, nil
	}

	param, ok := schema.Lookup(k)
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", key, ErrUnknownField)
	}
	if param.Section == schema.SectionPeer {
		v, _ := p.Remote.Field(k)
		return v, param.Name, nil
	}
	v, _ := p.Interface.Field(k)
	return v, param.Name, nil
}

// GetField returns the value of key on the target.
func (m *Manager) GetField(c *model.Coordinator, t model.Target, key string) (string, error) {
	v, _, err := field(c, t, key)
	if err != nil {
		return "", err
	}
	return *v, nil
}

// SetField validates value and stores it under key on the target. Setting a
// private key also updates the public key other records see.
func (m *Manager) SetField(c *model.Coordinator, t model.Target, key, value string) error {
	value = strings.TrimSpace(value)
	v, name, err := field(c, t, key)
	if err != nil {
		return err
	}

	switch name {
	case FieldName:
	case FieldFilename:
		if value != "" && !strings.HasSuffix(value, ".conf") {
			return fmt.Errorf("filename %q must end in .conf: %w", value, ErrInvalidValue)
		}
	default:
		if err := ValidateValue(strings.TrimPrefix(name, ClientPrefix), value); err != nil {
			return err
		}
	}

	switch {
	case name == "PrivateKey" && t.Coordinator:
		if value != "" {
			pub, err := m.keys.PublicKey(value)
			if err != nil {
				return err
			}
			for _, p := range c.Peers {
				p.Remote.PublicKey = pub
			}
		}
	case name == "PrivateKey":
		pub := ""
		if value != "" {
			if pub, err = m.keys.PublicKey(value); err != nil {
				return err
			}
			if err := checkUniqueKey(c, t.Index, pub); err != nil {
				return err
			}
		}
		c.Peers[t.Index].Client.PublicKey = pub
	case name == ClientPrefix+"PublicKey" && value != "":
		if err := checkUniqueKey(c, t.Index, value); err != nil {
			return err
		}
	}

	*v = value
	m.logger.Debug().Str("target", t.String()).Str("key", name).Msg("field set")
	return nil
}

func checkUniqueKey(c *model.Coordinator, index int, pub string) error {
	for _, i := range c.FindByPublicKey(pub) {
		if i != index {
			return fmt.Errorf("%s is the key of peer %d: %w", pub, model.DisplayID(i), ErrDuplicatePublicKey)
		}
	}
	return nil
}

// Fields lists every non-empty field of the target as name/value pairs in
// file order, client fields last.
func Fields(c *model.Coordinator, t model.Target) ([][2]string, error) {
	var names []string
	names = append(names, FieldName)
	if !t.Coordinator {
		names = append(names, FieldFilename)
	}
	names = append(names, schema.InterfaceKeys...)
	if !t.Coordinator {
		names = append(names, schema.PeerKeys...)
		for _, k := range schema.PeerKeys {
			names = append(names, ClientPrefix+k)
		}
	}

	var out [][2]string
	for _, n := range names {
		v, display, err := field(c, t, n)
		if err != nil {
			return nil, err
		}
		if *v != "" {
			out = append(out, [2]string{display, *v})
		}
	}
	return out, nil
}

func firstItem(s string) string {
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
