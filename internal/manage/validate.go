package manage

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/miekg/dns"
	"github.com/wgconf/wgconf/internal/keys"
	"github.com/wgconf/wgconf/internal/schema"
)

// ErrInvalidValue is returned when a value does not fit its key.
var ErrInvalidValue = errors.New("invalid value")

// ValidateValue checks value against the syntax of the configuration key.
// An empty value always passes; it clears the key.
func ValidateValue(key, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	p, ok := schema.Lookup(key)
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrUnknownField)
	}

	var err error
	switch p.Name {
	case "Address", "AllowedIPs":
		err = eachItem(value, validatePrefix)
	case "DNS":
		err = eachItem(value, validateDNSServer)
	case "ListenPort":
		err = validatePort(value)
	case "MTU":
		err = validateRange(value, 68, 65535)
	case "Table":
		if value != "off" && value != "auto" {
			err = validateRange(value, 0, 1<<32-1)
		}
	case "PersistentKeepalive":
		if value != "off" {
			err = validateRange(value, 0, 65535)
		}
	case "PrivateKey", "PublicKey":
		err = keys.Validate(value)
	case "Endpoint":
		err = ValidateEndpoint(value)
	}
	if err != nil {
		return fmt.Errorf("%s = %q: %w: %v", p.Name, value, ErrInvalidValue, err)
	}
	return nil
}

// ValidateEndpoint checks a host:port endpoint. The host is an IP address
// or a domain name.
func ValidateEndpoint(endpoint string) error {
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil {
		return fmt.Errorf("endpoint %q: %w", endpoint, err)
	}
	if err := validatePort(port); err != nil {
		return fmt.Errorf("endpoint %q: %w", endpoint, err)
	}
	if _, err := netip.ParseAddr(host); err == nil {
		return nil
	}
	if _, ok := dns.IsDomainName(host); !ok || host == "" {
		return fmt.Errorf("endpoint %q: %q is neither an IP address nor a domain name", endpoint, host)
	}
	return nil
}

func eachItem(value string, check func(string) error) error {
	for _, item := range strings.Split(value, ",") {
		if err := check(strings.TrimSpace(item)); err != nil {
			return err
		}
	}
	return nil
}

func validatePrefix(s string) error {
	if _, err := netip.ParsePrefix(s); err != nil {
		return fmt.Errorf("expected address/prefix: %w", err)
	}
	return nil
}

func validateDNSServer(s string) error {
	if _, err := netip.ParseAddr(s); err == nil {
		return nil
	}
	if _, ok := dns.IsDomainName(s); ok && s != "" {
		return nil
	}
	return fmt.Errorf("%q is neither an IP address nor a search domain", s)
}

func validatePort(s string) error {
	return validateRange(s, 1, 65535)
}

func validateRange(s string, lo, hi int64) error {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return errors.New("expected a number")
	}
	if n < lo || n > hi {
		return fmt.Errorf("must be between %d and %d", lo, hi)
	}
	return nil
}
