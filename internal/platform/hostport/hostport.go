// Package hostport normalizes host[:port] authorities so peers can be
// compared: lowercase, IDN labels in ASCII form, default ports stripped.
package hostport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// Normalize returns a lowercase host[:port] with the scheme's default port
// (:443 for https, :80 for http) stripped. Internationalized host names are
// converted to their punycode form.
//
// Values containing "://" or "/" are rejected. IPv6 literals keep their
// brackets.
func Normalize(authority string, scheme string) (string, error) {
	authority = strings.TrimSpace(authority)
	if authority == "" {
		return "", errors.New("hostport: empty authority")
	}

	if strings.Contains(authority, "://") {
		return "", fmt.Errorf("hostport: authority %q must not contain a scheme", authority)
	}

	if strings.Contains(authority, "/") {
		return "", fmt.Errorf("hostport: authority %q must not contain a path", authority)
	}

	dummy := "dummy://" + authority
	u, err := url.Parse(dummy)
	if err != nil {
		return "", fmt.Errorf("hostport: invalid authority %q: %w", authority, err)
	}

	hostname := strings.ToLower(u.Hostname())
	if hostname == "" {
		return "", fmt.Errorf("hostport: authority %q has no host", authority)
	}
	if !isASCII(hostname) {
		ascii, err := idna.Lookup.ToASCII(hostname)
		if err != nil {
			return "", fmt.Errorf("hostport: invalid host name %q: %w", hostname, err)
		}
		hostname = ascii
	}

	port := u.Port()
	scheme = strings.ToLower(scheme)

	if isDefaultPort(port, scheme) {
		port = ""
	}

	if port == "" {
		if strings.Contains(hostname, ":") {
			return "[" + hostname + "]", nil
		}
		return hostname, nil
	}

	return net.JoinHostPort(hostname, port), nil
}

func isDefaultPort(port, scheme string) bool {
	switch scheme {
	case "https":
		return port == "443"
	case "http":
		return port == "80"
	default:
		return false
	}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Equal reports whether a and b name the same peer under scheme. Invalid
// authorities are never equal.
func Equal(a, b, scheme string) bool {
	na, err := Normalize(a, scheme)
	if err != nil {
		return false
	}
	nb, err := Normalize(b, scheme)
	return err == nil && na == nb
}
