// Package address parses OCM addresses of the form identifier@host[:port].
// The identifier ends at the last '@', so it may itself contain '@'.
package address

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MahdiBaghbani/ocmbridge/internal/platform/hostport"
)

// ErrInvalid is wrapped by every Parse failure.
var ErrInvalid = errors.New("invalid OCM address")

// Parse splits addr on its last '@' into identifier and provider.
// The provider must be a bare authority: no scheme and no path.
func Parse(addr string) (identifier, provider string, err error) {
	idx := strings.LastIndex(addr, "@")
	if idx < 0 {
		return "", "", fmt.Errorf("%w: no '@' in %q", ErrInvalid, addr)
	}
	identifier, provider = addr[:idx], addr[idx+1:]

	switch {
	case identifier == "":
		return "", "", fmt.Errorf("%w: empty identifier in %q", ErrInvalid, addr)
	case provider == "":
		return "", "", fmt.Errorf("%w: empty provider in %q", ErrInvalid, addr)
	case strings.Contains(provider, "/"):
		return "", "", fmt.Errorf("%w: provider of %q is not a bare host", ErrInvalid, addr)
	}
	return identifier, provider, nil
}

// ProviderHost returns the normalized https authority of addr's provider,
// the form peers are compared and contacted by.
func ProviderHost(addr string) (string, error) {
	_, provider, err := Parse(addr)
	if err != nil {
		return "", err
	}
	host, err := hostport.Normalize(provider, "https")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return host, nil
}
