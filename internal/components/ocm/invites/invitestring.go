package invites

import (
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidInviteString is returned by ParseInviteString for malformed input.
var ErrInvalidInviteString = errors.New("invalid invite string")

// BuildInviteString encodes token and the issuing provider's domain as
// base64("<token>@<domain>"), the form users paste into the receiving
// server.
func BuildInviteString(token, providerDomain string) string {
	return base64.StdEncoding.EncodeToString([]byte(token + "@" + providerDomain))
}

// ParseInviteString reverses BuildInviteString. The domain must not carry a
// scheme.
func ParseInviteString(s string) (token, providerDomain string, err error) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", "", ErrInvalidInviteString
	}
	inner := string(decoded)

	at := strings.LastIndex(inner, "@")
	if at <= 0 || at == len(inner)-1 {
		return "", "", ErrInvalidInviteString
	}
	token, providerDomain = inner[:at], inner[at+1:]
	if strings.Contains(providerDomain, "://") {
		return "", "", ErrInvalidInviteString
	}
	return token, providerDomain, nil
}
