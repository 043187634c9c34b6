package notifications

import "github.com/MahdiBaghbani/ocmbridge/internal/components/ocm/address"

// Keys of the "notification" object read by the bundled providers.
const (
	// PayloadSharedSecret carries the share's secret so the notified side
	// can tell the notifier actually holds the share.
	PayloadSharedSecret = "sharedSecret"
	// PayloadSender is the OCM address of the party sending the notification.
	PayloadSender = "sender"
)

// PayloadString returns payload[key] when it is a string.
func PayloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// SenderHost returns the normalized host of the payload's sender address, or
// "" when the payload names no usable sender.
func SenderHost(payload map[string]any) string {
	host, err := address.ProviderHost(PayloadString(payload, PayloadSender))
	if err != nil {
		return ""
	}
	return host
}
