package hostport

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		authority string
		scheme    string
		want      string
		wantErr   bool
	}{
		{"https default port", "receiver.example.com:443", "https", "receiver.example.com", false},
		{"http default port", "receiver.example.com:80", "http", "receiver.example.com", false},
		{"custom port kept", "receiver.example.com:9200", "https", "receiver.example.com:9200", false},
		{"443 is not default for http", "receiver.example.com:443", "http", "receiver.example.com:443", false},
		{"lowercased", "Receiver.EXAMPLE.com", "https", "receiver.example.com", false},
		{"idn host", "Bücher.example", "https", "xn--bcher-kva.example", false},
		{"idn host with port", "bücher.example:8443", "https", "xn--bcher-kva.example:8443", false},
		{"ipv6", "[::1]", "https", "[::1]", false},
		{"ipv6 default port", "[::1]:443", "https", "[::1]", false},
		{"ipv6 custom port", "[::1]:9200", "https", "[::1]:9200", false},
		{"whitespace", "  receiver.example.com ", "https", "receiver.example.com", false},
		{"scheme", "https://receiver.example.com", "https", "", true},
		{"path", "receiver.example.com/ocm", "https", "", true},
		{"empty", " ", "https", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.authority, tt.scheme)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize(%q) error = %v, wantErr %v", tt.authority, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.authority, got, tt.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	if !Equal("receiver.example.com", "RECEIVER.example.com:443", "https") {
		t.Error("expected bare host and default port to be equal")
	}
	if Equal("receiver.example.com", "receiver.example.com:8443", "https") {
		t.Error("different ports must not be equal")
	}
	if Equal("", "", "https") {
		t.Error("invalid authorities must not be equal")
	}
}
