package netutil

import "testing"

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"example.com", "example.com"},
		{"  Panel.Example.COM  ", "panel.example.com"},
		{"example.com:54321", "example.com"},
		{"https://panel.example.com:54321/xui/", "panel.example.com"},
		{"//example.com/path", "example.com"},
		{"bücher.example", "xn--bcher-kva.example"},
		{"example.com.", "example.com"},

		{"192.168.1.1", "192.168.1.1"},
		{"192.168.1.1:8080", "192.168.1.1"},
		{"[2001:DB8::1]:443", "2001:db8::1"},
		{"[::1]", "::1"},
		{"::ffff:10.0.0.1", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeHost(tt.input)
			if err != nil {
				t.Fatalf("NormalizeHost(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeHost(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeHost_Rejects(t *testing.T) {
	for _, input := range []string{"", "   ", "user@host", "a b.example", "[]:80"} {
		t.Run(input, func(t *testing.T) {
			if got, err := NormalizeHost(input); err == nil {
				t.Fatalf("NormalizeHost(%q) = %q, want error", input, got)
			}
		})
	}
}
