package validation

import "testing"

func TestNormalizeLocalPart(t *testing.T) {
	tests := []struct {
		name string
		hint string
		want string
	}{
		{name: "mixed case", hint: "Alice.Smith", want: "alicesmith"},
		{name: "digits kept", hint: "bob_42", want: "bob42"},
		{name: "only symbols", hint: "!!!", want: "user"},
		{name: "empty", hint: "", want: "user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeLocalPart(tt.hint)
			if got != tt.want {
				t.Fatalf("NormalizeLocalPart(%q) = %q, want %q", tt.hint, got, tt.want)
			}
		})
	}
}

func TestHandleCandidate(t *testing.T) {
	if got := HandleCandidate("alice", "greenpay", 0); got != "alice@greenpay" {
		t.Fatalf("candidate 0 = %q", got)
	}
	if got := HandleCandidate("alice", "greenpay", 2); got != "alice2@greenpay" {
		t.Fatalf("candidate 2 = %q", got)
	}
}

func TestIsValidHandle(t *testing.T) {
	tests := []struct {
		handle string
		valid  bool
	}{
		{handle: "alice@greenpay", valid: true},
		{handle: "alice", valid: false},
		{handle: "@greenpay", valid: false},
		{handle: "a@b@c", valid: false},
		{handle: "al ice@greenpay", valid: false},
	}

	for _, tt := range tests {
		if got := IsValidHandle(tt.handle); got != tt.valid {
			t.Fatalf("IsValidHandle(%q) = %v, want %v", tt.handle, got, tt.valid)
		}
	}
}

func TestIsValidChainAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		valid   bool
	}{
		{name: "valid lower", address: "0x52908400098527886e0f7030069857d2e4169ee7", valid: true},
		{name: "valid mixed", address: "0x8617E340B3D01FA5F11F306F4090FD50E238070D", valid: true},
		{name: "no prefix", address: "52908400098527886e0f7030069857d2e4169ee7", valid: false},
		{name: "short", address: "0x1234", valid: false},
		{name: "non hex", address: "0xZZ908400098527886e0f7030069857d2e4169ee7", valid: false},
		{name: "empty", address: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidChainAddress(tt.address); got != tt.valid {
				t.Fatalf("IsValidChainAddress(%q) = %v, want %v", tt.address, got, tt.valid)
			}
		})
	}
}
