package logic

import "testing"

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		hostname string
		want     string
	}{
		{"example.com", "example.com"},
		{"www.example.com", "example.com"},
		{"app.docs.example.com", "example.com"},
		{"a.b.co.uk", "b.co.uk"},
		{"shop.example.co.uk", "example.co.uk"},
		{"co.uk", "co.uk"},
		{"user.github.io", "user.github.io"},
		{"WWW.Example.COM", "example.com"},
		{"localhost", "localhost"},
		{"www.example.com.", "example.com"},
		{"shop.example.co.uk.", "example.co.uk"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := RegistrableDomain(tt.hostname); got != tt.want {
			t.Errorf("RegistrableDomain(%q) = %q, want %q", tt.hostname, got, tt.want)
		}
	}
}

func TestIsSameDomain(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"example.com", "example.com", true},
		{"app.example.com", "docs.example.com", true},
		{"www.example.com", "example.com", true},
		{"example.com", "evil-example.com", false},
		{"a.example.co.uk", "b.example.co.uk", true},
		{"example.co.uk", "other.co.uk", false},
		{"localhost", "localhost", true},
		{"localhost", "example.com", false},
		{"www.example.com.", "example.com", true},
	}
	for _, tt := range tests {
		if got := IsSameDomain(tt.a, tt.b); got != tt.want {
			t.Errorf("IsSameDomain(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if got := IsSameDomain(tt.b, tt.a); got != tt.want {
			t.Errorf("IsSameDomain(%q, %q) is not symmetric", tt.b, tt.a)
		}
	}
}
