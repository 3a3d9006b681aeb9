package address

import (
	"errors"
	"testing"

	"github.com/vietddude/path402/internal/core/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"blog/post", "/blog/post"},
		{"/blog//post/", "/blog/post"},
		{"///", "/"},
		{"", "/"},
		{"/SYMBOL", "/SYMBOL"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if err != nil {
			t.Fatalf("Normalize(%q) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"/a/../b", "/./a", "/a b", "/a?x=1"} {
		if _, err := Normalize(bad); !errors.Is(err, domain.ErrInvalidAddress) {
			t.Errorf("Normalize(%q) expected ErrInvalidAddress, got %v", bad, err)
		}
	}
}

func TestCodec_PathRoundTrip(t *testing.T) {
	codecs := []Codec{NewCodec(""), NewCodec("example.com")}
	paths := []string{"/blog/post", "blog/post/", "/a//b", "/SYMBOL"}

	for _, c := range codecs {
		for _, p := range paths {
			addr, err := c.AddressForPath(p)
			if err != nil {
				t.Fatalf("[%s] AddressForPath(%q) failed: %v", c.Authority(), p, err)
			}
			back, err := c.PathForAddress(addr)
			if err != nil {
				t.Fatalf("[%s] PathForAddress(%q) failed: %v", c.Authority(), addr, err)
			}
			norm, _ := Normalize(p)
			if back != norm {
				t.Errorf("[%s] round trip %q -> %q -> %q, want %q", c.Authority(), p, addr, back, norm)
			}
		}
	}
}

func TestCodec_AddressRoundTrip(t *testing.T) {
	tests := []struct {
		authority string
		addr      string
	}{
		{"", "$SYMBOL"},
		{"", "$example.com/blog/post"},
		{"example.com", "$example.com"},
		{"example.com", "$example.com/blog/post"},
	}
	for _, tt := range tests {
		c := NewCodec(tt.authority)
		p, err := c.PathForAddress(tt.addr)
		if err != nil {
			t.Fatalf("PathForAddress(%q) failed: %v", tt.addr, err)
		}
		got, err := c.AddressForPath(p)
		if err != nil {
			t.Fatalf("AddressForPath(%q) failed: %v", p, err)
		}
		if got != tt.addr {
			t.Errorf("round trip %q -> %q -> %q", tt.addr, p, got)
		}
	}
}

func TestCodec_Authority(t *testing.T) {
	c := NewCodec("Example.com/")
	addr, err := c.AddressForPath("/")
	if err != nil {
		t.Fatalf("AddressForPath failed: %v", err)
	}
	if addr != "$example.com" {
		t.Errorf("expected $example.com, got %s", addr)
	}

	if _, err := c.PathForAddress("$other.com/x"); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress for foreign authority, got %v", err)
	}
	if _, err := NewCodec("").AddressForPath("/"); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress for bare root, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	for _, ok := range []string{"$A", "$host/a/b"} {
		if err := Validate(ok); err != nil {
			t.Errorf("Validate(%q) unexpected error: %v", ok, err)
		}
	}
	for _, bad := range []string{"", "$", "A", "$a//b", "$a/", "$/a", "$a/../b"} {
		if err := Validate(bad); err == nil {
			t.Errorf("Validate(%q) expected error", bad)
		}
	}
}

func TestCodec_Resolve(t *testing.T) {
	c := NewCodec("example.com")
	got, err := c.Resolve("/blog/x")
	if err != nil || got != "$example.com/blog/x" {
		t.Errorf("Resolve(path) = %q, %v", got, err)
	}
	got, err = c.Resolve("$example.com/blog/x")
	if err != nil || got != "$example.com/blog/x" {
		t.Errorf("Resolve(address) = %q, %v", got, err)
	}
}
