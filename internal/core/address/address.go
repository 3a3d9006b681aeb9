// Package address converts between filesystem-style resource paths and
// content-token addresses.
//
// With an authority (host), "/blog/post" maps to "$host/blog/post" and "/"
// maps to "$host". Without one, "/SYMBOL" maps to "$SYMBOL".
package address

import (
	"fmt"
	"strings"

	"github.com/vietddude/path402/internal/core/domain"
)

// Prefix starts every resource address.
const Prefix = "$"

// Codec converts paths to addresses for one authority.
type Codec struct {
	authority string
}

// NewCodec creates a codec. An empty authority yields bare symbol addresses.
func NewCodec(authority string) Codec {
	return Codec{authority: strings.ToLower(strings.Trim(strings.TrimSpace(authority), "/"))}
}

// Authority returns the codec's authority.
func (c Codec) Authority() string {
	return c.authority
}

// Normalize returns the canonical form of a path: a single leading slash, no
// repeated or trailing slashes. Dot segments and whitespace are rejected.
func Normalize(path string) (string, error) {
	if strings.ContainsAny(path, " \t\r\n?#") {
		return "", fmt.Errorf("path %q: %w", path, domain.ErrInvalidAddress)
	}

	segments := strings.Split(path, "/")
	kept := segments[:0]
	for _, seg := range segments {
		switch seg {
		case "":
			continue
		case ".", "..":
			return "", fmt.Errorf("path %q has dot segment: %w", path, domain.ErrInvalidAddress)
		}
		kept = append(kept, seg)
	}
	return "/" + strings.Join(kept, "/"), nil
}

// AddressForPath derives the resource address for path.
func (c Codec) AddressForPath(path string) (string, error) {
	norm, err := Normalize(path)
	if err != nil {
		return "", err
	}

	if c.authority == "" {
		if norm == "/" {
			return "", fmt.Errorf("root path needs an authority: %w", domain.ErrInvalidAddress)
		}
		return Prefix + norm[1:], nil
	}
	if norm == "/" {
		return Prefix + c.authority, nil
	}
	return Prefix + c.authority + norm, nil
}

// PathForAddress is the inverse of AddressForPath.
func (c Codec) PathForAddress(addr string) (string, error) {
	if err := Validate(addr); err != nil {
		return "", err
	}
	body := strings.TrimPrefix(addr, Prefix)

	if c.authority == "" {
		return "/" + body, nil
	}
	if body == c.authority {
		return "/", nil
	}
	rest, ok := strings.CutPrefix(body, c.authority+"/")
	if !ok {
		return "", fmt.Errorf("address %q outside authority %q: %w", addr, c.authority, domain.ErrInvalidAddress)
	}
	return "/" + rest, nil
}

// Resolve accepts either an address or a path and returns the address.
func (c Codec) Resolve(resource string) (string, error) {
	if strings.HasPrefix(resource, Prefix) {
		if err := Validate(resource); err != nil {
			return "", err
		}
		return resource, nil
	}
	return c.AddressForPath(resource)
}

// Validate checks that addr is well formed.
func Validate(addr string) error {
	body, ok := strings.CutPrefix(addr, Prefix)
	if !ok || body == "" {
		return fmt.Errorf("address %q: %w", addr, domain.ErrInvalidAddress)
	}
	norm, err := Normalize(body)
	if err != nil {
		return err
	}
	if norm[1:] != body {
		return fmt.Errorf("address %q is not canonical: %w", addr, domain.ErrInvalidAddress)
	}
	return nil
}
