// Copyright 2025 Jelly Terra <jellyterra@proton.me>
// This Source Code Form is subject to the terms of the Mozilla Public License, v. 2.0
// that can be found in the LICENSE file and https://mozilla.org/MPL/2.0/.

package core

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/net/idna"
)

const (
	MaxDomainLength = 255
	maxLabelLength  = 63
)

// DomainKey is the canonical identity of a monitored domain: lowercase,
// ASCII-compatible, no trailing root dot.
type DomainKey string

func (k DomainKey) String() string { return string(k) }

// Token returns the external identifier of the key.
func (k DomainKey) Token() string { return hex.EncodeToString([]byte(k)) }

// Display renders internationalised keys as "unicode (ascii)".
func (k DomainKey) Display() string {
	u, err := idna.Lookup.ToUnicode(string(k))
	if err != nil || u == string(k) {
		return string(k)
	}
	return u + " (" + string(k) + ")"
}

// Canonicalize maps any spelling of a domain onto its DomainKey.
func Canonicalize(domain string) (DomainKey, error) {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if domain == "" {
		return "", fmt.Errorf("%w: empty domain", ErrMalformedToken)
	}

	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	ascii = strings.ToLower(ascii)

	if err := validateSyntax(ascii); err != nil {
		return "", err
	}
	return DomainKey(ascii), nil
}

func validateSyntax(domain string) error {
	switch {
	case domain == "":
		return fmt.Errorf("%w: empty domain", ErrMalformedToken)
	case len(domain) > MaxDomainLength:
		return fmt.Errorf("%w: domain exceeds %d bytes", ErrMalformedToken, MaxDomainLength)
	}

	for _, label := range strings.Split(domain, ".") {
		if label == "" || len(label) > maxLabelLength {
			return fmt.Errorf("%w: bad label length in %q", ErrMalformedToken, domain)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("%w: label %q starts or ends with a hyphen", ErrMalformedToken, label)
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if !('a' <= c && c <= 'z' || '0' <= c && c <= '9' || c == '-') {
				return fmt.Errorf("%w: invalid character %q", ErrMalformedToken, c)
			}
		}
	}
	return nil
}

// Encode turns a domain into its hex token. Input that does not canonicalise is
// encoded verbatim, which Decode then rejects.
func Encode(domain string) string {
	key, err := Canonicalize(domain)
	if err != nil {
		return hex.EncodeToString([]byte(domain))
	}
	return key.Token()
}

// Decode is the inverse of Encode. Anything Encode cannot produce for a valid
// domain fails with ErrMalformedToken.
func Decode(token string) (DomainKey, error) {
	switch {
	case token == "":
		return "", fmt.Errorf("%w: empty token", ErrMalformedToken)
	case len(token)%2 != 0:
		return "", fmt.Errorf("%w: odd token length", ErrMalformedToken)
	case len(token) > 2*MaxDomainLength:
		return "", fmt.Errorf("%w: token too long", ErrMalformedToken)
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return "", fmt.Errorf("%w: not lowercase hexadecimal", ErrMalformedToken)
		}
	}

	b, err := hex.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	for _, c := range b {
		if c < 0x20 || c == 0x7f {
			return "", fmt.Errorf("%w: control byte in domain", ErrMalformedToken)
		}
	}

	key, err := Canonicalize(string(b))
	if err != nil {
		return "", err
	}
	if string(key) != string(b) {
		return "", fmt.Errorf("%w: domain is not canonical", ErrMalformedToken)
	}
	return key, nil
}

// DecodeLegacy accepts the base64 tokens of older feed URLs.
func DecodeLegacy(token string) (DomainKey, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		b, err := enc.DecodeString(token)
		if err != nil {
			continue
		}
		if key, err := Canonicalize(string(b)); err == nil {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w: not a legacy token", ErrMalformedToken)
}
