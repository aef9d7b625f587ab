// pkg/identity/identity.go - package identity, version formatting and full name computation.

package identity

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// publisherIDAlphabet is the Crockford base32 alphabet used by package family names.
const publisherIDAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Version is a package version packed as four 16-bit fields, most significant first.
type Version uint64

// NewVersion packs four version fields.
func NewVersion(major, minor, build, revision uint16) Version {
	return Version(uint64(major)<<48 | uint64(minor)<<32 | uint64(build)<<16 | uint64(revision))
}

// Fields returns the four 16-bit fields, most significant first.
func (v Version) Fields() [4]uint16 {
	return [4]uint16{
		uint16(v >> 48),
		uint16(v >> 32),
		uint16(v >> 16),
		uint16(v),
	}
}

// String renders the version as "A.B.C.D".
func (v Version) String() string {
	f := v.Fields()
	return fmt.Sprintf("%d.%d.%d.%d", f[0], f[1], f[2], f[3])
}

// ParseVersion parses "A.B.C.D". Missing trailing fields are zero.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty version")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return 0, fmt.Errorf("version %q has more than four fields", s)
	}
	var v Version
	for i := 0; i < 4; i++ {
		var field uint64
		if i < len(parts) {
			n, err := strconv.ParseUint(parts[i], 10, 16)
			if err != nil {
				return 0, fmt.Errorf("invalid version field %q in %q: %w", parts[i], s, err)
			}
			field = n
		}
		v |= Version(field << (48 - 16*uint(i)))
	}
	return v, nil
}

// Identity uniquely identifies one package build.
type Identity struct {
	Name         string
	Version      Version
	Architecture string
	ResourceID   string
	Publisher    string
}

// Validate reports whether the identity has the fields needed to build a full name.
func (id Identity) Validate() error {
	if id.Name == "" {
		return errors.New("package identity has no name")
	}
	if id.Publisher == "" {
		return errors.New("package identity has no publisher")
	}
	if strings.ContainsAny(id.Name, `_\/:*?"<>|`) {
		return fmt.Errorf("package name %q contains reserved characters", id.Name)
	}
	return nil
}

// Arch returns the lower-cased architecture, "neutral" when unset.
func (id Identity) Arch() string {
	if id.Architecture == "" {
		return "neutral"
	}
	return strings.ToLower(id.Architecture)
}

// PublisherID returns the 13 character publisher hash used in family and full names.
func (id Identity) PublisherID() string {
	return PublisherID(id.Publisher)
}

// FullName returns Name_Version_Architecture_ResourceId_PublisherId.
func (id Identity) FullName() string {
	return strings.Join([]string{
		id.Name,
		id.Version.String(),
		id.Arch(),
		id.ResourceID,
		id.PublisherID(),
	}, "_")
}

// FamilyName returns Name_PublisherId, stable across versions.
func (id Identity) FamilyName() string {
	return id.Name + "_" + id.PublisherID()
}

// SameFamily reports whether both identities belong to the same package family.
func (id Identity) SameFamily(other Identity) bool {
	return id.Name == other.Name && id.Publisher == other.Publisher
}

func (id Identity) String() string {
	return id.FullName()
}

// PublisherID hashes the UTF-16LE publisher with SHA-256, takes the first
// 64 bits, pads them to 65 and encodes 5 bits per character.
func PublisherID(publisher string) string {
	encoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(publisher))
	if err != nil {
		// Invalid UTF-8 is replaced by the encoder, so this is unreachable in practice.
		encoded = []byte(publisher)
	}
	sum := sha256.Sum256(encoded)
	bits := binary.BigEndian.Uint64(sum[:8])

	out := make([]byte, 13)
	for i := 0; i < 12; i++ {
		out[i] = publisherIDAlphabet[(bits>>(59-5*uint(i)))&0x1f]
	}
	out[12] = publisherIDAlphabet[(bits&0x0f)<<1]
	return string(out)
}

// CommonName returns the CN component of a distinguished name, or the whole
// string when it has no CN.
func CommonName(dn string) string {
	for _, part := range strings.Split(dn, ",") {
		part = strings.TrimSpace(part)
		if len(part) > 3 && strings.EqualFold(part[:3], "CN=") {
			return strings.Trim(part[3:], `"`)
		}
	}
	return dn
}
