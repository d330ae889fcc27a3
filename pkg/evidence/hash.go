package evidence

import (
	"crypto/md5"  //nolint:gosec
	"crypto/sha1" //nolint:gosec
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// HashAlgorithm names one of the four digests attached to every version.
type HashAlgorithm string

const (
	MD5    HashAlgorithm = "md5"
	SHA1   HashAlgorithm = "sha1"
	SHA256 HashAlgorithm = "sha256"
	SHA512 HashAlgorithm = "sha512"
)

// Algorithms lists the digests in wire order.
var Algorithms = []HashAlgorithm{MD5, SHA1, SHA256, SHA512}

// HexLen returns the length of the lowercase hex encoding of the digest.
func (a HashAlgorithm) HexLen() int {
	switch a {
	case MD5:
		return md5.Size * 2
	case SHA1:
		return sha1.Size * 2
	case SHA256:
		return sha256.Size * 2
	case SHA512:
		return sha512.Size * 2
	default:
		return 0
	}
}

// Field returns the JSON field name carrying the digest, e.g. "sha256Hash".
func (a HashAlgorithm) Field() string { return string(a) + "Hash" }

// ErrInvalidDigest is returned when a digest is absent or is not lowercase hex
// of the algorithm's length.
var ErrInvalidDigest = errors.New("invalid digest")

// HashFields holds the content digests of a submitted file as lowercase hex.
type HashFields struct {
	MD5    string `json:"md5Hash"`
	SHA1   string `json:"sha1Hash"`
	SHA256 string `json:"sha256Hash"`
	SHA512 string `json:"sha512Hash"`
}

// Get returns the digest for alg.
func (h HashFields) Get(alg HashAlgorithm) string {
	switch alg {
	case MD5:
		return h.MD5
	case SHA1:
		return h.SHA1
	case SHA256:
		return h.SHA256
	case SHA512:
		return h.SHA512
	default:
		return ""
	}
}

// Validate checks every digest and reports the first absent or malformed one.
func (h HashFields) Validate() error {
	for _, alg := range Algorithms {
		if err := ValidateDigest(alg, h.Get(alg)); err != nil {
			return err
		}
	}
	return nil
}

// Complete reports whether all four digests are present and well formed.
func (h HashFields) Complete() bool { return h.Validate() == nil }

// Equal compares all four digests exactly.
func (h HashFields) Equal(o HashFields) bool { return h == o }

// ValidateDigest checks a single digest against ^[0-9a-f]{L}$.
func ValidateDigest(alg HashAlgorithm, digest string) error {
	want := alg.HexLen()
	if want == 0 {
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidDigest, alg)
	}
	if digest == "" {
		return fmt.Errorf("%w: %s is missing", ErrInvalidDigest, alg.Field())
	}
	if len(digest) != want {
		return fmt.Errorf("%w: %s has %d hex digits, want %d", ErrInvalidDigest, alg.Field(), len(digest), want)
	}
	for i := 0; i < len(digest); i++ {
		c := digest[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%w: %s contains %q at offset %d", ErrInvalidDigest, alg.Field(), c, i)
		}
	}
	return nil
}

// ComputeHashes reads r once and returns all four digests.
func ComputeHashes(r io.Reader) (HashFields, error) {
	m := md5.New()
	s1 := sha1.New()
	s256 := sha256.New()
	s512 := sha512.New()

	if _, err := io.Copy(io.MultiWriter(m, s1, s256, s512), r); err != nil {
		return HashFields{}, fmt.Errorf("hash content: %w", err)
	}
	return HashFields{
		MD5:    hex.EncodeToString(m.Sum(nil)),
		SHA1:   hex.EncodeToString(s1.Sum(nil)),
		SHA256: hex.EncodeToString(s256.Sum(nil)),
		SHA512: hex.EncodeToString(s512.Sum(nil)),
	}, nil
}
