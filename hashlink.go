package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Hash link wire constants. Changing any of them invalidates every
// link already sent out.
const (
	NoExpiryMarker = "nostrtotime"
	TimeSeparator  = ".X|."
	PartSeparator  = "_|_"
	IDSeparator    = ".|."
)

// VerificationToken is the decoded content of a hash link
type VerificationToken struct {
	SubjectID    int64
	IntegrityTag string
	ExpiresAt    int64
	Nonce        string
	NoExpiry     bool
}

// Expired reports whether the token expiry is before at
func (v VerificationToken) Expired(at time.Time) bool {
	return v.ExpiresAt < at.Unix()
}

// HashLinkCodec encodes and decodes hash links. It holds no state
// besides its collaborators and is safe for concurrent use.
type HashLinkCodec struct {
	hasher  Hasher
	now     func() time.Time
	entropy func() string
}

// HashLinkOption customizes the codec
type HashLinkOption func(*HashLinkCodec)

// WithHashLinkClock injects a custom clock (useful for tests)
func WithHashLinkClock(clock func() time.Time) HashLinkOption {
	return func(c *HashLinkCodec) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithHashLinkEntropy overrides the random part of the nonce
func WithHashLinkEntropy(fn func() string) HashLinkOption {
	return func(c *HashLinkCodec) {
		if fn != nil {
			c.entropy = fn
		}
	}
}

// NewHashLinkCodec creates a codec using hasher for integrity tags
func NewHashLinkCodec(hasher Hasher, opts ...HashLinkOption) *HashLinkCodec {
	c := &HashLinkCodec{
		hasher:  hasher,
		now:     time.Now,
		entropy: defaultEntropy,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Encode builds a hash link for subjectID bound to slug. An empty
// validUntil yields a link that is only valid during the issuing second.
func (c *HashLinkCodec) Encode(subjectID int64, slug, validUntil string) (string, error) {
	now := c.now()

	marker := NoExpiryMarker
	if validUntil != "" {
		expiresAt, err := ResolveExpression(now, validUntil)
		if err != nil {
			return "", err
		}
		marker = strconv.FormatInt(expiresAt.Unix(), 10)
	}

	id := strconv.FormatInt(subjectID, 10)
	tag, err := c.hasher.Hash(IntegrityInput(subjectID, slug))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString(TimeSeparator)
	b.WriteString(c.nonce(now))
	b.WriteString(PartSeparator)
	b.WriteString(tag)
	b.WriteString(IDSeparator)
	b.WriteString(id)

	return base64.StdEncoding.EncodeToString([]byte(b.String())), nil
}

// IntegrityInput is the secret hashed into a link tag. The id and slug
// are digested first so the hasher always sees 64 bytes, below the bcrypt
// input limit whatever the slug length.
func IntegrityInput(subjectID int64, slug string) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(subjectID, 10) + slug))
	return hex.EncodeToString(sum[:])
}

// Decode parses a hash link and checks its expiry. The integrity tag is
// returned as is, verifying it against the subject is up to the caller.
func (c *HashLinkCodec) Decode(token string) (*VerificationToken, error) {
	raw, err := decodeBase64(token)
	if err != nil {
		return nil, ErrMalformedToken
	}

	head, tail, found := strings.Cut(raw, PartSeparator)
	if !found {
		return nil, ErrMalformedToken
	}

	marker, nonce, found := strings.Cut(head, TimeSeparator)
	if !found {
		return nil, ErrMalformedToken
	}

	// the tag may contain the separator, the id never does
	sep := strings.LastIndex(tail, IDSeparator)
	if sep < 0 {
		return nil, ErrMalformedToken
	}

	tag := tail[:sep]
	subjectID, err := strconv.ParseInt(tail[sep+len(IDSeparator):], 10, 64)
	if err != nil || tag == "" {
		return nil, ErrMalformedToken
	}

	vt := &VerificationToken{
		SubjectID:    subjectID,
		IntegrityTag: tag,
		Nonce:        nonce,
	}

	if marker == NoExpiryMarker {
		issuedAt, ok := nonceIssuedAt(nonce)
		if !ok {
			return nil, ErrMalformedToken
		}
		vt.NoExpiry = true
		vt.ExpiresAt = issuedAt
	} else {
		vt.ExpiresAt, err = strconv.ParseInt(marker, 10, 64)
		if err != nil {
			return nil, ErrMalformedToken
		}
	}

	if vt.Expired(c.now()) {
		return nil, ErrTokenExpired
	}

	return vt, nil
}

func (c *HashLinkCodec) nonce(now time.Time) string {
	return fmt.Sprintf("%08x%05x.%s", now.Unix(), now.Nanosecond()/1000, c.entropy())
}

func nonceIssuedAt(nonce string) (int64, bool) {
	if len(nonce) < 8 {
		return 0, false
	}
	sec, err := strconv.ParseInt(nonce[:8], 16, 64)
	if err != nil {
		return 0, false
	}
	return sec, true
}

func defaultEntropy() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func decodeBase64(token string) (string, error) {
	token = strings.TrimSpace(token)
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.URLEncoding,
		base64.RawStdEncoding,
		base64.RawURLEncoding,
	}

	var lastErr error
	for _, enc := range encodings {
		b, err := enc.DecodeString(token)
		if err == nil {
			return string(b), nil
		}
		lastErr = err
	}
	return "", lastErr
}
