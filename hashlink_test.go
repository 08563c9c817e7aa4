package identity_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestCodec(clock *fakeClock, opts ...identity.HashLinkOption) *identity.HashLinkCodec {
	opts = append([]identity.HashLinkOption{identity.WithHashLinkClock(clock.Now)}, opts...)
	return identity.NewHashLinkCodec(identity.NewBcryptHasher(bcrypt.MinCost), opts...)
}

func TestHashLinkRoundTripWithTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)}
	codec := newTestCodec(clock)

	token, err := codec.Encode(42, "bob", "+1 hour")
	require.NoError(t, err)

	vt, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), vt.SubjectID)
	assert.False(t, vt.NoExpiry)
	assert.Equal(t, clock.now.Add(time.Hour).Unix(), vt.ExpiresAt)

	hasher := identity.NewBcryptHasher(bcrypt.MinCost)
	assert.True(t, hasher.Verify(identity.IntegrityInput(42, "bob"), vt.IntegrityTag))
	assert.False(t, hasher.Verify(identity.IntegrityInput(42, "eve"), vt.IntegrityTag))

	clock.Advance(59 * time.Minute)
	_, err = codec.Decode(token)
	assert.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = codec.Decode(token)
	assert.NoError(t, err, "expiry second is still valid")

	clock.Advance(time.Second)
	_, err = codec.Decode(token)
	assert.ErrorIs(t, err, identity.ErrTokenExpired)
	assert.Equal(t, identity.KindExpired, identity.KindOf(err))
}

func TestHashLinkSentinelExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, time.March, 15, 10, 0, 0, 250_000_000, time.UTC)}
	codec := newTestCodec(clock)

	token, err := codec.Encode(1, "alice", "")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), identity.NoExpiryMarker+identity.TimeSeparator))

	vt, err := codec.Decode(token)
	require.NoError(t, err)
	assert.True(t, vt.NoExpiry)
	assert.Equal(t, clock.now.Unix(), vt.ExpiresAt)

	clock.Advance(500 * time.Millisecond)
	_, err = codec.Decode(token)
	assert.NoError(t, err, "same second")

	clock.Advance(time.Second)
	_, err = codec.Decode(token)
	assert.ErrorIs(t, err, identity.ErrTokenExpired)
}

func TestHashLinkNonceUniqueness(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)}
	codec := newTestCodec(clock)

	seen := map[string]bool{}
	nonces := map[string]bool{}
	for i := 0; i < 5; i++ {
		token, err := codec.Encode(7, "carol", "+1 day")
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true

		vt, err := codec.Decode(token)
		require.NoError(t, err)
		assert.False(t, nonces[vt.Nonce])
		nonces[vt.Nonce] = true
	}
}

func TestHashLinkWireLayout(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 123456000).UTC()}
	codec := newTestCodec(clock, identity.WithHashLinkEntropy(func() string { return "deadbeef" }))

	token, err := codec.Encode(99, "dave", "@1700003600")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)

	prefix := "1700003600" + identity.TimeSeparator + "6553f1001e240.deadbeef" + identity.PartSeparator
	assert.True(t, strings.HasPrefix(string(raw), prefix), string(raw))
	assert.True(t, strings.HasSuffix(string(raw), identity.IDSeparator+"99"))
}

func TestHashLinkDecodeMalformed(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	codec := newTestCodec(clock)

	encode := func(s string) string {
		return base64.StdEncoding.EncodeToString([]byte(s))
	}

	future := "9999999999"

	tests := []struct {
		name  string
		token string
	}{
		{name: "not base64", token: "***"},
		{name: "empty", token: ""},
		{name: "missing part separator", token: encode(future + identity.TimeSeparator + "nonce" + "tag" + identity.IDSeparator + "1")},
		{name: "missing time separator", token: encode(future + "nonce" + identity.PartSeparator + "tag" + identity.IDSeparator + "1")},
		{name: "missing id separator", token: encode(future + identity.TimeSeparator + "nonce" + identity.PartSeparator + "tag1")},
		{name: "non numeric id", token: encode(future + identity.TimeSeparator + "nonce" + identity.PartSeparator + "tag" + identity.IDSeparator + "abc")},
		{name: "empty tag", token: encode(future + identity.TimeSeparator + "nonce" + identity.PartSeparator + identity.IDSeparator + "1")},
		{name: "bad expiry marker", token: encode("later" + identity.TimeSeparator + "nonce" + identity.PartSeparator + "tag" + identity.IDSeparator + "1")},
		{name: "sentinel with bad nonce", token: encode(identity.NoExpiryMarker + identity.TimeSeparator + "zz" + identity.PartSeparator + "tag" + identity.IDSeparator + "1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.token)
			assert.ErrorIs(t, err, identity.ErrMalformedToken)
			assert.Equal(t, identity.KindMalformedToken, identity.KindOf(err))
		})
	}
}

func TestHashLinkDecodeSplitsOnLastIDSeparator(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	codec := newTestCodec(clock)

	raw := "9999999999" + identity.TimeSeparator + "nonce" + identity.PartSeparator +
		"tag" + identity.IDSeparator + "more" + identity.IDSeparator + "12"

	vt, err := codec.Decode(base64.StdEncoding.EncodeToString([]byte(raw)))
	require.NoError(t, err)
	assert.Equal(t, int64(12), vt.SubjectID)
	assert.Equal(t, "tag"+identity.IDSeparator+"more", vt.IntegrityTag)
}

func TestHashLinkDecodeAcceptsURLSafeAlphabet(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	codec := newTestCodec(clock)

	token, err := codec.Encode(5, "erin", "+1 hour")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(token)
	require.NoError(t, err)

	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.RawStdEncoding} {
		vt, err := codec.Decode(enc.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, int64(5), vt.SubjectID)
	}
}

func TestHashLinkEncodeInvalidTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	codec := newTestCodec(clock)

	_, err := codec.Encode(1, "alice", "+1 parsec")
	assert.Error(t, err)
}

func TestHashLinkLongSlug(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)}
	codec := newTestCodec(clock)
	slug := strings.Repeat("a", 100)

	token, err := codec.Encode(1, slug, "+1 day")
	require.NoError(t, err)

	vt, err := codec.Decode(token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), vt.SubjectID)

	hasher := identity.NewBcryptHasher(bcrypt.MinCost)
	assert.True(t, hasher.Verify(identity.IntegrityInput(1, slug), vt.IntegrityTag))
	assert.False(t, hasher.Verify(identity.IntegrityInput(1, slug+"b"), vt.IntegrityTag))
}

func TestIntegrityInput(t *testing.T) {
	short := identity.IntegrityInput(7, "bob")
	long := identity.IntegrityInput(7, strings.Repeat("x", 500))

	assert.Len(t, short, 64)
	assert.Len(t, long, 64)
	assert.Equal(t, short, identity.IntegrityInput(7, "bob"))
	assert.NotEqual(t, short, identity.IntegrityInput(8, "bob"))
}
