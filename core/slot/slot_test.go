package slot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	require.EqualValues(t, 0, CRC16(nil))
	require.EqualValues(t, 0x31C3, CRC16([]byte("123456789")))
}

func TestForKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want Slot
	}{
		{"simple_foo", "foo", 12182},
		{"simple_bar", "bar", 5061},
		{"simple_hello", "hello", 866},
		{"hashtag", "{user}:123", 5474},
		// Hash-tag edge cases: an empty or malformed tag hashes the whole key.
		{"empty_hashtag", "{}", 15257},
		{"empty_hashtag_prefix", "{}foo", 9500},
		{"unclosed_brace", "{foo", 13308},
		{"reversed_braces", "}foo{bar", 7622},
		// Only the first { to the next } counts.
		{"nested_braces", "{{foo}}", 13308},
		{"multiple_hashtags", "{a}{b}", 15495},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ForKey(tt.key))
		})
	}
}

func TestForKeyHashTagPinning(t *testing.T) {
	s := ForKey("{user:1000}.name")
	require.Equal(t, s, ForKey("{user:1000}.email"))
	require.Equal(t, s, ForKey("{user:1000}.profile"))

	require.NotEqual(t, s, ForKey("{user:2000}.name"))
}

func TestForKeys(t *testing.T) {
	s, err := ForKeys("{user:1000}.name", "{user:1000}.email")
	require.NoError(t, err)
	require.Equal(t, ForKey("{user:1000}.name"), s)

	_, err = ForKeys("foo", "bar")
	require.ErrorIs(t, err, ErrCrossSlot)

	_, err = ForKeys()
	require.ErrorIs(t, err, ErrNoKeys)
}

func TestForKeysSingle(t *testing.T) {
	s, err := ForKeys("foo")
	require.NoError(t, err)
	require.Equal(t, ForKey("foo"), s)
}

func TestForKeyRange(t *testing.T) {
	for _, key := range []string{"a", "normalkey", "user:12345:profile", "{x}"} {
		require.Less(t, uint16(ForKey(key)), uint16(Count))
	}
}

func BenchmarkForKey(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ForKey("user:12345:profile")
	}
}

func BenchmarkForKeyWithHashTag(b *testing.B) {
	for i := 0; i < b.N; i++ {
		ForKey("{user:12345}.profile")
	}
}
