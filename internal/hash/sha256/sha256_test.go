package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/neows-archiver/internal/neo"
)

var _ neo.Hasher = (*Hasher)(nil)

func TestHasherDigestsEncodedRecord(t *testing.T) {
	t.Parallel()

	payload, err := neo.EncodeRecord(neo.NormalizedRecord{ID: "2000433", Name: "433 Eros (A898 PA)"})
	require.NoError(t, err)

	h := New()
	got, err := h.Hash(payload)
	require.NoError(t, err)
	require.Len(t, got, 64)

	again, err := h.Hash(payload)
	require.NoError(t, err)
	require.Equal(t, got, again)

	other, err := h.Hash(append(payload, ' '))
	require.NoError(t, err)
	require.NotEqual(t, got, other)
}

func TestHasherKnownDigest(t *testing.T) {
	t.Parallel()

	got, err := New().Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)
}
