package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	token, err := Encode(Cursor{LastID: 42})
	require.NoError(t, err)

	c, err := Decode(token)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), c.LastID)
}

func TestDecodeEmptyTokenIsFirstPage(t *testing.T) {
	c, err := Decode("")
	require.NoError(t, err)
	assert.Equal(t, Cursor{}, c)
}

func TestDecodeGarbageFails(t *testing.T) {
	_, err := Decode("not-base64!!!")
	assert.Error(t, err)

	// valid base64, invalid JSON
	_, err = Decode("bm90LWpzb24=")
	assert.Error(t, err)
}
