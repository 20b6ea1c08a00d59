package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPFSGatewayURL(t *testing.T) {
	g := NewIPFSGateway("https://ipfs.io/ipfs")
	assert.Equal(t, "https://ipfs.io/ipfs/QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", g.URL("QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"))

	assert.Equal(t, []string{"ipfs://a", "ipfs://b"}, NewIPFSGateway("").URLs([]string{"a", "b"}))
	assert.Empty(t, g.URLs(nil))
}

func TestValidateCID(t *testing.T) {
	assert.NoError(t, ValidateCID("QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"))
	assert.NoError(t, ValidateCID("bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"))

	assert.ErrorIs(t, ValidateCID(""), ErrInvalidCID)
	assert.ErrorIs(t, ValidateCID("QmShort"), ErrInvalidCID)
	assert.ErrorIs(t, ValidateCID("https://example.com/photo.jpg"), ErrInvalidCID)
	assert.ErrorIs(t, ValidateCID("QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPb0l"), ErrInvalidCID)
}
