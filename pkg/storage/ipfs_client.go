package storage

import (
	"errors"
	"strings"
)

var ErrInvalidCID = errors.New("invalid IPFS content hash")

// IPFSGateway resolves evidence content hashes to HTTP gateway URLs
type IPFSGateway struct {
	baseURL string
}

// NewIPFSGateway creates a gateway rooted at baseURL, e.g. https://ipfs.io/ipfs/
func NewIPFSGateway(baseURL string) *IPFSGateway {
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &IPFSGateway{baseURL: baseURL}
}

// URL returns the gateway URL for a CID. An empty base URL yields an ipfs:// URI.
func (g *IPFSGateway) URL(cid string) string {
	if g.baseURL == "" {
		return "ipfs://" + cid
	}
	return g.baseURL + cid
}

// URLs maps every CID to its gateway URL
func (g *IPFSGateway) URLs(cids []string) []string {
	urls := make([]string, len(cids))
	for i, cid := range cids {
		urls[i] = g.URL(cid)
	}
	return urls
}

// ValidateCID checks that cid looks like a CIDv0 (Qm...) or base32 CIDv1 (b...)
func ValidateCID(cid string) error {
	switch {
	case len(cid) == 46 && strings.HasPrefix(cid, "Qm") && isBase58(cid):
		return nil
	case len(cid) > 8 && strings.HasPrefix(cid, "b") && isBase32Lower(cid[1:]):
		return nil
	}
	return ErrInvalidCID
}

func isBase58(s string) bool {
	const alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	for _, r := range s {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}

func isBase32Lower(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '2' && r <= '7') {
			return false
		}
	}
	return true
}
