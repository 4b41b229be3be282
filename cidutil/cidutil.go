// Package cidutil derives content identifiers for canonical credchain bytes.
package cidutil

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Sum returns a CIDv1 (raw multicodec + sha2-256 multihash) for data.
// Credential documents and archived block snapshots are addressed this way.
func Sum(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// SumString is Sum rendered as the canonical CIDv1 string.
func SumString(data []byte) string {
	id, err := Sum(data)
	if err != nil {
		// multihash.Sum with SHA2_256 and default length cannot fail on any input.
		return ""
	}
	return id.String()
}
