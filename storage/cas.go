// Package storage defines the content-addressable storage contract used for
// durable chain archives.
package storage

import "github.com/ipfs/go-cid"

// CAS is a minimal content-addressable store.
//
// Contract:
// - Put MUST be idempotent and MUST derive the CID from the bytes written.
// - Stored objects MUST be immutable.
// - Get MUST return ErrNotFound when the CID is absent.
type CAS interface {
	Put(data []byte) (cid.Cid, error)
	Get(id cid.Cid) ([]byte, error)
	Has(id cid.Cid) bool
}
