package storage

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"
)

// ChainArchive is an append-only, content-addressed log of sealed blocks.
//
// Each block snapshot is stored in a CAS keyed by its CID; the head file
// records the ordered CID list, one per line, and is only ever appended to.
// Replay reads the head file and fetches each snapshot, verifying content
// addresses along the way.
type ChainArchive struct {
	mu       sync.Mutex
	cas      CAS
	headPath string
}

func NewChainArchive(cas CAS, headPath string) (*ChainArchive, error) {
	if cas == nil {
		return nil, errors.New("storage: archive requires a CAS")
	}
	if headPath == "" {
		return nil, errors.New("storage: archive requires a head file path")
	}
	if err := os.MkdirAll(filepath.Dir(headPath), 0o755); err != nil {
		return nil, err
	}
	return &ChainArchive{cas: cas, headPath: headPath}, nil
}

// Append stores a block snapshot and records its CID at the end of the log.
func (a *ChainArchive) Append(snapshot []byte) (cid.Cid, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id, err := a.cas.Put(snapshot)
	if err != nil {
		return cid.Undef, err
	}

	f, err := os.OpenFile(a.headPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return cid.Undef, err
	}
	if _, err := f.WriteString(id.String() + "\n"); err != nil {
		_ = f.Close()
		return cid.Undef, err
	}
	if err := f.Close(); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

// Len reports the number of archived snapshots.
func (a *ChainArchive) Len() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids, err := a.readHead()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Replay returns every archived block snapshot in log order.
func (a *ChainArchive) Replay() ([][]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids, err := a.readHead()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(ids))
	for i, id := range ids {
		snapshot, err := a.cas.Get(id)
		if err != nil {
			return nil, fmt.Errorf("storage: archive entry %d (%s): %w", i, id, err)
		}
		out = append(out, snapshot)
	}
	return out, nil
}

func (a *ChainArchive) readHead() ([]cid.Cid, error) {
	data, err := os.ReadFile(a.headPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []cid.Cid
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := cid.Decode(line)
		if err != nil {
			return nil, fmt.Errorf("storage: corrupt archive head: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, scanner.Err()
}
