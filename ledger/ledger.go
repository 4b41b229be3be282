// Package ledger implements the append-only proof-of-work chain anchoring
// credential transactions.
package ledger

import (
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/credchain/credchain/keys"
	"github.com/credchain/credchain/model"
)

// Transaction is a pending credential anchor awaiting inclusion in a block.
// Once mined it is owned by its block and never mutated.
type Transaction struct {
	CredentialID string `json:"credentialId"`
	ContentHash  string `json:"contentHash"`
	IssuerDID    string `json:"issuerDid"`
	RecipientDID string `json:"recipientDid"`
	Timestamp    int64  `json:"timestamp"`
}

// HashHex returns the transaction digest used for merkle aggregation.
func (t Transaction) HashHex(hashAlg string) string {
	encoded, _ := json.Marshal(t)
	digest, err := keys.DigestFor(hashAlg, encoded)
	if err != nil {
		return ""
	}
	return hex.EncodeToString(digest)
}

// Block is a sealed, proof-of-work-stamped batch of transactions.
type Block struct {
	Index        int           `json:"index"`
	Timestamp    int64         `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	MerkleRoot   string        `json:"merkleRoot"`
	PreviousHash string        `json:"previousHash"`
	Nonce        uint64        `json:"nonce"`
	Hash         string        `json:"hash"`
}

// GenesisPreviousHash anchors block 0.
const GenesisPreviousHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ComputeHash digests the block header: index, timestamp, merkle root,
// previous hash, and nonce. Transactions are covered via the merkle root.
func (b *Block) ComputeHash(hashAlg string) string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(b.Index))
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatInt(b.Timestamp, 10))
	sb.WriteByte('|')
	sb.WriteString(b.MerkleRoot)
	sb.WriteByte('|')
	sb.WriteString(b.PreviousHash)
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatUint(b.Nonce, 10))
	digest, err := keys.DigestFor(hashAlg, []byte(sb.String()))
	if err != nil {
		return ""
	}
	return hex.EncodeToString(digest)
}

// computeMerkleRoot pairs transaction hashes upward, duplicating the last
// hash on odd levels. Empty transaction lists yield an empty root.
func computeMerkleRoot(txs []Transaction, hashAlg string) string {
	if len(txs) == 0 {
		return ""
	}
	level := make([]string, 0, len(txs))
	for _, tx := range txs {
		level = append(level, tx.HashHex(hashAlg))
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			digest, err := keys.DigestFor(hashAlg, []byte(level[i]+level[i+1]))
			if err != nil {
				return ""
			}
			next = append(next, hex.EncodeToString(digest))
		}
		level = next
	}
	return level[0]
}

func (b *Block) mine(difficulty int, hashAlg string) {
	b.MerkleRoot = computeMerkleRoot(b.Transactions, hashAlg)
	prefix := strings.Repeat("0", difficulty)
	b.Nonce = 0
	for {
		b.Hash = b.ComputeHash(hashAlg)
		if strings.HasPrefix(b.Hash, prefix) {
			return
		}
		b.Nonce++
	}
}

// Config fixes the proof-of-work parameters for a ledger instance.
// Difficulty counts required leading zero hex digits of block hashes.
type Config struct {
	Difficulty int
	HashAlg    string
}

const (
	DefaultDifficulty = 4
	DefaultHashAlg    = "sha256"
)

func (c *Config) applyDefaults() {
	if c.Difficulty == 0 {
		c.Difficulty = DefaultDifficulty
	}
	if c.HashAlg == "" {
		c.HashAlg = DefaultHashAlg
	}
}

func (c Config) validate() error {
	if c.Difficulty < 1 {
		return model.NewError(model.ErrValidation, "difficulty must be at least 1")
	}
	if _, err := keys.DigestFor(c.HashAlg, nil); err != nil {
		return err
	}
	return nil
}

// Ledger owns the ordered block sequence and the pending-transaction pool.
// It is the sole writer of both. Its lock covers only its own state, so
// proof-of-work search never blocks identity or credential reads.
type Ledger struct {
	mu      sync.RWMutex
	cfg     Config
	blocks  []*Block
	pending []Transaction
}

// New creates a ledger and mines its genesis block: index 0, no
// transactions, all-zero previous hash, sealed at the configured difficulty.
func New(cfg Config) (*Ledger, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	genesis := &Block{
		Index:        0,
		Timestamp:    time.Now().Unix(),
		PreviousHash: GenesisPreviousHash,
	}
	genesis.mine(cfg.Difficulty, cfg.HashAlg)
	return &Ledger{cfg: cfg, blocks: []*Block{genesis}}, nil
}

// FromBlocks reconstructs a ledger from a previously sealed chain,
// validating every link before accepting it.
func FromBlocks(cfg Config, blocks []Block) (*Ledger, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, model.NewError(model.ErrValidation, "chain must contain a genesis block")
	}
	owned := make([]*Block, len(blocks))
	for i := range blocks {
		b := blocks[i]
		b.Transactions = append([]Transaction(nil), blocks[i].Transactions...)
		owned[i] = &b
	}
	l := &Ledger{cfg: cfg, blocks: owned}
	if !l.Validate() {
		return nil, model.NewError(model.ErrValidation, "chain failed integrity validation")
	}
	return l, nil
}

// Config returns the ledger's proof-of-work parameters.
func (l *Ledger) Config() Config {
	return l.cfg
}

// Submit appends a transaction to the pending pool.
func (l *Ledger) Submit(tx Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending = append(l.pending, tx)
}

// Mine drains the pending pool into a new block, solves the proof-of-work
// puzzle from nonce 0, and appends the block to the chain. Transactions
// submitted after Mine begins wait for the next call. An empty pool is a
// no-op returning nil.
func (l *Ledger) Mine() *Block {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.pending) == 0 {
		return nil
	}

	tip := l.blocks[len(l.blocks)-1]
	block := &Block{
		Index:        len(l.blocks),
		Timestamp:    time.Now().Unix(),
		Transactions: l.pending,
		PreviousHash: tip.Hash,
	}
	l.pending = nil

	block.mine(l.cfg.Difficulty, l.cfg.HashAlg)
	l.blocks = append(l.blocks, block)

	copied := *block
	copied.Transactions = append([]Transaction(nil), block.Transactions...)
	return &copied
}

// Chain returns a consistent snapshot of the sealed block sequence.
func (l *Ledger) Chain() []Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Block, len(l.blocks))
	for i, b := range l.blocks {
		out[i] = *b
		out[i].Transactions = append([]Transaction(nil), b.Transactions...)
	}
	return out
}

// Length reports the number of sealed blocks including genesis.
func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocks)
}

// PendingCount reports the size of the pending pool.
func (l *Ledger) PendingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

// Validate checks the whole chain: each block's hash recomputes from its
// fields, satisfies the difficulty prefix, and links to its predecessor.
func (l *Ledger) Validate() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.validateLocked()
}

func (l *Ledger) validateLocked() bool {
	prefix := strings.Repeat("0", l.cfg.Difficulty)
	for i, b := range l.blocks {
		if b.Index != i {
			return false
		}
		if b.MerkleRoot != computeMerkleRoot(b.Transactions, l.cfg.HashAlg) {
			return false
		}
		if b.Hash != b.ComputeHash(l.cfg.HashAlg) {
			return false
		}
		if !strings.HasPrefix(b.Hash, prefix) {
			return false
		}
		if i == 0 {
			if b.PreviousHash != GenesisPreviousHash {
				return false
			}
			continue
		}
		if b.PreviousHash != l.blocks[i-1].Hash {
			return false
		}
	}
	return true
}

// FindTransaction scans sealed blocks for a transaction with the given
// content hash, returning the containing block index.
func (l *Ledger) FindTransaction(contentHash string) (int, *Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, b := range l.blocks {
		for _, tx := range b.Transactions {
			if tx.ContentHash == contentHash {
				found := tx
				return b.Index, &found, nil
			}
		}
	}
	return -1, nil, model.Errorf(model.ErrNotFound, "transaction with hash %s not on chain", contentHash)
}

// Status summarizes the ledger, running a full validation pass.
func (l *Ledger) Status() model.ChainStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return model.ChainStatus{
		Length:              len(l.blocks),
		PendingTransactions: len(l.pending),
		Difficulty:          l.cfg.Difficulty,
		Valid:               l.validateLocked(),
	}
}
