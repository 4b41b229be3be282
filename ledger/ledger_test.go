package ledger

import (
	"strings"
	"testing"

	"github.com/credchain/credchain/model"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(Config{Difficulty: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func testTx(id string) Transaction {
	return Transaction{
		CredentialID: id,
		ContentHash:  "hash-" + id,
		IssuerDID:    "did:credchain:issuer0000000000",
		RecipientDID: "did:credchain:recipient000000",
		Timestamp:    1700000000,
	}
}

func TestGenesisBlock(t *testing.T) {
	l := newTestLedger(t)
	chain := l.Chain()
	if len(chain) != 1 {
		t.Fatalf("chain length = %d, want 1", len(chain))
	}
	genesis := chain[0]
	if genesis.Index != 0 {
		t.Errorf("genesis index = %d", genesis.Index)
	}
	if genesis.PreviousHash != GenesisPreviousHash {
		t.Errorf("genesis previous hash = %q", genesis.PreviousHash)
	}
	if len(genesis.Transactions) != 0 {
		t.Errorf("genesis has %d transactions", len(genesis.Transactions))
	}
	if !strings.HasPrefix(genesis.Hash, "0") {
		t.Errorf("genesis hash %q misses difficulty prefix", genesis.Hash)
	}
	if !l.Validate() {
		t.Error("fresh chain failed validation")
	}
}

func TestMineSealsPendingPool(t *testing.T) {
	l := newTestLedger(t)
	l.Submit(testTx("a"))
	l.Submit(testTx("b"))

	block := l.Mine()
	if block == nil {
		t.Fatal("Mine returned nil with pending transactions")
	}
	if block.Index != 1 {
		t.Errorf("block index = %d, want 1", block.Index)
	}
	if len(block.Transactions) != 2 {
		t.Fatalf("block has %d transactions, want 2", len(block.Transactions))
	}
	if block.Transactions[0].CredentialID != "a" || block.Transactions[1].CredentialID != "b" {
		t.Error("block transactions lost submission order")
	}
	if l.PendingCount() != 0 {
		t.Errorf("pending pool not drained: %d", l.PendingCount())
	}
	if !l.Validate() {
		t.Error("chain invalid after mining")
	}
}

func TestMineDrainsOnlyPoolAtCallTime(t *testing.T) {
	l := newTestLedger(t)
	l.Submit(testTx("first"))
	block := l.Mine()
	if block == nil || len(block.Transactions) != 1 {
		t.Fatal("expected block with one transaction")
	}

	l.Submit(testTx("second"))
	if l.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", l.PendingCount())
	}
	next := l.Mine()
	if next == nil || len(next.Transactions) != 1 || next.Transactions[0].CredentialID != "second" {
		t.Error("later submission not kept for the next block")
	}
}

func TestMineEmptyPoolIsNoOp(t *testing.T) {
	l := newTestLedger(t)
	if block := l.Mine(); block != nil {
		t.Errorf("Mine on empty pool returned %+v", block)
	}
	if l.Length() != 1 {
		t.Errorf("chain grew on empty mine: length %d", l.Length())
	}
}

func TestDifficultyPrefix(t *testing.T) {
	l, err := New(Config{Difficulty: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Submit(testTx("degree"))
	block := l.Mine()
	if block == nil {
		t.Fatal("Mine returned nil")
	}
	for _, b := range l.Chain() {
		if !strings.HasPrefix(b.Hash, "0000") {
			t.Errorf("block %d hash %q does not start with 0000", b.Index, b.Hash)
		}
	}
}

func TestChainLinkage(t *testing.T) {
	l := newTestLedger(t)
	for _, id := range []string{"a", "b", "c"} {
		l.Submit(testTx(id))
		if l.Mine() == nil {
			t.Fatalf("Mine %s returned nil", id)
		}
	}
	chain := l.Chain()
	if len(chain) != 4 {
		t.Fatalf("chain length = %d, want 4", len(chain))
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].PreviousHash != chain[i-1].Hash {
			t.Errorf("block %d previous hash does not match block %d", i, i-1)
		}
	}
}

func TestValidateDetectsTampering(t *testing.T) {
	l := newTestLedger(t)
	l.Submit(testTx("a"))
	l.Mine()
	l.Submit(testTx("b"))
	l.Mine()

	t.Run("overwritten hash", func(t *testing.T) {
		saved := l.blocks[1].Hash
		l.blocks[1].Hash = strings.Repeat("0", len(saved))
		if l.Validate() {
			t.Error("validation passed with overwritten block hash")
		}
		l.blocks[1].Hash = saved
	})

	t.Run("altered previous hash", func(t *testing.T) {
		saved := l.blocks[2].PreviousHash
		l.blocks[2].PreviousHash = GenesisPreviousHash
		if l.Validate() {
			t.Error("validation passed with altered previous hash")
		}
		l.blocks[2].PreviousHash = saved
	})

	t.Run("mutated transaction", func(t *testing.T) {
		saved := l.blocks[1].Transactions[0].ContentHash
		l.blocks[1].Transactions[0].ContentHash = "forged"
		if l.Validate() {
			t.Error("validation passed with mutated transaction")
		}
		l.blocks[1].Transactions[0].ContentHash = saved
	})

	if !l.Validate() {
		t.Error("chain should validate after restoring fields")
	}
}

func TestFindTransaction(t *testing.T) {
	l := newTestLedger(t)
	l.Submit(testTx("a"))
	l.Mine()

	idx, tx, err := l.FindTransaction("hash-a")
	if err != nil {
		t.Fatalf("FindTransaction: %v", err)
	}
	if idx != 1 || tx.CredentialID != "a" {
		t.Errorf("found block %d tx %q", idx, tx.CredentialID)
	}

	l.Submit(testTx("pending"))
	if _, _, err := l.FindTransaction("hash-pending"); err == nil {
		t.Error("pending transaction reported as on chain")
	} else if !model.IsCode(err, model.ErrNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	l := newTestLedger(t)
	l.Submit(testTx("a"))
	status := l.Status()
	if status.Length != 1 || status.PendingTransactions != 1 || status.Difficulty != 1 || !status.Valid {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestFromBlocks(t *testing.T) {
	l := newTestLedger(t)
	l.Submit(testTx("a"))
	l.Mine()

	restored, err := FromBlocks(Config{Difficulty: 1}, l.Chain())
	if err != nil {
		t.Fatalf("FromBlocks: %v", err)
	}
	if restored.Length() != 2 || !restored.Validate() {
		t.Error("restored chain invalid")
	}

	tampered := l.Chain()
	tampered[1].Transactions[0].CredentialID = "forged"
	if _, err := FromBlocks(Config{Difficulty: 1}, tampered); err == nil {
		t.Error("FromBlocks accepted a tampered chain")
	}

	if _, err := FromBlocks(Config{Difficulty: 1}, nil); err == nil {
		t.Error("FromBlocks accepted an empty chain")
	}
}

func TestConfigDefaults(t *testing.T) {
	l, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg := l.Config()
	if cfg.Difficulty != DefaultDifficulty || cfg.HashAlg != DefaultHashAlg {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestSha3Chain(t *testing.T) {
	l, err := New(Config{Difficulty: 1, HashAlg: "sha3-256"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Submit(testTx("a"))
	if l.Mine() == nil {
		t.Fatal("Mine returned nil")
	}
	if !l.Validate() {
		t.Error("sha3-256 chain failed validation")
	}
}
