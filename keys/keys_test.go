package keys

import (
	"strings"
	"testing"

	"github.com/credchain/credchain/model"
)

func mustGenerate(t *testing.T, alg Algorithm) *KeyPair {
	t.Helper()
	pair, err := Generate(alg)
	if err != nil {
		t.Fatalf("Generate(%s): %v", alg, err)
	}
	return pair
}

func TestGenerateUnsupportedAlgorithm(t *testing.T) {
	_, err := Generate(Algorithm("secp256k1"))
	if err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
	if !model.IsCode(err, model.ErrValidation) {
		t.Errorf("expected VALIDATION code, got %v", err)
	}
}

func TestDeriveIdentifierDeterministic(t *testing.T) {
	for _, alg := range []Algorithm{AlgRSA2048, AlgEd25519, AlgDilithium3} {
		pair := mustGenerate(t, alg)

		a, err := DeriveIdentifier(pair.PublicPEM)
		if err != nil {
			t.Fatalf("DeriveIdentifier(%s): %v", alg, err)
		}
		b, err := DeriveIdentifier(pair.PublicPEM)
		if err != nil {
			t.Fatalf("DeriveIdentifier(%s) second call: %v", alg, err)
		}
		if a != b {
			t.Errorf("%s: identifier not deterministic: %q vs %q", alg, a, b)
		}
		if !strings.HasPrefix(a, DIDPrefix) {
			t.Errorf("%s: identifier %q missing prefix %q", alg, a, DIDPrefix)
		}
		if len(a) != len(DIDPrefix)+identifierHexLen {
			t.Errorf("%s: identifier %q has unexpected length", alg, a)
		}
	}
}

func TestDeriveIdentifierDistinctKeys(t *testing.T) {
	a := mustGenerate(t, AlgEd25519)
	b := mustGenerate(t, AlgEd25519)

	idA, err := DeriveIdentifier(a.PublicPEM)
	if err != nil {
		t.Fatalf("DeriveIdentifier: %v", err)
	}
	idB, err := DeriveIdentifier(b.PublicPEM)
	if err != nil {
		t.Fatalf("DeriveIdentifier: %v", err)
	}
	if idA == idB {
		t.Errorf("distinct keypairs produced identical identifier %q", idA)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	message := []byte("credential canonical body")
	for _, alg := range []Algorithm{AlgRSA2048, AlgEd25519, AlgDilithium3} {
		for _, hashAlg := range []string{"sha256", "sha512", "sha3-256"} {
			pair := mustGenerate(t, alg)
			sig, err := Sign(message, pair.PrivatePEM, hashAlg)
			if err != nil {
				t.Fatalf("Sign(%s/%s): %v", alg, hashAlg, err)
			}
			if err := Verify(message, sig, pair.PublicPEM, hashAlg); err != nil {
				t.Errorf("Verify(%s/%s): %v", alg, hashAlg, err)
			}
		}
	}
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	message := []byte("credential canonical body")
	for _, alg := range []Algorithm{AlgRSA2048, AlgEd25519, AlgDilithium3} {
		signer := mustGenerate(t, alg)
		other := mustGenerate(t, alg)

		sig, err := Sign(message, signer.PrivatePEM, "sha256")
		if err != nil {
			t.Fatalf("Sign(%s): %v", alg, err)
		}
		if err := Verify(message, sig, other.PublicPEM, "sha256"); err == nil {
			t.Errorf("%s: expected verification failure under wrong key", alg)
		}
	}
}

func TestVerifyRejectsMutatedMessage(t *testing.T) {
	pair := mustGenerate(t, AlgRSA2048)
	sig, err := Sign([]byte("original"), pair.PrivatePEM, "sha256")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := Verify([]byte("tampered"), sig, pair.PublicPEM, "sha256"); err == nil {
		t.Error("expected verification failure for mutated message")
	}
}

func TestDigestForUnsupported(t *testing.T) {
	if _, err := DigestFor("md5", []byte("x")); err == nil {
		t.Fatal("expected error for unsupported hash algorithm")
	}
}

func TestAlgorithmOf(t *testing.T) {
	for _, alg := range []Algorithm{AlgRSA2048, AlgEd25519, AlgDilithium3} {
		pair := mustGenerate(t, alg)
		got, err := AlgorithmOf(pair.PublicPEM)
		if err != nil {
			t.Fatalf("AlgorithmOf(%s): %v", alg, err)
		}
		if got != alg {
			t.Errorf("AlgorithmOf = %s, want %s", got, alg)
		}
	}
}
