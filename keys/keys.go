// Package keys implements keypair generation, identifier derivation, and
// signing for credchain identities.
package keys

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"

	"github.com/credchain/credchain/model"
)

type Algorithm string

const (
	AlgRSA2048    Algorithm = "rsa2048"
	AlgEd25519    Algorithm = "ed25519"
	AlgDilithium3 Algorithm = "dilithium3"
)

const (
	// DIDPrefix is the fixed namespace prefix of derived identifiers.
	DIDPrefix = "did:credchain:"

	// identifierHexLen is the truncated length of the key digest in a DID.
	identifierHexLen = 16

	pemTypePrivate = "PRIVATE KEY"
	pemTypePublic  = "PUBLIC KEY"

	// circl keys have no PKCS#8 support; they get their own PEM block types
	// carrying the raw binary encoding.
	pemTypeDilithium3Private = "DILITHIUM3 PRIVATE KEY"
	pemTypeDilithium3Public  = "DILITHIUM3 PUBLIC KEY"
)

// KeyPair is a freshly generated signing keypair in PEM form.
type KeyPair struct {
	Algorithm  Algorithm
	PublicPEM  string
	PrivatePEM string
}

// Generate returns a new keypair for alg using a cryptographically secure
// random source. Failures are fatal KEYGEN errors, not retried.
func Generate(alg Algorithm) (*KeyPair, error) {
	switch alg {
	case AlgRSA2048:
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, model.WrapError(model.ErrKeyGen, "rsa key generation failed", err)
		}
		return encodePKCS8(alg, priv, priv.Public())
	case AlgEd25519:
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, model.WrapError(model.ErrKeyGen, "ed25519 key generation failed", err)
		}
		return encodePKCS8(alg, priv, pub)
	case AlgDilithium3:
		pub, priv, err := mode3.GenerateKey(rand.Reader)
		if err != nil {
			return nil, model.WrapError(model.ErrKeyGen, "dilithium3 key generation failed", err)
		}
		pubBytes, err := pub.MarshalBinary()
		if err != nil {
			return nil, model.WrapError(model.ErrKeyGen, "dilithium3 public key encoding failed", err)
		}
		privBytes, err := priv.MarshalBinary()
		if err != nil {
			return nil, model.WrapError(model.ErrKeyGen, "dilithium3 private key encoding failed", err)
		}
		return &KeyPair{
			Algorithm:  alg,
			PublicPEM:  encodePEM(pemTypeDilithium3Public, pubBytes),
			PrivatePEM: encodePEM(pemTypeDilithium3Private, privBytes),
		}, nil
	default:
		return nil, model.Errorf(model.ErrValidation, "unsupported key algorithm %q", alg)
	}
}

func encodePKCS8(alg Algorithm, priv any, pub any) (*KeyPair, error) {
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, model.WrapError(model.ErrKeyGen, "private key encoding failed", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, model.WrapError(model.ErrKeyGen, "public key encoding failed", err)
	}
	return &KeyPair{
		Algorithm:  alg,
		PublicPEM:  encodePEM(pemTypePublic, pubDER),
		PrivatePEM: encodePEM(pemTypePrivate, privDER),
	}, nil
}

func encodePEM(blockType string, der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der}))
}

// DeriveIdentifier derives the stable DID for a public key: the fixed
// namespace prefix plus a truncated hex sha256 of the key's canonical
// encoding. Pure function; the same key always yields the same DID.
func DeriveIdentifier(publicPEM string) (string, error) {
	block, _ := pem.Decode([]byte(publicPEM))
	if block == nil {
		return "", model.NewError(model.ErrValidation, "public key is not valid PEM")
	}
	switch block.Type {
	case pemTypePublic, pemTypeDilithium3Public:
	default:
		return "", model.Errorf(model.ErrValidation, "unexpected PEM block %q for public key", block.Type)
	}
	sum := sha256.Sum256(block.Bytes)
	return DIDPrefix + hex.EncodeToString(sum[:])[:identifierHexLen], nil
}

// AlgorithmOf reports the signing algorithm of a PEM public key.
func AlgorithmOf(publicPEM string) (Algorithm, error) {
	block, _ := pem.Decode([]byte(publicPEM))
	if block == nil {
		return "", model.NewError(model.ErrValidation, "public key is not valid PEM")
	}
	switch block.Type {
	case pemTypeDilithium3Public:
		return AlgDilithium3, nil
	case pemTypePublic:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return "", model.WrapError(model.ErrValidation, "cannot parse public key", err)
		}
		switch key.(type) {
		case *rsa.PublicKey:
			return AlgRSA2048, nil
		case ed25519.PublicKey:
			return AlgEd25519, nil
		default:
			return "", model.NewError(model.ErrValidation, "unsupported public key type")
		}
	default:
		return "", model.Errorf(model.ErrValidation, "unexpected PEM block %q for public key", block.Type)
	}
}

// DigestFor hashes message with the named algorithm.
// Supported: sha256, sha512, sha3-256.
func DigestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, model.Errorf(model.ErrValidation, "unsupported hash algorithm %q", hashAlg)
	}
}

func cryptoHashFor(hashAlg string) (crypto.Hash, error) {
	switch hashAlg {
	case "sha256":
		return crypto.SHA256, nil
	case "sha512":
		return crypto.SHA512, nil
	case "sha3-256":
		return crypto.SHA3_256, nil
	default:
		return 0, model.Errorf(model.ErrValidation, "unsupported hash algorithm %q", hashAlg)
	}
}

// Sign signs hash(message) with a PEM private key and returns the base64
// signature. RSA keys sign with PSS; ed25519 and dilithium3 sign the digest
// directly.
func Sign(message []byte, privatePEM string, hashAlg string) (string, error) {
	digest, err := DigestFor(hashAlg, message)
	if err != nil {
		return "", err
	}

	block, _ := pem.Decode([]byte(privatePEM))
	if block == nil {
		return "", model.NewError(model.ErrSigning, "private key is not valid PEM")
	}

	switch block.Type {
	case pemTypePrivate:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return "", model.WrapError(model.ErrSigning, "cannot parse private key", err)
		}
		switch k := key.(type) {
		case *rsa.PrivateKey:
			h, err := cryptoHashFor(hashAlg)
			if err != nil {
				return "", err
			}
			sig, err := rsa.SignPSS(rand.Reader, k, h, digest, nil)
			if err != nil {
				return "", model.WrapError(model.ErrSigning, "rsa signing failed", err)
			}
			return base64.StdEncoding.EncodeToString(sig), nil
		case ed25519.PrivateKey:
			return base64.StdEncoding.EncodeToString(ed25519.Sign(k, digest)), nil
		default:
			return "", model.NewError(model.ErrSigning, "unsupported private key type")
		}
	case pemTypeDilithium3Private:
		var k mode3.PrivateKey
		if err := k.UnmarshalBinary(block.Bytes); err != nil {
			return "", model.WrapError(model.ErrSigning, "cannot parse dilithium3 private key", err)
		}
		sig := make([]byte, mode3.SignatureSize)
		mode3.SignTo(&k, digest, sig)
		return base64.StdEncoding.EncodeToString(sig), nil
	default:
		return "", model.Errorf(model.ErrSigning, "unexpected PEM block %q for private key", block.Type)
	}
}

// Verify checks a base64 signature over hash(message) against a PEM public
// key. A nil return means the signature is valid; an invalid signature is a
// SIGNING error (callers treating verification as data convert it to false).
func Verify(message []byte, signatureB64 string, publicPEM string, hashAlg string) error {
	digest, err := DigestFor(hashAlg, message)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return model.WrapError(model.ErrSigning, "invalid signature base64", err)
	}

	block, _ := pem.Decode([]byte(publicPEM))
	if block == nil {
		return model.NewError(model.ErrSigning, "public key is not valid PEM")
	}

	switch block.Type {
	case pemTypePublic:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return model.WrapError(model.ErrSigning, "cannot parse public key", err)
		}
		switch k := key.(type) {
		case *rsa.PublicKey:
			h, err := cryptoHashFor(hashAlg)
			if err != nil {
				return err
			}
			if err := rsa.VerifyPSS(k, h, digest, sig, nil); err != nil {
				return model.WrapError(model.ErrSigning, "signature invalid", err)
			}
			return nil
		case ed25519.PublicKey:
			if !ed25519.Verify(k, digest, sig) {
				return model.NewError(model.ErrSigning, "signature invalid")
			}
			return nil
		default:
			return model.NewError(model.ErrSigning, "unsupported public key type")
		}
	case pemTypeDilithium3Public:
		var k mode3.PublicKey
		if err := k.UnmarshalBinary(block.Bytes); err != nil {
			return model.WrapError(model.ErrSigning, "cannot parse dilithium3 public key", err)
		}
		if len(sig) != mode3.SignatureSize {
			return model.NewError(model.ErrSigning, "invalid dilithium3 signature length")
		}
		if !mode3.Verify(&k, digest, sig) {
			return model.NewError(model.ErrSigning, "signature invalid")
		}
		return nil
	default:
		return model.Errorf(model.ErrSigning, "unexpected PEM block %q for public key", block.Type)
	}
}
