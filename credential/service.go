package credential

import (
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/credchain/credchain/cidutil"
	"github.com/credchain/credchain/identity"
	"github.com/credchain/credchain/keys"
	"github.com/credchain/credchain/ledger"
	"github.com/credchain/credchain/model"
)

// Service issues, stores, and verifies credentials, anchoring each issuance
// as a transaction in the ledger's pending pool.
type Service struct {
	mu          sync.RWMutex
	registry    *identity.Registry
	chain       *ledger.Ledger
	hashAlg     string
	credentials map[string]*model.Credential
	order       []string
}

func NewService(registry *identity.Registry, chain *ledger.Ledger, hashAlg string) (*Service, error) {
	if hashAlg == "" {
		hashAlg = "sha256"
	}
	if _, err := keys.DigestFor(hashAlg, nil); err != nil {
		return nil, err
	}
	return &Service{
		registry:    registry,
		chain:       chain,
		hashAlg:     hashAlg,
		credentials: make(map[string]*model.Credential),
	}, nil
}

// documentFor maps a credential onto its canonical document. Issuance and
// verification both go through this single mapping.
func documentFor(c *model.Credential) Document {
	claims := make(map[string]string, len(c.Payload))
	for k, v := range c.Payload {
		claims[k] = v
	}
	return Document{
		Meta: map[string]string{
			"Credential-ID": c.CredentialID,
			"Issued-At":     strconv.FormatInt(c.IssuedAt, 10),
			"Spec":          SpecTag,
			"Type":          c.Type,
		},
		Issuer:  map[string]string{"DID": c.IssuerDID},
		Subject: map[string]string{"DID": c.RecipientDID},
		Claims:  claims,
		Crypto: map[string]string{
			"Content-Hash": c.ContentHash,
			"Hash-Alg":     c.HashAlg,
			"Key-Alg":      c.KeyAlg,
			"Signature":    c.Signature,
		},
	}
}

// DocumentBytes renders the canonical document for a credential.
func DocumentBytes(c *model.Credential) ([]byte, error) {
	return Render(documentFor(c))
}

// Issue builds, signs, and stores a credential and submits its anchoring
// transaction. The signature is checked against the issuer's registered
// public key before anything is stored, so a mismatched private key fails
// without side effects.
func (s *Service) Issue(issuerDID, recipientDID, credType string, payload map[string]string, issuerPrivatePEM string) (*model.Credential, error) {
	issuer, err := s.registry.Get(issuerDID)
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.Get(recipientDID); err != nil {
		return nil, err
	}
	if credType == "" {
		return nil, model.NewError(model.ErrValidation, "credential type is required")
	}

	cred := &model.Credential{
		CredentialID: uuid.NewString(),
		IssuerDID:    issuerDID,
		RecipientDID: recipientDID,
		Type:         credType,
		Payload:      copyPayload(payload),
		IssuedAt:     time.Now().Unix(),
		KeyAlg:       issuer.KeyAlg,
		HashAlg:      s.hashAlg,
	}

	scope, err := SignedScope(documentFor(cred))
	if err != nil {
		return nil, err
	}
	digest, err := keys.DigestFor(s.hashAlg, scope)
	if err != nil {
		return nil, err
	}
	cred.ContentHash = hex.EncodeToString(digest)

	signature, err := keys.Sign(scope, issuerPrivatePEM, s.hashAlg)
	if err != nil {
		return nil, err
	}
	if err := keys.Verify(scope, signature, issuer.PublicKeyPEM, s.hashAlg); err != nil {
		return nil, model.NewError(model.ErrSigning, "private key does not match the issuer's registered public key")
	}
	cred.Signature = signature

	raw, err := Render(documentFor(cred))
	if err != nil {
		return nil, err
	}
	cred.CID = cidutil.SumString(raw)

	// Credential insert and pool submission form one atomic unit: a stored
	// credential always has a corresponding pending transaction.
	s.mu.Lock()
	s.credentials[cred.CredentialID] = cred
	s.order = append(s.order, cred.CredentialID)
	s.chain.Submit(ledger.Transaction{
		CredentialID: cred.CredentialID,
		ContentHash:  cred.ContentHash,
		IssuerDID:    cred.IssuerDID,
		RecipientDID: cred.RecipientDID,
		Timestamp:    cred.IssuedAt,
	})
	s.mu.Unlock()

	return copyCredential(cred), nil
}

// Get returns the stored credential.
func (s *Service) Get(credentialID string) (*model.Credential, error) {
	s.mu.RLock()
	cred, ok := s.credentials[credentialID]
	s.mu.RUnlock()
	if !ok {
		return nil, model.Errorf(model.ErrNotFound, "credential %s not found", credentialID)
	}
	return copyCredential(cred), nil
}

// Verify recomputes the credential's content hash, checks its signature
// against the issuer's registered public key, and looks for its anchoring
// transaction in a sealed block. Failed checks are results, not errors;
// only missing records raise.
func (s *Service) Verify(credentialID string) (*model.VerificationResult, error) {
	s.mu.RLock()
	cred, ok := s.credentials[credentialID]
	s.mu.RUnlock()
	if !ok {
		return nil, model.Errorf(model.ErrNotFound, "credential %s not found", credentialID)
	}

	issuer, err := s.registry.Get(cred.IssuerDID)
	if err != nil {
		return nil, err
	}

	result := &model.VerificationResult{CredentialID: credentialID, BlockIndex: -1}

	scope, err := SignedScope(documentFor(cred))
	if err != nil {
		return nil, err
	}
	digest, err := keys.DigestFor(cred.HashAlg, scope)
	if err != nil {
		return nil, err
	}
	result.Checks.HashMatches = hex.EncodeToString(digest) == cred.ContentHash
	result.Checks.SignatureValid = keys.Verify(scope, cred.Signature, issuer.PublicKeyPEM, cred.HashAlg) == nil

	if blockIndex, _, err := s.chain.FindTransaction(cred.ContentHash); err == nil {
		result.Checks.OnChain = true
		result.BlockIndex = blockIndex
	}

	result.Valid = result.Checks.HashMatches && result.Checks.SignatureValid && result.Checks.OnChain
	return result, nil
}

// ListByRecipient returns credentials issued to an identifier, in issuance order.
func (s *Service) ListByRecipient(identifier string) []*model.Credential {
	return s.list(func(c *model.Credential) bool { return c.RecipientDID == identifier })
}

// ListByIssuer returns credentials issued by an identifier, in issuance order.
func (s *Service) ListByIssuer(identifier string) []*model.Credential {
	return s.list(func(c *model.Credential) bool { return c.IssuerDID == identifier })
}

func (s *Service) list(match func(*model.Credential) bool) []*model.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*model.Credential{}
	for _, id := range s.order {
		if c := s.credentials[id]; match(c) {
			out = append(out, copyCredential(c))
		}
	}
	return out
}

// DocumentChecks is the offline counterpart of VerificationChecks for
// credentials moved as canonical document files.
type DocumentChecks struct {
	CredentialID   string
	ContentHash    string
	CID            string
	HashMatches    bool
	SignatureValid bool
}

// VerifyDocument checks a canonical credential document against an issuer
// public key, without registry or ledger state.
func VerifyDocument(data []byte, issuerPublicPEM string) (*DocumentChecks, error) {
	parsed, err := Parse(data)
	if err != nil {
		return nil, err
	}
	hashAlg := parsed.Get("CRYPTO", "Hash-Alg")
	digest, err := keys.DigestFor(hashAlg, parsed.Signed)
	if err != nil {
		return nil, err
	}
	checks := &DocumentChecks{
		CredentialID: parsed.Get("META", "Credential-ID"),
		ContentHash:  parsed.Get("CRYPTO", "Content-Hash"),
		CID:          cidutil.SumString(parsed.Raw),
	}
	checks.HashMatches = hex.EncodeToString(digest) == checks.ContentHash
	checks.SignatureValid = keys.Verify(parsed.Signed, parsed.Get("CRYPTO", "Signature"), issuerPublicPEM, hashAlg) == nil
	return checks, nil
}

func copyPayload(payload map[string]string) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

func copyCredential(c *model.Credential) *model.Credential {
	copied := *c
	copied.Payload = copyPayload(c.Payload)
	return &copied
}
