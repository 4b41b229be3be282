package model

// Identity is the public view of a registered identity.
//
// The registry never holds private key material; the private key is returned
// exactly once, inside CreatedIdentity, at creation time.
type Identity struct {
	Identifier   string `json:"identifier"`
	DisplayName  string `json:"displayName"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	PublicKeyPEM string `json:"publicKeyPem"`
	KeyAlg       string `json:"keyAlg"`
	CreatedAt    int64  `json:"createdAt"`
}

// CreatedIdentity is the creation-time response: the public identity plus the
// one-shot private key. Callers are responsible for key custody.
type CreatedIdentity struct {
	Identity
	PrivateKeyPEM string `json:"privateKeyPem"`
}

// Credential is a signed claim issued by one identity about another.
//
// ContentHash and Signature both cover the canonical signed scope of the
// credential document (everything except the CRYPTO section). CID is the
// content identifier of the full canonical document bytes.
type Credential struct {
	CredentialID string            `json:"credentialId"`
	IssuerDID    string            `json:"issuerDid"`
	RecipientDID string            `json:"recipientDid"`
	Type         string            `json:"type"`
	Payload      map[string]string `json:"payload"`
	IssuedAt     int64             `json:"issuedAt"`
	KeyAlg       string            `json:"keyAlg"`
	HashAlg      string            `json:"hashAlg"`
	ContentHash  string            `json:"contentHash"`
	Signature    string            `json:"signature"`
	CID          string            `json:"cid"`
}

// VerificationChecks holds the per-check outcomes of credential verification.
// A failed check is an answer, not an error.
type VerificationChecks struct {
	HashMatches    bool `json:"hashMatches"`
	SignatureValid bool `json:"signatureValid"`
	OnChain        bool `json:"onChain"`
}

// VerificationResult is the structured outcome of verifying a credential.
// BlockIndex is -1 until the anchoring transaction is sealed in a block.
type VerificationResult struct {
	CredentialID string             `json:"credentialId"`
	Valid        bool               `json:"valid"`
	Checks       VerificationChecks `json:"checks"`
	BlockIndex   int                `json:"blockIndex"`
}

// ChainStatus summarizes the ledger for status endpoints.
type ChainStatus struct {
	Length              int  `json:"chainLength"`
	PendingTransactions int  `json:"pendingTransactionCount"`
	Difficulty          int  `json:"difficulty"`
	Valid               bool `json:"isValid"`
}
