// Package identity maintains the registry of decentralized identities.
package identity

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/credchain/credchain/keys"
	"github.com/credchain/credchain/model"
)

// Identifiers are unique and never reassigned; records are immutable once
// stored. The registry is the sole writer of its map.
type Registry struct {
	mu         sync.RWMutex
	identities map[string]model.Identity
	alg        keys.Algorithm
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// NewRegistry returns an empty registry generating keypairs with alg.
func NewRegistry(alg keys.Algorithm) *Registry {
	return &Registry{
		identities: make(map[string]model.Identity),
		alg:        alg,
	}
}

// Create generates a keypair, derives the identifier, and stores the public
// identity record. The private key is returned exactly once and never
// persisted; an empty role defaults to "user".
func (r *Registry) Create(displayName, email, role string) (*model.CreatedIdentity, error) {
	displayName = strings.TrimSpace(displayName)
	email = strings.TrimSpace(email)
	if displayName == "" {
		return nil, model.NewError(model.ErrValidation, "display name is required")
	}
	if email == "" {
		return nil, model.NewError(model.ErrValidation, "email is required")
	}
	if !emailPattern.MatchString(email) {
		return nil, model.Errorf(model.ErrValidation, "email %q is not a valid address", email)
	}
	if role == "" {
		role = "user"
	}

	pair, err := keys.Generate(r.alg)
	if err != nil {
		return nil, err
	}
	did, err := keys.DeriveIdentifier(pair.PublicPEM)
	if err != nil {
		return nil, err
	}

	record := model.Identity{
		Identifier:   did,
		DisplayName:  displayName,
		Email:        email,
		Role:         role,
		PublicKeyPEM: pair.PublicPEM,
		KeyAlg:       string(pair.Algorithm),
		CreatedAt:    time.Now().Unix(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.identities[did]; exists {
		// Identifier collisions require colliding key digests.
		return nil, model.Errorf(model.ErrInternal, "identifier %s already registered", did)
	}
	r.identities[did] = record

	return &model.CreatedIdentity{Identity: record, PrivateKeyPEM: pair.PrivatePEM}, nil
}

// Get returns the stored public identity for an identifier.
func (r *Registry) Get(identifier string) (*model.Identity, error) {
	r.mu.RLock()
	record, ok := r.identities[identifier]
	r.mu.RUnlock()
	if !ok {
		return nil, model.Errorf(model.ErrNotFound, "identity %s not found", identifier)
	}
	return &record, nil
}

// Len reports the number of registered identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}
