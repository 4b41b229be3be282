package keys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Store is a simple local-first keystore for client-side key custody.
//
// The server never persists private keys; callers that want durable keys keep
// them here. Layout: <dir>/<name>/private.pem (0600) and <dir>/<name>/public.pem.
type Store struct {
	Directory string
}

type StoreEntry struct {
	Name       string
	Identifier string
	Algorithm  Algorithm
}

func DefaultStoreDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".credchain", "keys"), nil
}

func OpenStore(directory string) (*Store, error) {
	if directory == "" {
		var err error
		directory, err = DefaultStoreDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &Store{Directory: directory}, nil
}

// CheckName restricts key names to filesystem-safe identifiers.
func CheckName(name string) error {
	if name == "" {
		return errors.New("key name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in key name", char)
	}
	return nil
}

func (s *Store) privatePath(name string) string {
	return filepath.Join(s.Directory, name, "private.pem")
}

func (s *Store) publicPath(name string) string {
	return filepath.Join(s.Directory, name, "public.pem")
}

// Init generates a keypair under name and returns it together with the
// derived identifier. Existing keys are not overwritten unless overwrite
// is set.
func (s *Store) Init(name string, alg Algorithm, overwrite bool) (*KeyPair, string, error) {
	if err := CheckName(name); err != nil {
		return nil, "", err
	}
	pair, err := Generate(alg)
	if err != nil {
		return nil, "", err
	}
	did, err := DeriveIdentifier(pair.PublicPEM)
	if err != nil {
		return nil, "", err
	}
	if err := s.writePEM(s.privatePath(name), pair.PrivatePEM, 0o600, overwrite); err != nil {
		return nil, "", err
	}
	if err := s.writePEM(s.publicPath(name), pair.PublicPEM, 0o644, true); err != nil {
		return nil, "", err
	}
	return pair, did, nil
}

// Export loads the stored keypair for name.
func (s *Store) Export(name string) (*KeyPair, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	priv, err := os.ReadFile(s.privatePath(name))
	if err != nil {
		return nil, err
	}
	pub, err := os.ReadFile(s.publicPath(name))
	if err != nil {
		return nil, err
	}
	alg, err := AlgorithmOf(string(pub))
	if err != nil {
		return nil, err
	}
	return &KeyPair{
		Algorithm:  alg,
		PublicPEM:  string(pub),
		PrivatePEM: string(priv),
	}, nil
}

// List returns the stored keys sorted by name.
func (s *Store) List() ([]StoreEntry, error) {
	entries, err := os.ReadDir(s.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var result []StoreEntry
	for _, name := range names {
		pub, err := os.ReadFile(s.publicPath(name))
		if err != nil {
			continue
		}
		did, err := DeriveIdentifier(string(pub))
		if err != nil {
			continue
		}
		alg, err := AlgorithmOf(string(pub))
		if err != nil {
			continue
		}
		result = append(result, StoreEntry{Name: name, Identifier: did, Algorithm: alg})
	}
	return result, nil
}

func (s *Store) writePEM(path, pemData string, mode os.FileMode, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, mode)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(pemData); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
