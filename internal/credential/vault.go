package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

const serviceName = "mailrag"

// Vault persists one token. Load returns (nil, nil) when nothing is stored.
type Vault interface {
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
	Delete() error
}

// OpenKeyring returns the platform keyring, falling back to an encrypted file
// store under dir when no desktop secret service is available.
func OpenKeyring(dir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("mailrag-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringVault stores a token as JSON under Key.
type KeyringVault struct {
	Ring keyring.Keyring
	Key  string
}

func (v KeyringVault) Load() (*oauth2.Token, error) {
	item, err := v.Ring.Get(v.Key)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting credential %q: %w", v.Key, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(item.Data, &tok); err != nil {
		return nil, fmt.Errorf("decoding credential %q: %w", v.Key, err)
	}
	return &tok, nil
}

func (v KeyringVault) Save(tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding credential %q: %w", v.Key, err)
	}
	err = v.Ring.Set(keyring.Item{
		Key:   v.Key,
		Data:  data,
		Label: "mailrag " + v.Key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", v.Key, err)
	}
	return nil
}

func (v KeyringVault) Delete() error {
	if err := v.Ring.Remove(v.Key); err != nil && !isMissing(err) {
		return fmt.Errorf("deleting credential %q: %w", v.Key, err)
	}
	return nil
}

func isMissing(err error) bool {
	return errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, fs.ErrNotExist)
}

// MemoryVault keeps the token in process memory.
type MemoryVault struct {
	mu  sync.Mutex
	tok *oauth2.Token
}

func (v *MemoryVault) Load() (*oauth2.Token, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.tok == nil {
		return nil, nil
	}
	cp := *v.tok
	return &cp, nil
}

func (v *MemoryVault) Save(tok *oauth2.Token) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	cp := *tok
	v.tok = &cp
	return nil
}

func (v *MemoryVault) Delete() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tok = nil
	return nil
}

var (
	_ Vault = KeyringVault{}
	_ Vault = (*MemoryVault)(nil)
)
