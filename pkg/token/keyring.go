package token

import (
	"errors"
	"fmt"
	"strings"
)

// Key is a versioned HMAC signing key.
type Key struct {
	ID     string
	Secret []byte
}

// Keyring holds the signing keys for one token kind. The first key is the
// active signing key; every key verifies. Retired keys stay on the ring
// until every credential they signed has expired.
type Keyring struct {
	keys []Key
	byID map[string][]byte
}

// NewKeyring builds a Keyring. It rejects empty or duplicate key ids and
// empty secrets.
func NewKeyring(keys ...Key) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, errors.New("keyring needs at least one key")
	}
	kr := &Keyring{byID: make(map[string][]byte, len(keys))}
	for _, k := range keys {
		if k.ID == "" {
			return nil, errors.New("key id must not be empty")
		}
		if len(k.Secret) == 0 {
			return nil, fmt.Errorf("key %q has an empty secret", k.ID)
		}
		if _, dup := kr.byID[k.ID]; dup {
			return nil, fmt.Errorf("duplicate key id %q", k.ID)
		}
		kr.byID[k.ID] = k.Secret
		kr.keys = append(kr.keys, k)
	}
	return kr, nil
}

// ParseKeyring parses "kid=secret,kid2=secret2". The first entry signs.
func ParseKeyring(spec string) (*Keyring, error) {
	var keys []Key
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, secret, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("key entry %q: want kid=secret", redact(part))
		}
		keys = append(keys, Key{ID: strings.TrimSpace(id), Secret: []byte(secret)})
	}
	return NewKeyring(keys...)
}

// Active returns the signing key.
func (k *Keyring) Active() Key {
	return k.keys[0]
}

// Lookup returns the secret for kid.
func (k *Keyring) Lookup(kid string) ([]byte, bool) {
	if k == nil {
		return nil, false
	}
	s, ok := k.byID[kid]
	return s, ok
}

// Has reports whether kid is on the ring.
func (k *Keyring) Has(kid string) bool {
	if k == nil {
		return false
	}
	_, ok := k.byID[kid]
	return ok
}

// Keys returns a copy of every key on the ring.
func (k *Keyring) Keys() []Key {
	return append([]Key(nil), k.keys...)
}

// MinSecretLen returns the length of the shortest secret on the ring.
func (k *Keyring) MinSecretLen() int {
	shortest := -1
	for _, key := range k.keys {
		if shortest < 0 || len(key.Secret) < shortest {
			shortest = len(key.Secret)
		}
	}
	return shortest
}

func redact(entry string) string {
	if id, _, ok := strings.Cut(entry, "="); ok {
		return id + "=***"
	}
	if len(entry) > 4 {
		return entry[:4] + "***"
	}
	return "***"
}

// checkDisjoint fails when two rings share a key id or a secret.
func checkDisjoint(a, b *Keyring) error {
	for _, ka := range a.keys {
		for _, kb := range b.keys {
			if ka.ID == kb.ID {
				return fmt.Errorf("key id %q is used for both access and refresh tokens", ka.ID)
			}
			if string(ka.Secret) == string(kb.Secret) {
				return fmt.Errorf("keys %q and %q share a secret", ka.ID, kb.ID)
			}
		}
	}
	return nil
}
