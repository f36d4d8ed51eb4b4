package biometrics

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"ember/internal/coreerr"
)

const (
	voiceprintMagic   = "EMBRVCPR"
	voiceprintVersion = 1
	keyFileName       = ".key"
)

// record is the on-disk JSON shape for one user's voiceprint (spec.md
// §4.8): header fields in the clear, nonce and ciphertext carrying the
// AEAD-sealed embedding.
type record struct {
	Magic          string    `json:"magic"`
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UtteranceCount int       `json:"utterance_count"`
	Nonce          []byte    `json:"nonce"`
	Ciphertext     []byte    `json:"ciphertext"`
}

// Store is the Voiceprint Store (spec.md §4.8): one encrypted file per
// user plus a process-local key file, serialized by an internal lock
// (spec.md §5, "Shared resources").
type Store struct {
	mu          sync.Mutex
	profilesDir string
	aead        cipher.AEAD
}

// NewStore opens (or creates) the key file under profilesDir and
// returns a ready Store. The key is a 256-bit random secret generated
// once; losing it renders existing voiceprints unreadable by design —
// the store makes no attempt at recovery (spec.md §4.8).
func NewStore(profilesDir string) (*Store, error) {
	if err := os.MkdirAll(profilesDir, 0o755); err != nil {
		return nil, err
	}

	key, err := loadOrCreateKey(profilesDir)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	return &Store{profilesDir: profilesDir, aead: aead}, nil
}

func loadOrCreateKey(dir string) ([]byte, error) {
	path := filepath.Join(dir, keyFileName)

	if data, err := os.ReadFile(path); err == nil {
		if len(data) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("biometrics: invalid key length in %s", path)
		}
		return data, nil
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *Store) profilePath(user string) string {
	return filepath.Join(s.profilesDir, user+".voiceprint")
}

// Save encrypts and persists a user's voiceprint embedding, drawing a
// fresh random nonce for this encryption (nonces are never reused with
// the same key).
func (s *Store) Save(user string, emb Embedding, utteranceCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext := embeddingToBytes(emb)

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	ciphertext := s.aead.Seal(nil, nonce, plaintext, nil)

	rec := record{
		Magic:          voiceprintMagic,
		Version:        voiceprintVersion,
		CreatedAt:      time.Now(),
		UtteranceCount: utteranceCount,
		Nonce:          nonce,
		Ciphertext:     ciphertext,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return os.WriteFile(s.profilePath(user), data, 0o600)
}

// Load decrypts and returns a user's stored embedding. Tampered or
// truncated records surface as coreerr.DecryptionFailed rather than
// being silently ignored (spec.md §4.8).
func (s *Store) Load(user string) (Embedding, *coreerr.CoreError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.profilePath(user))
	if err != nil {
		return nil, coreerr.WithField(coreerr.ModelMissing, "no voiceprint for user", "user", user)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, coreerr.New(coreerr.DecryptionFailed, "malformed voiceprint record")
	}
	if rec.Magic != voiceprintMagic || rec.Version != voiceprintVersion {
		return nil, coreerr.New(coreerr.DecryptionFailed, "unrecognized voiceprint header")
	}
	if len(rec.Nonce) != s.aead.NonceSize() {
		return nil, coreerr.New(coreerr.DecryptionFailed, "invalid nonce length")
	}

	plaintext, err := s.aead.Open(nil, rec.Nonce, rec.Ciphertext, nil)
	if err != nil {
		return nil, coreerr.New(coreerr.DecryptionFailed, "voiceprint tampered or truncated")
	}

	return embeddingFromBytes(plaintext), nil
}

// Exists reports whether a voiceprint file exists for user.
func (s *Store) Exists(user string) bool {
	_, err := os.Stat(s.profilePath(user))
	return err == nil
}

// Delete removes a user's voiceprint file.
func (s *Store) Delete(user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.Remove(s.profilePath(user))
}

// List returns every enrolled user's identifier.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.profilesDir)
	if err != nil {
		return nil, err
	}
	var users []string
	for _, e := range entries {
		name := e.Name()
		const suffix = ".voiceprint"
		if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
			users = append(users, name[:len(name)-len(suffix)])
		}
	}
	return users, nil
}

func embeddingToBytes(e Embedding) []byte {
	buf := make([]byte, len(e)*4)
	for i, v := range e {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func embeddingFromBytes(b []byte) Embedding {
	n := len(b) / 4
	out := make(Embedding, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
