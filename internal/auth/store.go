package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTokenFile is where the access token is kept between runs.
const DefaultTokenFile = "db_token.json"

// TokenStore persists the last access token.
type TokenStore interface {
	// Load returns the stored token, or nil when there is none.
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
}

// tokenFile is the on-disk format: expires_at is unix seconds and may carry
// a fractional part.
type tokenFile struct {
	AccessToken string  `json:"access_token"`
	ExpiresAt   float64 `json:"expires_at"`
}

// FileTokenStore keeps the token in a JSON file.
type FileTokenStore struct {
	Path string
}

func (s FileTokenStore) path() string {
	if s.Path == "" {
		return DefaultTokenFile
	}
	return s.Path
}

func (s FileTokenStore) Load() (*oauth2.Token, error) {
	b, err := os.ReadFile(s.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path(), err)
	}
	sec, frac := math.Modf(tf.ExpiresAt)
	return &oauth2.Token{
		AccessToken: tf.AccessToken,
		Expiry:      time.Unix(int64(sec), int64(frac*1e9)),
	}, nil
}

func (s FileTokenStore) Save(tok *oauth2.Token) error {
	tf := tokenFile{
		AccessToken: tok.AccessToken,
		ExpiresAt:   float64(tok.Expiry.UnixNano()) / 1e9,
	}
	b, err := json.Marshal(tf)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path()); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path(), b, 0o600)
}

// MemoryTokenStore keeps the token for the life of the process.
type MemoryTokenStore struct {
	mu  sync.Mutex
	tok *oauth2.Token
}

func (s *MemoryTokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tok, nil
}

func (s *MemoryTokenStore) Save(tok *oauth2.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tok = tok
	return nil
}
