package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// session is the instance opened by the last `open` command.
type session struct {
	InstanceID  string    `json:"instance_id"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

var errNoSession = errors.New("no open instance (run `uirt open -app <id>` first)")

// sessionStore keeps one session in a 0600 JSON file.
type sessionStore struct{ path string }

// defaultStore resolves $XDG_CONFIG_HOME/uiruntime/instance.json or its OS equivalent.
func defaultStore() (sessionStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return sessionStore{}, fmt.Errorf("config dir: %w", err)
	}
	return sessionStore{path: filepath.Join(dir, "uiruntime", "instance.json")}, nil
}

// save writes through a temp file so a crash never leaves half a token behind.
func (s sessionStore) save(sess session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// load returns the saved session if it is still valid at now.
func (s sessionStore) load(now time.Time) (session, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return session{}, errNoSession
	}
	if err != nil {
		return session{}, err
	}
	var sess session
	if err := json.Unmarshal(b, &sess); err != nil {
		return session{}, fmt.Errorf("session file %s: %w", s.path, err)
	}
	if sess.AccessToken == "" || !now.Before(sess.ExpiresAt) {
		return session{}, errNoSession
	}
	return sess, nil
}

func (s sessionStore) clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
