package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-redis/redis/v8"
)

// ErrNoCredential is returned by Load when nothing is persisted.
var ErrNoCredential = errors.New("session: no stored credential")

// CredentialKey is the fixed name the token is persisted under.
const CredentialKey = "token"

// CredentialStore persists the bearer token across process restarts.
// It is written only by Login/Logout and read only by Bootstrap.
type CredentialStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Delete(ctx context.Context) error
}

// FileCredentialStore keeps the token in a small JSON file readable only by
// the current user.
type FileCredentialStore struct {
	path string
}

// NewFileCredentialStore returns a store backed by path.
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// DefaultCredentialPath returns the per-user credential location.
func DefaultCredentialPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "vitalsops", "credential.json"), nil
}

func (f *FileCredentialStore) Load(_ context.Context) (string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("read credential: %w", err)
	}
	var doc map[string]string
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("decode credential: %w", err)
	}
	token := doc[CredentialKey]
	if token == "" {
		return "", ErrNoCredential
	}
	return token, nil
}

func (f *FileCredentialStore) Save(_ context.Context, token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	data, err := json.Marshal(map[string]string{CredentialKey: token})
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credential: %w", err)
	}
	return os.Rename(tmp, f.path)
}

func (f *FileCredentialStore) Delete(_ context.Context) error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential: %w", err)
	}
	return nil
}

// RedisCredentialStore shares the token between consoles on one host through
// Redis.
type RedisCredentialStore struct {
	client *redis.Client
	key    string
}

// NewRedisCredentialStore stores the token under prefix + ":" + CredentialKey.
func NewRedisCredentialStore(client *redis.Client, prefix string) *RedisCredentialStore {
	if prefix == "" {
		prefix = "vitalsops"
	}
	return &RedisCredentialStore{client: client, key: prefix + ":" + CredentialKey}
}

func (r *RedisCredentialStore) Load(ctx context.Context) (string, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("redis get credential: %w", err)
	}
	if val == "" {
		return "", ErrNoCredential
	}
	return val, nil
}

func (r *RedisCredentialStore) Save(ctx context.Context, token string) error {
	return r.client.Set(ctx, r.key, token, 0).Err()
}

func (r *RedisCredentialStore) Delete(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
