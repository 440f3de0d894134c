// Package secrets resolves secret references from the runtime environment.
//
// Workflow code never sees raw token values in config; config carries secret
// IDs and a Provider turns them into values at startup.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves a secret ID to its value.
type Provider interface {
	Get(ctx context.Context, id string) (string, error)
}

// FromEnv resolves secret IDs as environment variable names.
func FromEnv() Provider { return envProvider{} }

type envProvider struct{}

func (envProvider) Get(_ context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("secrets: empty secret id")
	}
	v, ok := os.LookupEnv(id)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("secrets: %s is not set", id)
	}
	return v, nil
}

// FromDir resolves secret IDs as file names under dir (one secret per file,
// trailing whitespace trimmed). This matches mounted-secret layouts.
func FromDir(dir string) Provider { return dirProvider{dir: dir} }

type dirProvider struct{ dir string }

func (p dirProvider) Get(_ context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.New("secrets: empty secret id")
	}
	// Reject ids that escape the secrets directory.
	if id != filepath.Base(id) {
		return "", fmt.Errorf("secrets: invalid secret id %q", id)
	}
	data, err := os.ReadFile(filepath.Join(p.dir, id))
	if err != nil {
		return "", fmt.Errorf("secrets: read %s: %w", id, err)
	}
	v := strings.TrimRight(string(data), "\r\n \t")
	if v == "" {
		return "", fmt.Errorf("secrets: %s is empty", id)
	}
	return v, nil
}
