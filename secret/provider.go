package secret

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// EnvProvider resolves a reference as an environment variable name.
type EnvProvider struct{}

func (EnvProvider) Name() string { return "env" }

func (EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, ref)
	}
	return v, nil
}

func (EnvProvider) Close() error { return nil }

// FileProvider reads a secret from a file under Dir, the way container
// platforms mount them. Trailing whitespace is trimmed. The file is read on
// every call, so rotated secrets take effect on the next resolution.
type FileProvider struct {
	Dir string
}

// DefaultSecretDir is where FileProvider looks when Dir is empty.
const DefaultSecretDir = "/run/secrets"

func (p *FileProvider) Name() string { return "file" }

func (p *FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	dir := p.Dir
	if dir == "" {
		dir = DefaultSecretDir
	}
	name := filepath.Clean(ref)
	if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q escapes %s", ErrInvalidRef, ref, dir)
	}

	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("read secret %q: %w", ref, err)
	}
	return strings.TrimRight(string(b), " \t\r\n"), nil
}

func (p *FileProvider) Close() error { return nil }
