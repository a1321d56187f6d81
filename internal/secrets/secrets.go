// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key
// name and the file contents (trimmed) are the value. Environment variables
// back up missing files.
//
// Supported key files: anthropic-api-key.
package secrets

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDir is the secrets directory relative to the working directory.
const DefaultDir = ".secrets"

const (
	// AnthropicAPIKey authenticates the Claude oracles.
	AnthropicAPIKey = "anthropic-api-key"

	anthropicEnv = "ANTHROPIC_API_KEY"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("could not read secret", "name", name, "error", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Lookup returns explicit when set, else the secret file value for key,
// else the environment variable env.
func Lookup(loaded map[string]string, key, env, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v, ok := loaded[key]; ok {
		return v
	}
	if env != "" {
		return strings.TrimSpace(os.Getenv(env))
	}
	return ""
}

// AnthropicKey resolves the Claude API key: explicit configuration first,
// then .secrets/anthropic-api-key, then ANTHROPIC_API_KEY.
func AnthropicKey(loaded map[string]string, explicit string) string {
	return Lookup(loaded, AnthropicAPIKey, anthropicEnv, explicit)
}
