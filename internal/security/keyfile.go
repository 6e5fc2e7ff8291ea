package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SealKeyFile seals key material to path. The file is written atomically
// with owner-only permissions since it guards the relay service key.
func SealKeyFile(path string, key, passphrase []byte) error {
	payload, err := Seal(key, passphrase, nil)
	if err != nil {
		return fmt.Errorf("failed to seal key: %w", err)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sealed key: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".sealkey-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write sealed key: %w", err)
	}

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set key file permissions: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move sealed key into place: %w", err)
	}

	return nil
}

// OpenKeyFile reads and opens a sealed key file
func OpenKeyFile(path string, passphrase []byte) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sealed key file: %w", err)
	}

	var payload EncryptedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse sealed key file: %w", err)
	}

	key, err := Open(&payload, passphrase, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed key file: %w", err)
	}

	return key, nil
}
