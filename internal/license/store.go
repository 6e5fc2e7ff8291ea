package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/MasterDev782/Hosting/internal/errors"
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

// ErrAlreadyBound signals that a bind lost the race to an earlier one
// with a different pair. Callers re-check the winning record; the error
// never leaves this package.
var ErrAlreadyBound = errors.New("license already bound")

// Store is the durable record of license bindings
type Store interface {
	// Get returns the stored record for a key. A key the store has
	// never seen yields apperrors.ErrLicenseNotFound, which callers
	// treat as "not bound yet" rather than a rejection.
	Get(ctx context.Context, key string) (domain.License, error)

	// Bind records the (hardwareID, address) pair for a key. Binding is
	// atomic per key: rebinding with the identical pair is a no-op
	// success, any other pair returns the winning record alongside
	// ErrAlreadyBound.
	Bind(ctx context.Context, key, hardwareID, address string) (domain.License, error)

	// Status returns the masked binding view for a key
	Status(ctx context.Context, key string) (domain.BindingStatus, error)
}

// storeFile is the on-disk layout. The file is meant to be editable by
// an operator (provisioning and revocation happen out of band), so it
// stays plain JSON.
type storeFile struct {
	Version   int                       `json:"version"`
	UpdatedAt time.Time                 `json:"updated_at"`
	Licenses  map[string]domain.License `json:"licenses"`
}

// FileStore is a JSON file backed Store. All mutations are persisted
// atomically before they are visible to other callers.
type FileStore struct {
	mu       sync.RWMutex
	path     string
	licenses map[string]domain.License
}

// NewFileStore loads the store at path, starting empty when the file
// does not exist yet.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path:     path,
		licenses: make(map[string]domain.License),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read license store: %w", err)
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse license store: %w", err)
	}

	if file.Licenses != nil {
		s.licenses = file.Licenses
	}

	return s, nil
}

// Get implements Store
func (s *FileStore) Get(ctx context.Context, key string) (domain.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lic, exists := s.licenses[key]
	if !exists {
		return domain.License{}, apperrors.ErrLicenseNotFound
	}

	return lic, nil
}

// Bind implements Store
func (s *FileStore) Bind(ctx context.Context, key, hardwareID, address string) (domain.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lic, exists := s.licenses[key]
	if exists && lic.Bound() {
		if lic.HardwareID == hardwareID && lic.Address == address {
			return lic, nil
		}
		return lic, ErrAlreadyBound
	}

	now := time.Now().UTC()
	status := domain.LicenseStatusActive
	if exists {
		// Preserve an operator-set status on a pre-provisioned record
		status = lic.Status
	}

	bound := domain.License{
		Key:        key,
		HardwareID: hardwareID,
		Address:    address,
		Status:     status,
		BoundAt:    &now,
	}

	s.licenses[key] = bound

	if err := s.persistLocked(); err != nil {
		// Roll back so a failed write does not leave a binding that
		// would vanish on restart.
		if exists {
			s.licenses[key] = lic
		} else {
			delete(s.licenses, key)
		}
		return domain.License{}, fmt.Errorf("failed to persist binding: %w", err)
	}

	return bound, nil
}

// Status implements Store
func (s *FileStore) Status(ctx context.Context, key string) (domain.BindingStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lic, exists := s.licenses[key]
	if !exists {
		return domain.BindingStatus{}, apperrors.ErrLicenseNotFound
	}

	status := domain.BindingStatus{
		LicenseKey: MaskLicenseKey(lic.Key),
		Status:     lic.Status,
		Bound:      lic.Bound(),
		BoundAt:    lic.BoundAt,
	}
	if lic.Bound() {
		status.HardwareID = MaskLicenseKey(lic.HardwareID)
	}

	return status, nil
}

// persistLocked writes the store to disk. Callers must hold the write lock.
func (s *FileStore) persistLocked() error {
	file := storeFile{
		Version:   1,
		UpdatedAt: time.Now().UTC(),
		Licenses:  s.licenses,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal license store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".licenses-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write license store: %w", err)
	}

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to set store permissions: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move license store into place: %w", err)
	}

	return nil
}
