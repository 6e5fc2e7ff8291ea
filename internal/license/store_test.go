package license

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/MasterDev782/Hosting/internal/errors"
	"github.com/MasterDev782/Hosting/pkg/contracts/domain"
)

func writeStoreFile(t *testing.T, path string, licenses map[string]domain.License) {
	t.Helper()
	file := storeFile{
		Version:   1,
		UpdatedAt: time.Now().UTC(),
		Licenses:  licenses,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))
}

func TestFileStoreStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "FAKE-KEY-0001")
	assert.ErrorIs(t, err, apperrors.ErrLicenseNotFound)
}

func TestFileStoreLoadsProvisionedLicenses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")
	writeStoreFile(t, path, map[string]domain.License{
		"FAKE-KEY-0001": {Key: "FAKE-KEY-0001", Status: domain.LicenseStatusActive},
		"FAKE-KEY-0002": {Key: "FAKE-KEY-0002", Status: domain.LicenseStatusRevoked},
	})

	s, err := NewFileStore(path)
	require.NoError(t, err)

	lic, err := s.Get(context.Background(), "FAKE-KEY-0001")
	require.NoError(t, err)
	assert.Equal(t, domain.LicenseStatusActive, lic.Status)
	assert.False(t, lic.Bound())

	lic, err = s.Get(context.Background(), "FAKE-KEY-0002")
	require.NoError(t, err)
	assert.Equal(t, domain.LicenseStatusRevoked, lic.Status)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestFileStoreBindPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")
	writeStoreFile(t, path, map[string]domain.License{
		"FAKE-KEY-0001": {Key: "FAKE-KEY-0001", Status: domain.LicenseStatusActive},
	})

	s, err := NewFileStore(path)
	require.NoError(t, err)

	bound, err := s.Bind(context.Background(), "FAKE-KEY-0001", "HW-01", "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, bound.Bound())
	assert.NotNil(t, bound.BoundAt)

	// The binding survives a reload from disk.
	reloaded, err := NewFileStore(path)
	require.NoError(t, err)
	lic, err := reloaded.Get(context.Background(), "FAKE-KEY-0001")
	require.NoError(t, err)
	assert.Equal(t, "HW-01", lic.HardwareID)
	assert.Equal(t, "1.2.3.4", lic.Address)
}

func TestFileStoreBindIsIdempotentForSameIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := s.Bind(ctx, "FAKE-KEY-0001", "HW-01", "1.2.3.4")
	require.NoError(t, err)

	again, err := s.Bind(ctx, "FAKE-KEY-0001", "HW-01", "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, first.BoundAt, again.BoundAt, "rebind must not refresh the binding time")
}

func TestFileStoreBindConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Bind(ctx, "FAKE-KEY-0001", "HW-01", "1.2.3.4")
	require.NoError(t, err)

	winner, err := s.Bind(ctx, "FAKE-KEY-0001", "HW-02", "5.6.7.8")
	assert.ErrorIs(t, err, ErrAlreadyBound)
	assert.Equal(t, "HW-01", winner.HardwareID, "conflict returns the winning binding")
}

func TestFileStoreBindRace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	var g errgroup.Group
	results := make([]error, 8)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, results[i] = s.Bind(ctx, "FAKE-KEY-0001", "HW-01", "1.2.3.4")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// Same identity from every goroutine: all must succeed.
	for i, err := range results {
		assert.NoError(t, err, "goroutine %d", i)
	}
}

func TestFileStoreBindRaceDistinctIdentities(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	const racers = 16
	var g errgroup.Group
	results := make([]error, racers)
	winners := make([]domain.License, racers)
	for i := 0; i < racers; i++ {
		hwid := fmt.Sprintf("HW-%02d", i)
		addr := fmt.Sprintf("10.0.0.%d", i+1)
		g.Go(func() error {
			winners[i], results[i] = s.Bind(ctx, "FAKE-KEY-0001", hwid, addr)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// Distinct identities racing one key: exactly one binds, the rest
	// observe the winner.
	var wins int
	var bound string
	for i, err := range results {
		if err == nil {
			wins++
			bound = winners[i].HardwareID
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyBound, "goroutine %d", i)
	}
	require.Equal(t, 1, wins)

	for i, err := range results {
		if err != nil {
			assert.Equal(t, bound, winners[i].HardwareID, "loser %d sees the winning binding", i)
		}
	}
}

func TestFileStoreStatusMasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Bind(ctx, "FAKE-KEY-0001", "HARDWARE-FINGERPRINT-01", "1.2.3.4")
	require.NoError(t, err)

	status, err := s.Status(ctx, "FAKE-KEY-0001")
	require.NoError(t, err)
	assert.True(t, status.Bound)
	assert.NotEqual(t, "FAKE-KEY-0001", status.LicenseKey)
	assert.NotEqual(t, "HARDWARE-FINGERPRINT-01", status.HardwareID)
	assert.Contains(t, status.LicenseKey, "****")

	_, err = s.Status(ctx, "UNKNOWN-KEY-42")
	assert.ErrorIs(t, err, apperrors.ErrLicenseNotFound)
}

func TestFileStoreFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "licenses.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = s.Bind(context.Background(), "FAKE-KEY-0001", "HW-01", "1.2.3.4")
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}
