package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/repository/storage"
)

// MockIconRepository keeps icons in memory with the same workspace key
// scoping as the S3 repository
type MockIconRepository struct {
	mu      sync.Mutex
	Objects map[string][]byte

	PutErr error
}

var _ storage.IconRepository = (*MockIconRepository)(nil)

// NewMockIconRepository creates a new MockIconRepository
func NewMockIconRepository() *MockIconRepository {
	return &MockIconRepository{Objects: make(map[string][]byte)}
}

// Seed stores an object under an explicit key
func (m *MockIconRepository) Seed(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[key] = data
}

// Put stores the icon under a fresh key of the workspace
func (m *MockIconRepository) Put(ctx context.Context, workspaceID int32, icon []byte) (string, error) {
	if m.PutErr != nil {
		return "", m.PutErr
	}
	key := storage.NewIconKey(workspaceID)
	m.Seed(key, icon)
	return key, nil
}

// Remove deletes an icon of the workspace
func (m *MockIconRepository) Remove(ctx context.Context, workspaceID int32, key string) error {
	if !storage.OwnsIconKey(workspaceID, key) {
		return storage.ErrIconNotOwned
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, key)
	return nil
}

// SignedURL returns a fake signed URL for an icon of the workspace
func (m *MockIconRepository) SignedURL(ctx context.Context, workspaceID int32, key string, expiry time.Duration) (string, error) {
	if !storage.OwnsIconKey(workspaceID, key) {
		return "", storage.ErrIconNotOwned
	}
	return fmt.Sprintf("https://icons.test/%s?expires=%d", key, int(expiry.Seconds())), nil
}

// Has reports whether key is stored
func (m *MockIconRepository) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Objects[key]
	return ok
}

// Count returns the number of stored objects
func (m *MockIconRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Objects)
}
