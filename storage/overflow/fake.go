package overflow

import (
	"context"
	"sync"

	"github.com/jrife/tenantkv/utils/uuid"
)

var _ Store = (*FakeStore)(nil)
var _ UniqueReferences = (*FakeStore)(nil)

// FakeStore is an in-memory implementation of Store
type FakeStore struct {
	mu               sync.Mutex
	blobs            map[string][]byte
	contentAddressed bool
	// AddErr, GetErr and DeleteErr, if set, are returned
	// by the corresponding methods
	AddErr    error
	GetErr    error
	DeleteErr error
}

// NewFakeStore creates an empty FakeStore
func NewFakeStore() *FakeStore {
	return &FakeStore{blobs: map[string][]byte{}}
}

// NewContentAddressedFakeStore creates an empty FakeStore whose
// references are derived from the content, so identical blobs
// share a reference the way they do on IPFS
func NewContentAddressedFakeStore() *FakeStore {
	return &FakeStore{blobs: map[string][]byte{}, contentAddressed: true}
}

// Add implements Store.Add
func (store *FakeStore) Add(ctx context.Context, data []byte) (string, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.AddErr != nil {
		return "", store.AddErr
	}

	reference := uuid.MustUUID()

	if store.contentAddressed {
		reference = uuid.FromContent(data)
	}
	store.blobs[reference] = append([]byte{}, data...)

	return reference, nil
}

// Get implements Store.Get
func (store *FakeStore) Get(ctx context.Context, reference string) ([]byte, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.GetErr != nil {
		return nil, store.GetErr
	}

	data, ok := store.blobs[reference]

	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte{}, data...), nil
}

// Delete implements Store.Delete
func (store *FakeStore) Delete(ctx context.Context, reference string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.DeleteErr != nil {
		return store.DeleteErr
	}

	delete(store.blobs, reference)

	return nil
}

// Len returns the number of blobs held by the store
func (store *FakeStore) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()

	return len(store.blobs)
}

// UniqueReferences implements UniqueReferences.UniqueReferences
func (store *FakeStore) UniqueReferences() bool {
	return !store.contentAddressed
}

// Close implements Store.Close
func (store *FakeStore) Close() error {
	return nil
}
