package database

import (
	"context"
	"fmt"
	"sync"
)

var (
	backendMu       sync.RWMutex
	backendName     string
	personReader    func() PersonReader
	personWriter    func() PersonWriter
	migrationLister MigrationLister
)

// RegisterBackend registers the repository constructors of a storage backend.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(name string, reader func() PersonReader, writer func() PersonWriter) {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendName = name
	personReader = reader
	personWriter = writer
}

// RegisterMigrationLister registers the schema migration lister of the active backend.
func RegisterMigrationLister(l MigrationLister) {
	backendMu.Lock()
	defer backendMu.Unlock()
	migrationLister = l
}

// ResetBackend clears all registrations.
func ResetBackend() {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendName = ""
	personReader = nil
	personWriter = nil
	migrationLister = nil
}

// IsInitialized returns whether a storage backend has been registered.
func IsInitialized() bool {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return personReader != nil
}

// BackendName returns the name of the registered backend, empty if none.
func BackendName() string {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return backendName
}

// GetPersonReader returns a PersonReader from the active backend
func GetPersonReader(ctx context.Context) (PersonReader, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if personReader == nil {
		return nil, fmt.Errorf("database backend not initialized: DATABASE_URL or DB_DSN is required")
	}
	return personReader(), nil
}

// GetPersonWriter returns a PersonWriter from the active backend
func GetPersonWriter(ctx context.Context) (PersonWriter, error) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	if personWriter == nil {
		return nil, fmt.Errorf("database backend not initialized: DATABASE_URL or DB_DSN is required")
	}
	return personWriter(), nil
}

// GetMigrationLister returns the registered migration lister, or nil if not registered.
func GetMigrationLister() MigrationLister {
	backendMu.RLock()
	defer backendMu.RUnlock()
	return migrationLister
}
