package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// StaticDirectory is a read-only in-memory Directory, typically loaded from
// a JSON snapshot at startup. Production deployments plug in a real
// directory adapter instead; this one exists for development and tests.
type StaticDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]Identity
	byID    map[string]Identity
}

func NewStaticDirectory(ids ...Identity) *StaticDirectory {
	d := &StaticDirectory{
		byEmail: make(map[string]Identity, len(ids)),
		byID:    make(map[string]Identity, len(ids)),
	}
	for _, id := range ids {
		d.Put(id)
	}
	return d
}

// LoadDirectoryFile reads a JSON array of identities from disk.
func LoadDirectoryFile(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory file: %w", err)
	}
	var ids []Identity
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("directory file %s: %w", path, err)
	}
	return NewStaticDirectory(ids...), nil
}

// Put inserts or replaces an identity. Email lookup is case-insensitive.
func (d *StaticDirectory) Put(id Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byEmail[strings.ToLower(strings.TrimSpace(id.Email))] = id
	d.byID[id.ID] = id
}

func (d *StaticDirectory) FindByEmail(_ context.Context, email string) (*Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, ErrNotFound
	}
	out := id
	return &out, nil
}

func (d *StaticDirectory) FindByID(_ context.Context, identityID string) (*Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byID[identityID]
	if !ok {
		return nil, ErrNotFound
	}
	out := id
	return &out, nil
}
