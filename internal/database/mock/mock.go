// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sort"
	"sync"

	"github.com/kozaktomas/face-search/internal/database"
	"github.com/kozaktomas/face-search/internal/names"
)

// MockPersonRepository is an in-memory implementation of database.PersonWriter.
// FindSimilar applies the same filtering and ordering the SQL backends do.
type MockPersonRepository struct {
	mu     sync.RWMutex
	people map[int64]*database.StoredPerson

	// Error injection
	GetError         error
	HasError         error
	ListError        error
	FindByNameError  error
	CountError       error
	StatsError       error
	FindSimilarError error
	SaveError        error
	DeleteError      error

	// LastQuery records the most recent FindSimilar argument.
	LastQuery *database.SimilarityQuery
}

// NewMockPersonRepository creates a new mock people repository
func NewMockPersonRepository() *MockPersonRepository {
	return &MockPersonRepository{
		people: make(map[int64]*database.StoredPerson),
	}
}

// AddPerson adds a person to the mock store, replacing any with the same id
func (m *MockPersonRepository) AddPerson(p database.StoredPerson) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.NameNormalized == "" {
		p.NameNormalized = names.Normalize(p.Name)
	}
	m.people[p.ID] = &p
}

// IDs returns the stored ids in ascending order
func (m *MockPersonRepository) IDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.people))
	for id := range m.people {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Get retrieves a person by id
func (m *MockPersonRepository) Get(ctx context.Context, id int64) (*database.StoredPerson, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.people[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// Has checks if a person exists
func (m *MockPersonRepository) Has(ctx context.Context, id int64) (bool, error) {
	if m.HasError != nil {
		return false, m.HasError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.people[id]
	return ok, nil
}

// List returns the first limit people ordered by id
func (m *MockPersonRepository) List(ctx context.Context, limit int) ([]database.PersonImage, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	ids := m.IDs()
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.PersonImage
	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		out = append(out, database.PersonImage{ID: id, Image: m.people[id].Image})
	}
	return out, nil
}

// FindByName returns people with a matching normalized name
func (m *MockPersonRepository) FindByName(ctx context.Context, name string, limit int) ([]database.StoredPerson, error) {
	if m.FindByNameError != nil {
		return nil, m.FindByNameError
	}
	want := names.Normalize(name)
	ids := m.IDs()
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.StoredPerson
	for _, id := range ids {
		if p := m.people[id]; p.NameNormalized == want {
			out = append(out, *p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Popularity > out[j].Popularity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the total number of people
func (m *MockPersonRepository) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.people), nil
}

// Stats returns row counts by populated columns
func (m *MockPersonRepository) Stats(ctx context.Context) (*database.Stats, error) {
	if m.StatsError != nil {
		return nil, m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s database.Stats
	for _, p := range m.people {
		s.Total++
		if p.HasEmbedding() {
			s.WithEmbedding++
		}
		if p.Birthday != nil {
			s.WithBirthday++
		}
		if len(p.Image) > 0 {
			s.WithImage++
		}
		if p.HasEmbedding() && p.Birthday != nil {
			s.Searchable++
		}
	}
	return &s, nil
}

// FindSimilar filters by age window and strict distance threshold, orders by
// ascending distance and truncates to the limit
func (m *MockPersonRepository) FindSimilar(ctx context.Context, q database.SimilarityQuery) ([]database.Match, error) {
	if m.FindSimilarError != nil {
		return nil, m.FindSimilarError
	}
	if err := database.ValidateEmbedding(q.Embedding); err != nil {
		return nil, err
	}
	m.mu.Lock()
	qc := q
	m.LastQuery = &qc
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []database.Match
	for _, p := range m.people {
		if !p.HasEmbedding() || !q.Window.Contains(p.Birthday) {
			continue
		}
		d := database.Distance(q.Metric, p.Embedding, q.Embedding)
		if d >= q.MaxDistance {
			continue
		}
		out = append(out, database.Match{ID: p.ID, Name: p.Name, Image: p.Image, Distance: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Save inserts a person unless the id already exists
func (m *MockPersonRepository) Save(ctx context.Context, p *database.StoredPerson) (bool, error) {
	if m.SaveError != nil {
		return false, m.SaveError
	}
	if err := database.ValidateEmbedding(p.Embedding); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.people[p.ID]; ok {
		return false, nil
	}
	cp := *p
	if cp.NameNormalized == "" {
		cp.NameNormalized = names.Normalize(cp.Name)
	}
	m.people[p.ID] = &cp
	return true, nil
}

// Delete removes a person by id
func (m *MockPersonRepository) Delete(ctx context.Context, id int64) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.people[id]; !ok {
		return database.ErrNotFound
	}
	delete(m.people, id)
	return nil
}
