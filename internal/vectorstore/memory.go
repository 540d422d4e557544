package vectorstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/karthik-sk/codesearch-core/pkg/models"
)

// MemoryStore is an in-process Store implementation used by tests and by
// the stub embedding pipeline's smoke path. It implements the same
// semantics as QdrantStore (dimension pinning, filter matching, cosine
// search) without a network dependency.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memCollection
}

type memCollection struct {
	dim    int
	points map[string]models.Point
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memCollection)}
}

func (m *MemoryStore) CollectionExists(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.collections[name]
	return ok, nil
}

func (m *MemoryStore) CreateCollection(_ context.Context, name string, dim int, _ Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[name]; ok {
		if c.dim != dim {
			return &DimensionMismatchError{Collection: name, Existing: c.dim, Requested: dim}
		}
		return nil
	}
	m.collections[name] = &memCollection{dim: dim, points: make(map[string]models.Point)}
	return nil
}

func (m *MemoryStore) EnsurePayloadIndex(context.Context, string, string, PayloadIndexKind) error {
	return nil
}

func (m *MemoryStore) Upsert(_ context.Context, name string, points []models.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{dim: len(points[0].Vector), points: make(map[string]models.Point)}
		m.collections[name] = c
	}
	for _, p := range points {
		if len(p.Vector) != c.dim {
			return &DimensionMismatchError{Collection: name, Existing: c.dim, Requested: len(p.Vector)}
		}
		c.points[p.ID] = p
	}
	return nil
}

func (m *MemoryStore) DeleteByFilter(_ context.Context, name string, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return nil
	}
	for id, p := range c.points {
		if matches(p.Payload, filter) {
			delete(c.points, id)
		}
	}
	return nil
}

func (m *MemoryStore) DeletePoints(_ context.Context, name string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(c.points, id)
	}
	return nil
}

func (m *MemoryStore) Scroll(_ context.Context, name string, filter Filter, pageLimit uint32, cursor string) (ScrollPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return ScrollPage{}, nil
	}
	ids := make([]string, 0, len(c.points))
	for id := range c.points {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id > cursor {
				start = i
				break
			}
			start = i + 1
		}
	}
	end := start + int(pageLimit)
	if pageLimit == 0 || end > len(ids) {
		end = len(ids)
	}

	page := ScrollPage{}
	for _, id := range ids[start:end] {
		p := c.points[id]
		if matches(p.Payload, filter) {
			page.Points = append(page.Points, p)
		}
	}
	if end < len(ids) {
		page.Cursor = ids[end-1]
	}
	return page, nil
}

func (m *MemoryStore) Search(_ context.Context, name string, vector []float32, k uint64, filter Filter) ([]models.ScoredPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, nil
	}
	var hits []models.ScoredPoint
	for _, p := range c.points {
		if !matches(p.Payload, filter) {
			continue
		}
		hits = append(hits, models.ScoredPoint{
			ID:             p.ID,
			Score:          cosine(vector, p.Vector),
			Payload:        p.Payload,
			CollectionName: name,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if uint64(len(hits)) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryStore) DeleteCollection(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, name)
	return nil
}

func (m *MemoryStore) HealthCheck(context.Context) error { return nil }

func matches(p models.Payload, f Filter) bool {
	for _, c := range f.Must {
		v := fieldValue(p, c.Key)
		if c.MatchKeyword != "" && v != c.MatchKeyword {
			return false
		}
		if len(c.MatchAny) > 0 {
			found := false
			for _, want := range c.MatchAny {
				if v == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func fieldValue(p models.Payload, key string) string {
	switch key {
	case "file_path":
		return p.FilePath
	case "language":
		return p.Language
	case "element_type":
		return p.ElementType
	case "branch":
		return p.Branch
	case "commit_hash":
		return p.CommitHash
	case "tenant_id":
		return p.TenantID
	default:
		return ""
	}
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var _ Store = (*MemoryStore)(nil)
