package memory

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/airbusgeo/wcs-remote-service/common"
	db "github.com/airbusgeo/wcs-remote-service/interface/database"
)

// state is the content of the database
type state struct {
	lastHarvesterID int
	harvesters      map[int]common.HarvesterRecord
	services        map[string]common.Service
	resources       map[int]map[string]db.Resource
}

func newState() *state {
	return &state{
		harvesters: map[int]common.HarvesterRecord{},
		services:   map[string]common.Service{},
		resources:  map[int]map[string]db.Resource{},
	}
}

func (s *state) clone() *state {
	c := newState()
	c.lastHarvesterID = s.lastHarvesterID
	for k, v := range s.harvesters {
		c.harvesters[k] = v
	}
	for k, v := range s.services {
		c.services[k] = v
	}
	for k, rs := range s.resources {
		c.resources[k] = make(map[string]db.Resource, len(rs))
		for id, r := range rs {
			c.resources[k][id] = r
		}
	}
	return c
}

// Backend implements HarvestBackend
type Backend struct {
	mu   *sync.RWMutex
	txmu *sync.Mutex
	st   *state
}

// BackendDB implements HarvestDBBackend
type BackendDB struct {
	Backend
}

// BackendTx implements HarvestTxBackend.
// The transaction works on a copy of the database, that replaces the database on commit.
// Only one transaction or write is in progress at a time.
type BackendTx struct {
	Backend
	db   *BackendDB
	done bool
}

// New creates an empty database kept in memory, for tests and one-shot runs
func New() *BackendDB {
	return &BackendDB{Backend: Backend{mu: &sync.RWMutex{}, txmu: &sync.Mutex{}, st: newState()}}
}

// StartTransaction implements HarvestDBBackend
func (bdb *BackendDB) StartTransaction(ctx context.Context) (db.HarvestTxBackend, error) {
	bdb.txmu.Lock()
	bdb.mu.RLock()
	defer bdb.mu.RUnlock()
	return &BackendTx{Backend: Backend{st: bdb.st.clone()}, db: bdb}, nil
}

// Commit implements HarvestTxBackend
func (btx *BackendTx) Commit() error {
	if btx.done {
		return nil
	}
	btx.db.mu.Lock()
	btx.db.st = btx.st
	btx.db.mu.Unlock()
	btx.done = true
	btx.db.txmu.Unlock()
	return nil
}

// Rollback implements HarvestTxBackend
func (btx *BackendTx) Rollback() error {
	if !btx.done {
		btx.done = true
		btx.db.txmu.Unlock()
	}
	return nil
}

func (b *Backend) rlock() func() {
	if b.mu == nil {
		return func() {}
	}
	b.mu.RLock()
	return b.mu.RUnlock
}

func (b *Backend) lock() func() {
	if b.mu == nil {
		return func() {}
	}
	b.txmu.Lock()
	b.mu.Lock()
	return func() {
		b.mu.Unlock()
		b.txmu.Unlock()
	}
}

// CreateHarvester implements HarvestBackend
func (b *Backend) CreateHarvester(ctx context.Context, h common.HarvesterRecord) (int, error) {
	defer b.lock()()
	b.st.lastHarvesterID++
	h.ID = b.st.lastHarvesterID
	if h.Config == nil {
		h.Config = map[string]interface{}{}
	}
	b.st.harvesters[h.ID] = h
	return h.ID, nil
}

// Harvester implements HarvestBackend
func (b *Backend) Harvester(ctx context.Context, id int) (common.HarvesterRecord, error) {
	defer b.rlock()()
	h, ok := b.st.harvesters[id]
	if !ok {
		return h, db.ErrNotFound{Type: "harvester", ID: strconv.Itoa(id)}
	}
	return h, nil
}

// UpdateHarvesterAvailability implements HarvestBackend
func (b *Backend) UpdateHarvesterAvailability(ctx context.Context, id int, available bool, checked time.Time) error {
	defer b.lock()()
	h, ok := b.st.harvesters[id]
	if !ok {
		return db.ErrNotFound{Type: "harvester", ID: strconv.Itoa(id)}
	}
	h.Available = available
	h.LastChecked = &checked
	b.st.harvesters[id] = h
	return nil
}

// CreateService implements HarvestBackend
func (b *Backend) CreateService(ctx context.Context, s common.Service) error {
	defer b.lock()()
	for _, other := range b.st.services {
		if other.UUID == s.UUID || other.Name == s.Name || other.BaseURL == s.BaseURL {
			return db.ErrAlreadyExists{Type: "service", ID: s.Name}
		}
	}
	if _, ok := b.st.harvesters[s.HarvesterID]; !ok {
		return db.ErrNotFound{Type: "harvester", ID: strconv.Itoa(s.HarvesterID)}
	}
	if s.Keywords == nil {
		s.Keywords = []string{}
	}
	b.st.services[s.UUID] = s
	return nil
}

func (b *Backend) service(id string) (common.Service, bool) {
	if s, ok := b.st.services[id]; ok {
		return s, true
	}
	for _, s := range b.st.services {
		if s.Name == id {
			return s, true
		}
	}
	return common.Service{}, false
}

// Service implements HarvestBackend
func (b *Backend) Service(ctx context.Context, id string) (common.Service, error) {
	defer b.rlock()()
	s, ok := b.service(id)
	if !ok {
		return s, db.ErrNotFound{Type: "service", ID: id}
	}
	return s, nil
}

// Services implements HarvestBackend
func (b *Backend) Services(ctx context.Context, pattern string, page, limit int) ([]common.Service, error) {
	defer b.rlock()()
	match := matcher(pattern)
	services := []common.Service{}
	for _, s := range b.st.services {
		if match(s.Name) {
			services = append(services, s)
		}
	}
	sort.Slice(services, func(i, j int) bool { return services[i].Name < services[j].Name })
	return paginate(services, page, limit), nil
}

// DeleteService implements HarvestBackend
func (b *Backend) DeleteService(ctx context.Context, id string) error {
	defer b.lock()()
	s, ok := b.service(id)
	if !ok {
		return db.ErrNotFound{Type: "service", ID: id}
	}
	delete(b.st.services, s.UUID)
	delete(b.st.harvesters, s.HarvesterID)
	delete(b.st.resources, s.HarvesterID)
	return nil
}

// Resources implements HarvestBackend
func (b *Backend) Resources(ctx context.Context, harvesterID int, states []common.ResourceState, page, limit int) ([]db.Resource, error) {
	defer b.rlock()()
	resources := []db.Resource{}
	for _, r := range b.st.resources[harvesterID] {
		if len(states) == 0 || hasState(states, r.State) {
			resources = append(resources, r)
		}
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].Identifier < resources[j].Identifier })
	return paginate(resources, page, limit), nil
}

// Resource implements HarvestBackend
func (b *Backend) Resource(ctx context.Context, harvesterID int, identifier string) (db.Resource, error) {
	defer b.rlock()()
	r, ok := b.st.resources[harvesterID][identifier]
	if !ok {
		return r, db.ErrNotFound{Type: "resource", ID: identifier}
	}
	return r, nil
}

// UpsertResource implements HarvestBackend
func (b *Backend) UpsertResource(ctx context.Context, harvesterID int, c common.Coverage, state common.ResourceState) error {
	defer b.lock()()
	if _, ok := b.st.harvesters[harvesterID]; !ok {
		return db.ErrNotFound{Type: "harvester", ID: strconv.Itoa(harvesterID)}
	}
	rs := b.st.resources[harvesterID]
	if rs == nil {
		rs = map[string]db.Resource{}
		b.st.resources[harvesterID] = rs
	}
	r := rs[c.Identifier]
	r.Coverage = c
	r.HarvesterID = harvesterID
	r.State = state
	r.LastUpdated = time.Now().UTC()
	rs[c.Identifier] = r
	return nil
}

// SetResourcesState implements HarvestBackend
func (b *Backend) SetResourcesState(ctx context.Context, harvesterID int, identifiers []string, state common.ResourceState) error {
	defer b.lock()()
	rs := b.st.resources[harvesterID]
	for _, id := range identifiers {
		if r, ok := rs[id]; ok {
			r.State = state
			r.LastUpdated = time.Now().UTC()
			rs[id] = r
		}
	}
	return nil
}

// SetResourceDescriptor implements HarvestBackend
func (b *Backend) SetResourceDescriptor(ctx context.Context, harvesterID int, identifier string, descriptor common.ResourceDescriptor) error {
	defer b.lock()()
	r, ok := b.st.resources[harvesterID][identifier]
	if !ok {
		return db.ErrNotFound{Type: "resource", ID: identifier}
	}
	r.UUID = descriptor.UUID
	r.Descriptor = &descriptor
	b.st.resources[harvesterID][identifier] = r
	return nil
}

// DeleteResources implements HarvestBackend
func (b *Backend) DeleteResources(ctx context.Context, harvesterID int, identifiers []string) error {
	defer b.lock()()
	for _, id := range identifiers {
		delete(b.st.resources[harvesterID], id)
	}
	return nil
}

func hasState(states []common.ResourceState, s common.ResourceState) bool {
	for _, state := range states {
		if state == s {
			return true
		}
	}
	return false
}

// matcher returns a function matching the pattern
// * and ? wildcards, (?i) suffix for case-insensitivity
func matcher(pattern string) func(string) bool {
	if pattern == "" {
		return func(string) bool { return true }
	}
	prefix := ""
	if strings.HasSuffix(pattern, "(?i)") {
		pattern, prefix = strings.TrimSuffix(pattern, "(?i)"), "(?i)"
	}
	expr := regexp.QuoteMeta(pattern)
	expr = strings.ReplaceAll(strings.ReplaceAll(expr, `\*`, ".*"), `\?`, ".")
	re := regexp.MustCompile(prefix + "^" + expr + "$")
	return re.MatchString
}

func paginate[T any](s []T, page, limit int) []T {
	if limit <= 0 {
		return s
	}
	start := page * limit
	if start >= len(s) {
		return s[:0]
	}
	end := start + limit
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}
