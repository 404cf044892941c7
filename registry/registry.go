package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/airbusgeo/wcs-remote-service/common"
)

// ServiceHandler describes a remote service of a given type
type ServiceHandler interface {
	URL() string
	Name() string
	ServiceType() string
	HarvesterType() string
	Probe(ctx context.Context) (common.Endpoint, error)
	ListCoverages(ctx context.Context) ([]common.Coverage, error)
	Keywords(ctx context.Context) ([]string, error)
	NewServiceRecord(ctx context.Context, owner string) (common.Service, common.HarvesterRecord, error)
}

// Harvester pulls the resources of a remote service
type Harvester interface {
	AllowsCopyingResources() bool
	CheckAvailability(ctx context.Context, timeout time.Duration) bool
	NumAvailableResources(ctx context.Context) (int, error)
	ListResources(ctx context.Context, offset int) ([]common.BriefResource, error)
	GetResource(ctx context.Context, identifier, existingUUID string) (*common.ResourceDescriptor, error)
	Harvest(ctx context.Context, known []common.Coverage) (common.HarvestResult, error)
}

// HandlerFactory creates the handler of the service at url.
// harvesterConfig is the type-specific configuration of the harvester created with the service.
type HandlerFactory func(url string, harvesterConfig map[string]interface{}) ServiceHandler

// HarvesterFactory creates a harvester from its host record
type HarvesterFactory func(record common.HarvesterRecord) (Harvester, error)

// ServiceTypeEntry describes a service type
type ServiceTypeEntry struct {
	Label      string
	OWS        bool
	NewHandler HandlerFactory
}

// ErrUnknownType is returned when a service type, a module or a harvester type is not registered
type ErrUnknownType struct {
	Kind string
	Name string
}

func (e ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown %s: %s", e.Kind, e.Name)
}

// Registry maps the names of the service types and of the harvester types to their implementations.
// Service types are registered by modules, as listed in the host settings.
type Registry struct {
	mu           sync.RWMutex
	modules      map[string][]string
	serviceTypes map[string]ServiceTypeEntry
	harvesters   map[string]HarvesterFactory
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		modules:      map[string][]string{},
		serviceTypes: map[string]ServiceTypeEntry{},
		harvesters:   map[string]HarvesterFactory{},
	}
}

// RegisterModule registers the service types of a module.
// Panics if the module or one of the service types is already registered.
func (r *Registry) RegisterModule(module string, serviceTypes map[string]ServiceTypeEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[module]; exists {
		panic(fmt.Sprintf("service type module already registered: %s", module))
	}
	names := make([]string, 0, len(serviceTypes))
	for name, entry := range serviceTypes {
		if _, exists := r.serviceTypes[name]; exists {
			panic(fmt.Sprintf("service type already registered: %s", name))
		}
		r.serviceTypes[name] = entry
		names = append(names, name)
	}
	sort.Strings(names)
	r.modules[module] = names
}

// RegisterHarvester registers a harvester type.
// Panics if the harvester type is already registered.
func (r *Registry) RegisterHarvester(harvesterType string, factory HarvesterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.harvesters[harvesterType]; exists {
		panic(fmt.Sprintf("harvester type already registered: %s", harvesterType))
	}
	r.harvesters[harvesterType] = factory
}

// ServiceType returns the entry of the service type
func (r *Registry) ServiceType(name string) (ServiceTypeEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.serviceTypes[name]
	return entry, ok
}

// ServiceTypes returns the sorted names of the registered service types
func (r *Registry) ServiceTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.serviceTypes)
}

// HarvesterTypes returns the sorted names of the registered harvester types
func (r *Registry) HarvesterTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.harvesters)
}

// NewHandler creates the handler of a service
func (r *Registry) NewHandler(serviceType, url string, harvesterConfig map[string]interface{}) (ServiceHandler, error) {
	entry, ok := r.ServiceType(serviceType)
	if !ok {
		return nil, ErrUnknownType{Kind: "service type", Name: serviceType}
	}
	return entry.NewHandler(url, harvesterConfig), nil
}

// NewHarvester creates the harvester described by a host record
func (r *Registry) NewHarvester(record common.HarvesterRecord) (Harvester, error) {
	r.mu.RLock()
	factory, ok := r.harvesters[record.HarvesterType]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownType{Kind: "harvester type", Name: record.HarvesterType}
	}
	return factory(record)
}

// Enable returns a registry restricted to the given service type modules and harvester types,
// as listed in the host settings. An unknown name is an error.
func (r *Registry) Enable(modules, harvesterTypes []string) (*Registry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enabled := New()
	for _, module := range modules {
		names, ok := r.modules[module]
		if !ok {
			return nil, ErrUnknownType{Kind: "service type module", Name: module}
		}
		if _, exists := enabled.modules[module]; exists {
			continue
		}
		entries := map[string]ServiceTypeEntry{}
		for _, name := range names {
			entries[name] = r.serviceTypes[name]
		}
		enabled.RegisterModule(module, entries)
	}
	for _, harvesterType := range harvesterTypes {
		factory, ok := r.harvesters[harvesterType]
		if !ok {
			return nil, ErrUnknownType{Kind: "harvester type", Name: harvesterType}
		}
		if _, exists := enabled.harvesters[harvesterType]; exists {
			continue
		}
		enabled.RegisterHarvester(harvesterType, factory)
	}
	return enabled, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
