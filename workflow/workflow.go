package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/airbusgeo/wcs-remote-service/common"
	db "github.com/airbusgeo/wcs-remote-service/interface/database"
	"github.com/airbusgeo/wcs-remote-service/interface/ows/wcs"
	"github.com/airbusgeo/wcs-remote-service/registry"
	"github.com/airbusgeo/wcs-remote-service/service"
	"github.com/airbusgeo/wcs-remote-service/service/log"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// activeStates are the states of the resources still advertised by the remote service
var activeStates = []common.ResourceState{common.StateADDED, common.StateUPDATED, common.StateUNCHANGED}

type Workflow struct {
	db.HarvestDBBackend
	registry       *registry.Registry
	eventPublisher messaging.Publisher
	parallelism    int
	defaultOwner   string
}

// NewWorkflow creates a workflow harvesting the services stored in db with the harvesters of the registry.
// eventPublisher [optional] is notified each time a service is harvested
// parallelism is the maximum number of services harvested at the same time by HarvestAll
func NewWorkflow(db db.HarvestDBBackend, registry *registry.Registry, eventPublisher messaging.Publisher, parallelism int, defaultOwner string) *Workflow {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Workflow{
		HarvestDBBackend: db,
		registry:         registry,
		eventPublisher:   eventPublisher,
		parallelism:      parallelism,
		defaultOwner:     defaultOwner,
	}
}

// ServiceType describes a service type and the harvester types that are enabled
type ServiceType struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	OWS   bool   `json:"ows"`
}

// Types returns the enabled service types and harvester types
func (wf *Workflow) Types() ([]ServiceType, []string) {
	types := []ServiceType{}
	for _, name := range wf.registry.ServiceTypes() {
		entry, _ := wf.registry.ServiceType(name)
		types = append(types, ServiceType{Name: name, Label: entry.Label, OWS: entry.OWS})
	}
	return types, wf.registry.HarvesterTypes()
}

// RegisterService validates the remote service, stores it with its harvester
// and harvests it if it is available.
// owner [optional] defaults to the default owner of the workflow
func (wf *Workflow) RegisterService(ctx context.Context, serviceType, url, owner string, harvesterConfig map[string]interface{}) (common.Service, error) {
	ctx = log.With(ctx, "url", url)
	if owner == "" {
		owner = wf.defaultOwner
	}
	handler, err := wf.registry.NewHandler(serviceType, url, harvesterConfig)
	if err != nil {
		return common.Service{}, fmt.Errorf("RegisterService.%w", err)
	}
	if _, err := handler.Probe(ctx); err != nil {
		return common.Service{}, fmt.Errorf("RegisterService.Probe: %w", err)
	}
	srv, record, err := handler.NewServiceRecord(ctx, owner)
	if err != nil {
		return common.Service{}, fmt.Errorf("RegisterService.NewServiceRecord: %w", err)
	}
	// Fail early if the configuration of the harvester is invalid
	if _, err := wf.registry.NewHarvester(record); err != nil {
		return common.Service{}, fmt.Errorf("RegisterService.NewHarvester: %w", err)
	}

	err = db.UnitOfWork(ctx, wf, func(tx db.HarvestTxBackend) error {
		if record.ID, err = tx.CreateHarvester(ctx, record); err != nil {
			return err
		}
		srv.HarvesterID = record.ID
		return tx.CreateService(ctx, srv)
	})
	if err != nil {
		return common.Service{}, fmt.Errorf("RegisterService.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("service %s registered (harvester %d)", srv.Name, srv.HarvesterID)

	h, err := wf.registry.NewHarvester(record)
	if err != nil {
		return srv, fmt.Errorf("RegisterService.NewHarvester: %w", err)
	}
	available := h.CheckAvailability(ctx, 0)
	if err := wf.UpdateHarvesterAvailability(ctx, record.ID, available, time.Now().UTC()); err != nil {
		return srv, fmt.Errorf("RegisterService.%w", err)
	}
	if available {
		if _, err := wf.HarvestService(ctx, srv.UUID); err != nil {
			log.Logger(ctx).Warn("first harvest failed", zap.String("service", srv.Name), zap.Error(err))
		}
	}
	return srv, nil
}

// ProbeService validates the remote service again and returns its description
func (wf *Workflow) ProbeService(ctx context.Context, id string) (common.Endpoint, error) {
	srv, err := wf.Service(ctx, id)
	if err != nil {
		return common.Endpoint{}, fmt.Errorf("ProbeService.%w", err)
	}
	record, err := wf.Harvester(ctx, srv.HarvesterID)
	if err != nil {
		return common.Endpoint{}, fmt.Errorf("ProbeService.%w", err)
	}
	handler, err := wf.registry.NewHandler(srv.Type, srv.BaseURL, record.Config)
	if err != nil {
		return common.Endpoint{}, fmt.Errorf("ProbeService.%w", err)
	}
	endpoint, err := handler.Probe(ctx)
	if err != nil {
		return endpoint, fmt.Errorf("ProbeService: %w", err)
	}
	return endpoint, nil
}

func (wf *Workflow) harvester(ctx context.Context, id string) (common.Service, common.HarvesterRecord, registry.Harvester, error) {
	srv, err := wf.Service(ctx, id)
	if err != nil {
		return srv, common.HarvesterRecord{}, nil, err
	}
	record, err := wf.Harvester(ctx, srv.HarvesterID)
	if err != nil {
		return srv, record, nil, err
	}
	h, err := wf.registry.NewHarvester(record)
	if err != nil {
		return srv, record, nil, err
	}
	return srv, record, h, nil
}

// HarvestService harvests the remote service, stores the states of its resources
// and publishes a HarvestEvent.
// The orphan resources are deleted or marked as REMOVED, depending on the configuration of the harvester.
func (wf *Workflow) HarvestService(ctx context.Context, id string) (common.HarvestResult, error) {
	ctx = log.With(ctx, "service", id)
	lg := log.Logger(ctx).Sugar()

	srv, record, h, err := wf.harvester(ctx, id)
	if err != nil {
		return common.HarvestResult{}, fmt.Errorf("HarvestService.%w", err)
	}

	// Known resources
	resources, err := wf.Resources(ctx, record.ID, activeStates, 0, 0)
	if err != nil {
		return common.HarvestResult{}, fmt.Errorf("HarvestService.%w", err)
	}
	known := make([]common.Coverage, len(resources))
	uuids := map[string]string{}
	for i, r := range resources {
		known[i] = r.Coverage
		uuids[r.Identifier] = r.UUID
	}

	result, err := h.Harvest(ctx, known)
	if err != nil {
		var unreachable wcs.ErrUnreachableService
		if errors.As(err, &unreachable) {
			if e := wf.UpdateHarvesterAvailability(ctx, record.ID, false, time.Now().UTC()); e != nil {
				lg.Warnf("HarvestService.%v", e)
			}
		}
		return result, fmt.Errorf("HarvestService.Harvest: %w", err)
	}

	// Describe the new and the updated resources
	changes := append(append([]common.Coverage{}, result.Added...), result.Updated...)
	descriptors := map[string]common.ResourceDescriptor{}
	for _, c := range changes {
		d, err := h.GetResource(ctx, c.Identifier, uuids[c.Identifier])
		if err != nil {
			lg.Warnf("HarvestService.GetResource[%s]: %v", c.Identifier, err)
			continue
		}
		descriptors[c.Identifier] = *d
	}

	// Unchanged resources
	changed := service.NewStringSet(result.Removed...)
	for _, c := range changes {
		changed.Push(c.Identifier)
	}
	var unchanged []string
	for _, c := range known {
		if !changed.Exists(c.Identifier) {
			unchanged = append(unchanged, c.Identifier)
		}
	}

	event, err := json.Marshal(common.HarvestEvent{
		ServiceID:   srv.UUID,
		HarvesterID: record.ID,
		Date:        time.Now().UTC(),
		Result:      result,
	})
	if err != nil {
		return result, fmt.Errorf("HarvestService.Marshal: %w", err)
	}

	err = db.UnitOfWork(ctx, wf, func(tx db.HarvestTxBackend) error {
		for _, c := range result.Added {
			if err := tx.UpsertResource(ctx, record.ID, c, common.StateADDED); err != nil {
				return err
			}
		}
		for _, c := range result.Updated {
			if err := tx.UpsertResource(ctx, record.ID, c, common.StateUPDATED); err != nil {
				return err
			}
		}
		if err := tx.SetResourcesState(ctx, record.ID, unchanged, common.StateUNCHANGED); err != nil {
			return err
		}
		if record.DeleteOrphanResources {
			if err := tx.DeleteResources(ctx, record.ID, result.Removed); err != nil {
				return err
			}
		} else if err := tx.SetResourcesState(ctx, record.ID, result.Removed, common.StateREMOVED); err != nil {
			return err
		}
		for identifier, d := range descriptors {
			if err := tx.SetResourceDescriptor(ctx, record.ID, identifier, d); err != nil {
				return err
			}
		}
		if err := tx.UpdateHarvesterAvailability(ctx, record.ID, true, time.Now().UTC()); err != nil {
			return err
		}
		if wf.eventPublisher != nil {
			if err := wf.eventPublisher.Publish(ctx, event); err != nil {
				return fmt.Errorf("failed to publish: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("HarvestService.%w", err)
	}

	lg.Infof("service %s harvested: %d added, %d updated, %d removed, %d unchanged",
		srv.Name, len(result.Added), len(result.Updated), len(result.Removed), len(unchanged))
	return result, nil
}

// HarvestAll harvests all the services, at most wf.parallelism at the same time.
// All the services are harvested, even if some of them fail.
func (wf *Workflow) HarvestAll(ctx context.Context) error {
	services, err := wf.Services(ctx, "", 0, 0)
	if err != nil {
		return fmt.Errorf("HarvestAll.%w", err)
	}

	var mu sync.Mutex
	var errs []error
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(wf.parallelism)
	for _, srv := range services {
		g.Go(func() error {
			if _, err := wf.HarvestService(gctx, srv.UUID); err != nil {
				log.Logger(gctx).Warn("harvest failed", zap.String("service", srv.Name), zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if err := service.MergeErrors(true, nil, errs...); err != nil {
		return fmt.Errorf("HarvestAll: %d/%d services failed: %w", len(errs), len(services), err)
	}
	return nil
}

// HandleHarvestRequest handles a HarvestRequest received from the messaging service
func (wf *Workflow) HandleHarvestRequest(ctx context.Context, data []byte) error {
	var request common.HarvestRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return service.MakeFatal(fmt.Errorf("invalid payload: %w", err))
	}
	if request.ServiceID == "" {
		return wf.HarvestAll(ctx)
	}
	_, err := wf.HarvestService(ctx, request.ServiceID)
	var notFound db.ErrNotFound
	if errors.As(err, &notFound) {
		return service.MakeFatal(err)
	}
	return err
}

// ServiceResources returns the resources of a service
// states [optional] only the resources with one of these states
func (wf *Workflow) ServiceResources(ctx context.Context, id string, states []common.ResourceState, page, limit int) ([]db.Resource, error) {
	srv, err := wf.Service(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ServiceResources.%w", err)
	}
	resources, err := wf.Resources(ctx, srv.HarvesterID, states, page, limit)
	if err != nil {
		return nil, fmt.Errorf("ServiceResources.%w", err)
	}
	return resources, nil
}

// ServiceResource returns a resource of a service with its full description.
// If the resource has not been described yet, the remote service is requested.
func (wf *Workflow) ServiceResource(ctx context.Context, id, identifier string) (db.Resource, error) {
	srv, _, h, err := wf.harvester(ctx, id)
	if err != nil {
		return db.Resource{}, fmt.Errorf("ServiceResource.%w", err)
	}
	r, err := wf.Resource(ctx, srv.HarvesterID, identifier)
	if err != nil {
		return r, fmt.Errorf("ServiceResource.%w", err)
	}
	if r.Descriptor != nil {
		return r, nil
	}
	d, err := h.GetResource(ctx, identifier, r.UUID)
	if err != nil {
		return r, fmt.Errorf("ServiceResource.GetResource: %w", err)
	}
	if err := wf.SetResourceDescriptor(ctx, srv.HarvesterID, identifier, *d); err != nil {
		return r, fmt.Errorf("ServiceResource.%w", err)
	}
	r.UUID, r.Descriptor = d.UUID, d
	return r, nil
}
