package db

import (
	"context"
	"fmt"
	"time"

	"github.com/airbusgeo/wcs-remote-service/common"
)

// Resource is a harvestable resource of a service, as last harvested
type Resource struct {
	common.Coverage
	HarvesterID int                        `json:"harvester_id"`
	State       common.ResourceState       `json:"state"`
	UUID        string                     `json:"uuid,omitempty"`
	Descriptor  *common.ResourceDescriptor `json:"descriptor,omitempty"`
	LastUpdated time.Time                  `json:"last_updated"`
}

type ErrAlreadyExists struct {
	Type, ID string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Type, e.ID)
}

type ErrNotFound struct {
	Type, ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.ID)
}

type HarvestTxBackend interface {
	HarvestBackend
	// Must be call to apply transaction
	Commit() error
	// Might be called to cancel the transaction (no effect if commit has already be done)
	Rollback() error
}

type HarvestDBBackend interface {
	HarvestBackend
	StartTransaction(ctx context.Context) (HarvestTxBackend, error)
}

type HarvestBackend interface {
	// Create a harvester, returning its id
	CreateHarvester(ctx context.Context, harvester common.HarvesterRecord) (int, error)
	// Get the harvester with the given id, may return ErrNotFound
	Harvester(ctx context.Context, id int) (common.HarvesterRecord, error)
	// Update the availability of the remote service of the harvester
	UpdateHarvesterAvailability(ctx context.Context, id int, available bool, checked time.Time) error

	// Create a service, may return ErrAlreadyExists (same url or same name)
	CreateService(ctx context.Context, service common.Service) error
	// Get the service with the given uuid or name, may return ErrNotFound
	Service(ctx context.Context, id string) (common.Service, error)
	// Services returns the services whose name fits the pattern
	// pattern [optional=""] name pattern (* and ? wildcards, (?i) suffix for case-insensitivity)
	Services(ctx context.Context, pattern string, page, limit int) ([]common.Service, error)
	// Delete a service and its harvester, may return ErrNotFound
	DeleteService(ctx context.Context, id string) error

	// Resources returns the resources of the harvester
	// states [optional] only the resources with one of these states
	Resources(ctx context.Context, harvesterID int, states []common.ResourceState, page, limit int) ([]Resource, error)
	// Get a resource of the harvester, may return ErrNotFound
	Resource(ctx context.Context, harvesterID int, identifier string) (Resource, error)
	// Create or update a resource with the given state
	UpsertResource(ctx context.Context, harvesterID int, coverage common.Coverage, state common.ResourceState) error
	// Set the state of the given resources
	SetResourcesState(ctx context.Context, harvesterID int, identifiers []string, state common.ResourceState) error
	// Set the full description of a resource (and its uuid), may return ErrNotFound
	SetResourceDescriptor(ctx context.Context, harvesterID int, identifier string, descriptor common.ResourceDescriptor) error
	// Delete the given resources
	DeleteResources(ctx context.Context, harvesterID int, identifiers []string) error
}

// UnitOfWork runs a function and commit the database at the end or rollback if the function returns an error
func UnitOfWork(ctx context.Context, db HarvestDBBackend, f func(tx HarvestTxBackend) error) (err error) {
	// Start transaction
	txn, err := db.StartTransaction(ctx)
	if err != nil {
		return fmt.Errorf("uow.starttransaction: %w", err)
	}

	// Rollback if not successful
	defer func() {
		if e := txn.Rollback(); err == nil {
			err = e
		}
	}()

	// Execute function
	if err = f(txn); err != nil {
		return fmt.Errorf("uow.%w", err)
	}

	return txn.Commit()
}
