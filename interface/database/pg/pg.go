package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/airbusgeo/wcs-remote-service/common"
	db "github.com/airbusgeo/wcs-remote-service/interface/database"
	"github.com/lib/pq"
)

// pgInterface allows to use either a sql.DB or a sql.Tx
type pgInterface interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// BackendTx implements HarvestTxBackend
type BackendTx struct {
	*sql.Tx
	Backend
}

// BackendDB implements HarvestDBBackend
type BackendDB struct {
	*sql.DB
	Backend
}

// Backend implements HarvestBackend
type Backend struct {
	pgInterface
}

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError             = "00000"
	connectionFailure   = "08006"
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"

	notPqError = "X"
)

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	return notPqError
}

// StartTransaction implements HarvestDBBackend
func (bdb BackendDB) StartTransaction(ctx context.Context) (db.HarvestTxBackend, error) {
	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return BackendTx{}, err
	}
	return BackendTx{tx, Backend{pgInterface: tx}}, nil
}

// Rollback overloads sql.Tx.Rollback to be idempotent
func (btx BackendTx) Rollback() error {
	err := btx.Tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// New creates a new backend using Postgres
func New(ctx context.Context, dbConnection string) (*BackendDB, error) {
	db, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		if pqErrorCode(err) == connectionFailure {
			return nil, fmt.Errorf("sql.ping: connection failure: %w", err)
		}
		return nil, fmt.Errorf("sql.ping: %w", err)
	}
	return &BackendDB{db, Backend{pgInterface: db}}, nil
}

// CreateHarvester implements HarvestBackend
func (b Backend) CreateHarvester(ctx context.Context, h common.HarvesterRecord) (int, error) {
	if h.Config == nil {
		h.Config = map[string]interface{}{}
	}
	config, err := json.Marshal(h.Config)
	if err != nil {
		return 0, fmt.Errorf("CreateHarvester.Marshal: %w", err)
	}
	var id int
	err = b.QueryRowContext(ctx,
		"insert into harvester(name, remote_url, harvester_type, config, default_owner, scheduling_enabled, delete_orphans)"+
			" values($1, $2, $3, $4, $5, $6, $7) returning id",
		h.Name, h.RemoteURL, h.HarvesterType, config, h.DefaultOwner, h.SchedulingEnabled, h.DeleteOrphanResources).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("CreateHarvester.QueryRowContext: %w", err)
	}
	return id, nil
}

// Harvester implements HarvestBackend
func (b Backend) Harvester(ctx context.Context, id int) (common.HarvesterRecord, error) {
	h := common.HarvesterRecord{ID: id}
	var config []byte
	var lastChecked sql.NullTime
	err := b.QueryRowContext(ctx,
		"select name, remote_url, harvester_type, config, default_owner, scheduling_enabled, delete_orphans, available, last_checked"+
			" from harvester where id = $1", id).
		Scan(&h.Name, &h.RemoteURL, &h.HarvesterType, &config, &h.DefaultOwner, &h.SchedulingEnabled, &h.DeleteOrphanResources, &h.Available, &lastChecked)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return h, db.ErrNotFound{Type: "harvester", ID: strconv.Itoa(id)}
	case err != nil:
		return h, fmt.Errorf("Harvester.QueryRowContext: %w", err)
	}
	if err := json.Unmarshal(config, &h.Config); err != nil {
		return h, fmt.Errorf("Harvester.Unmarshal: %w", err)
	}
	if lastChecked.Valid {
		h.LastChecked = &lastChecked.Time
	}
	return h, nil
}

// UpdateHarvesterAvailability implements HarvestBackend
func (b Backend) UpdateHarvesterAvailability(ctx context.Context, id int, available bool, checked time.Time) error {
	res, err := b.ExecContext(ctx, "update harvester set available = $1, last_checked = $2 where id = $3", available, checked, id)
	if err != nil {
		return fmt.Errorf("UpdateHarvesterAvailability.ExecContext: %w", err)
	}
	return checkAffected(res, "harvester", strconv.Itoa(id))
}

// CreateService implements HarvestBackend
func (b Backend) CreateService(ctx context.Context, s common.Service) error {
	_, err := b.ExecContext(ctx,
		"insert into service(id, base_url, type, method, version, name, title, abstract, keywords, owner, metadata_only, harvester_id, created)"+
			" values($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)",
		s.UUID, s.BaseURL, s.Type, s.Method, s.Version, s.Name, s.Title, s.Abstract, pq.Array(nonNil(s.Keywords)), s.Owner,
		s.MetadataOnly, s.HarvesterID, s.Created)
	switch pqErrorCode(err) {
	case noError:
		return nil
	case uniqueViolation:
		return db.ErrAlreadyExists{Type: "service", ID: s.BaseURL}
	case foreignKeyViolation:
		return db.ErrNotFound{Type: "harvester", ID: strconv.Itoa(s.HarvesterID)}
	default:
		return fmt.Errorf("CreateService.exec: %w", err)
	}
}

const serviceColumns = "id, base_url, type, method, version, name, title, abstract, keywords, owner, metadata_only, harvester_id, created"

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanService(row scanner) (common.Service, error) {
	var s common.Service
	err := row.Scan(&s.UUID, &s.BaseURL, &s.Type, &s.Method, &s.Version, &s.Name, &s.Title, &s.Abstract,
		pq.Array(&s.Keywords), &s.Owner, &s.MetadataOnly, &s.HarvesterID, &s.Created)
	return s, err
}

// Service implements HarvestBackend
func (b Backend) Service(ctx context.Context, id string) (common.Service, error) {
	s, err := scanService(b.QueryRowContext(ctx,
		"select "+serviceColumns+" from service where id::text = $1 or name = $1", id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s, db.ErrNotFound{Type: "service", ID: id}
	case err != nil:
		return s, fmt.Errorf("Service.QueryRowContext: %w", err)
	}
	return s, nil
}

// Services implements HarvestBackend
func (b Backend) Services(ctx context.Context, pattern string, page, limit int) ([]common.Service, error) {
	wc := joinClause{}
	if pattern != "" {
		value, operator := namePattern(pattern)
		wc.append("name "+operator+" $%d", value)
	}
	rows, err := b.QueryContext(ctx,
		"select "+serviceColumns+" from service"+wc.WhereClause()+" ORDER BY name"+limitOffsetClause(page, limit),
		wc.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("Services.QueryContext: %w", err)
	}
	defer rows.Close()
	services := []common.Service{}
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("Services.Scan: %w", err)
		}
		services = append(services, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Services.rows.err: %w", err)
	}
	return services, nil
}

// DeleteService implements HarvestBackend
// The harvester and its resources are deleted in cascade
func (b Backend) DeleteService(ctx context.Context, id string) error {
	var harvesterID int
	err := b.QueryRowContext(ctx, "delete from service where id::text = $1 or name = $1 returning harvester_id", id).Scan(&harvesterID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return db.ErrNotFound{Type: "service", ID: id}
	case err != nil:
		return fmt.Errorf("DeleteService.QueryRowContext: %w", err)
	}
	if _, err := b.ExecContext(ctx, "delete from harvester where id = $1", harvesterID); err != nil {
		return fmt.Errorf("DeleteService.ExecContext: %w", err)
	}
	return nil
}

const resourceColumns = "harvester_id, identifier, state, title, abstract, bbox, native_crs, formats, keywords, uuid, descriptor, last_updated"

func scanResource(row scanner) (db.Resource, error) {
	var r db.Resource
	var bbox pq.Float64Array
	var uuid sql.NullString
	var descriptor []byte
	err := row.Scan(&r.HarvesterID, &r.Identifier, &r.State, &r.Title, &r.Abstract, &bbox, &r.NativeCRS,
		pq.Array(&r.Formats), pq.Array(&r.Keywords), &uuid, &descriptor, &r.LastUpdated)
	if err != nil {
		return r, err
	}
	if len(bbox) == 4 {
		r.BoundingBox = &common.BBox{bbox[0], bbox[1], bbox[2], bbox[3]}
	}
	r.UUID = uuid.String
	if descriptor != nil {
		r.Descriptor = &common.ResourceDescriptor{}
		if err := json.Unmarshal(descriptor, r.Descriptor); err != nil {
			return r, fmt.Errorf("unmarshal descriptor: %w", err)
		}
	}
	return r, nil
}

// Resources implements HarvestBackend
func (b Backend) Resources(ctx context.Context, harvesterID int, states []common.ResourceState, page, limit int) ([]db.Resource, error) {
	wc := joinClause{}
	wc.append("harvester_id = $%d", harvesterID)
	if len(states) > 0 {
		s := make([]string, len(states))
		for i, state := range states {
			s[i] = state.String()
		}
		wc.appendAny("state", "resource_state", s)
	}
	rows, err := b.QueryContext(ctx,
		"select "+resourceColumns+" from resource"+wc.WhereClause()+" ORDER BY identifier"+limitOffsetClause(page, limit),
		wc.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("Resources.QueryContext: %w", err)
	}
	defer rows.Close()
	resources := []db.Resource{}
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("Resources.Scan: %w", err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Resources.rows.err: %w", err)
	}
	return resources, nil
}

// Resource implements HarvestBackend
func (b Backend) Resource(ctx context.Context, harvesterID int, identifier string) (db.Resource, error) {
	r, err := scanResource(b.QueryRowContext(ctx,
		"select "+resourceColumns+" from resource where harvester_id = $1 and identifier = $2", harvesterID, identifier))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return r, db.ErrNotFound{Type: "resource", ID: identifier}
	case err != nil:
		return r, fmt.Errorf("Resource.QueryRowContext: %w", err)
	}
	return r, nil
}

// UpsertResource implements HarvestBackend
func (b Backend) UpsertResource(ctx context.Context, harvesterID int, c common.Coverage, state common.ResourceState) error {
	var bbox interface{}
	if c.BoundingBox != nil {
		bbox = pq.Float64Array(c.BoundingBox[:])
	}
	_, err := b.ExecContext(ctx,
		"insert into resource(harvester_id, identifier, state, title, abstract, bbox, native_crs, formats, keywords, last_updated)"+
			" values($1, $2, $3, $4, $5, $6, $7, $8, $9, now())"+
			" on conflict (harvester_id, identifier) do update set state = $3, title = $4, abstract = $5, bbox = $6,"+
			" native_crs = $7, formats = $8, keywords = $9, last_updated = now()",
		harvesterID, c.Identifier, state, c.Title, c.Abstract, bbox, c.NativeCRS, pq.Array(nonNil(c.Formats)), pq.Array(nonNil(c.Keywords)))
	switch pqErrorCode(err) {
	case noError:
		return nil
	case foreignKeyViolation:
		return db.ErrNotFound{Type: "harvester", ID: strconv.Itoa(harvesterID)}
	default:
		return fmt.Errorf("UpsertResource.exec: %w", err)
	}
}

// SetResourcesState implements HarvestBackend
func (b Backend) SetResourcesState(ctx context.Context, harvesterID int, identifiers []string, state common.ResourceState) error {
	if len(identifiers) == 0 {
		return nil
	}
	_, err := b.ExecContext(ctx,
		"update resource set state = $1, last_updated = now() where harvester_id = $2 and identifier = ANY($3)",
		state, harvesterID, pq.Array(identifiers))
	if err != nil {
		return fmt.Errorf("SetResourcesState.ExecContext: %w", err)
	}
	return nil
}

// SetResourceDescriptor implements HarvestBackend
func (b Backend) SetResourceDescriptor(ctx context.Context, harvesterID int, identifier string, descriptor common.ResourceDescriptor) error {
	d, err := json.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("SetResourceDescriptor.Marshal: %w", err)
	}
	res, err := b.ExecContext(ctx,
		"update resource set uuid = $1, descriptor = $2 where harvester_id = $3 and identifier = $4",
		descriptor.UUID, d, harvesterID, identifier)
	if err != nil {
		return fmt.Errorf("SetResourceDescriptor.ExecContext: %w", err)
	}
	return checkAffected(res, "resource", identifier)
}

// DeleteResources implements HarvestBackend
func (b Backend) DeleteResources(ctx context.Context, harvesterID int, identifiers []string) error {
	if len(identifiers) == 0 {
		return nil
	}
	_, err := b.ExecContext(ctx, "delete from resource where harvester_id = $1 and identifier = ANY($2)", harvesterID, pq.Array(identifiers))
	if err != nil {
		return fmt.Errorf("DeleteResources.ExecContext: %w", err)
	}
	return nil
}

func checkAffected(res sql.Result, typ, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("RowsAffected: %w", err)
	}
	if n == 0 {
		return db.ErrNotFound{Type: typ, ID: id}
	}
	return nil
}

// nonNil returns an empty slice instead of nil (stored as '{}' instead of NULL)
func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
