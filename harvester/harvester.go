package harvester

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/airbusgeo/wcs-remote-service/common"
	"github.com/airbusgeo/wcs-remote-service/interface/ows/wcs"
	"github.com/airbusgeo/wcs-remote-service/service/geometry"
	"github.com/airbusgeo/wcs-remote-service/service/log"
	"github.com/airbusgeo/wcs-remote-service/serviceprocessor"
	"github.com/araddon/dateparse"
	"github.com/go-spatial/geom"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// Type of the harvester
	Type = common.HarvesterTypeWCS
	// RemoteWorkspace is the workspace of the harvested resources
	RemoteWorkspace = "remoteWorkspace"
	// PType is the gxp source type of the harvested resources
	PType = "gxp_wmscsource"
	// AvailabilityTimeout is the default timeout of CheckAvailability
	AvailabilityTimeout = 5 * time.Second
)

// WCSClient speaks the WCS protocol with the remote service (implemented by wcs.Client)
type WCSClient interface {
	GetCapabilities(ctx context.Context, baseURL string) (*wcs.Capabilities, error)
	DescribeCoverage(ctx context.Context, baseURL, version, coverageID string) (*wcs.CoverageDescription, error)
}

// ErrResourceNotFound is returned when the remote service does not advertise the resource
type ErrResourceNotFound struct {
	ID string
}

func (e ErrResourceNotFound) Error() string {
	return fmt.Sprintf("coverage %s not found", e.ID)
}

// Harvester pulls the coverages of a WCS remote service
type Harvester struct {
	RemoteURL   string
	HarvesterID int
	Config      Config
	client      WCSClient
	processor   *serviceprocessor.Handler
}

// New returns a harvester of the service at remoteURL
func New(remoteURL string, harvesterID int, client WCSClient, config Config) *Harvester {
	return &Harvester{
		RemoteURL:   remoteURL,
		HarvesterID: harvesterID,
		Config:      config,
		client:      client,
		processor:   serviceprocessor.New(remoteURL, client),
	}
}

// FromRecord returns the harvester described by the host record, validating its type-specific configuration
func FromRecord(record common.HarvesterRecord, client WCSClient) (*Harvester, error) {
	config, err := ParseConfig(record.Config)
	if err != nil {
		return nil, fmt.Errorf("FromRecord: %w", err)
	}
	return New(record.RemoteURL, record.ID, client, config), nil
}

// AllowsCopyingResources returns false: the data stays on the remote service
func (h *Harvester) AllowsCopyingResources() bool {
	return false
}

// CheckAvailability returns true if the remote service responds and advertises at least one coverage.
// timeout defaults to AvailabilityTimeout.
func (h *Harvester) CheckAvailability(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = AvailabilityTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	caps, err := h.client.GetCapabilities(ctx, h.RemoteURL)
	if err != nil {
		log.Logger(ctx).Info("remote service is not available", zap.String("url", h.RemoteURL), zap.Error(err))
		return false
	}
	return len(caps.Contents) > 0
}

// NumAvailableResources returns the number of coverages advertised by the remote service
func (h *Harvester) NumAvailableResources(ctx context.Context) (int, error) {
	caps, err := h.client.GetCapabilities(ctx, h.RemoteURL)
	if err != nil {
		return 0, fmt.Errorf("NumAvailableResources: %w", err)
	}
	return len(caps.Contents), nil
}

// ListResources returns the harvestable resources.
// The service has no pagination: everything is returned with offset=0 and nothing otherwise.
func (h *Harvester) ListResources(ctx context.Context, offset int) ([]common.BriefResource, error) {
	if offset != 0 {
		return []common.BriefResource{}, nil
	}
	caps, err := h.client.GetCapabilities(ctx, h.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("ListResources: %w", err)
	}
	resources := []common.BriefResource{}
	for _, cs := range caps.Contents {
		title := titleOrID(cs.Title, cs.ID)
		if !h.Config.keep(title) {
			continue
		}
		abstract := cs.Abstract
		if abstract == "" {
			abstract = common.NotProvided
		}
		resources = append(resources, common.BriefResource{
			UniqueIdentifier: cs.ID,
			Title:            title,
			Abstract:         abstract,
			ResourceType:     common.ResourceTypeLayers,
		})
	}
	return resources, nil
}

// GetResource returns the full description of the coverage.
// existingUUID is the uuid of the resource already harvested by the host, if any.
func (h *Harvester) GetResource(ctx context.Context, identifier, existingUUID string) (*common.ResourceDescriptor, error) {
	ctx = log.With(ctx, "coverage", identifier)
	caps, err := h.client.GetCapabilities(ctx, h.RemoteURL)
	if err != nil {
		return nil, fmt.Errorf("GetResource: %w", err)
	}
	cs, ok := caps.Coverage(identifier)
	if !ok {
		return nil, ErrResourceNotFound{ID: identifier}
	}

	resourceUUID := uuid.New()
	if existingUUID != "" {
		if resourceUUID, err = uuid.Parse(existingUUID); err != nil {
			return nil, fmt.Errorf("GetResource.ParseUUID: %w", err)
		}
	}

	ext := h.extent(ctx, caps, cs)
	wkt, err := geometry.ExtentWKT(geom.Extent(ext.bbox))
	if err != nil {
		return nil, fmt.Errorf("GetResource.%w", err)
	}

	abstract := cs.Abstract
	if abstract == "" {
		abstract = common.NotProvided
	}
	keywords := cs.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return &common.ResourceDescriptor{
		UUID:             resourceUUID.String(),
		Name:             cs.ID,
		Title:            titleOrID(cs.Title, cs.ID),
		Abstract:         abstract,
		Keywords:         keywords,
		Category:         category(keywords, h.Config.topicCategories()),
		Contact:          caps.Provider.Contact,
		DateStamp:        time.Now().UTC(),
		BBox:             ext.bbox,
		SpatialExtentWKT: wkt,
		CRS:              ext.crs,
		TemporalExtent:   ext.temporal,
		WCSURL:           caps.URL,
		AdditionalParameters: map[string]string{
			"alternate": cs.ID,
			"store":     common.ServiceName(h.RemoteURL),
			"workspace": RemoteWorkspace,
			"ows_url":   caps.URL,
			"ptype":     PType,
		},
	}, nil
}

type extent struct {
	bbox     common.BBox
	crs      string
	temporal *[2]time.Time
}

// extent selects the extent of the coverage, by order of preference:
// the WGS84 bounding box, the first bounding box of the capabilities, the envelope given by DescribeCoverage
// and finally the whole world.
func (h *Harvester) extent(ctx context.Context, caps *wcs.Capabilities, cs wcs.CoverageSummary) extent {
	if cs.WGS84BoundingBox != nil {
		return extent{bbox: *cs.WGS84BoundingBox, crs: "EPSG:4326"}
	}
	if len(cs.BoundingBoxes) > 0 {
		return extent{bbox: cs.BoundingBoxes[0].BBox, crs: common.CRSCode(cs.BoundingBoxes[0].CRS)}
	}
	if strings.HasPrefix(caps.Version, "2.") {
		desc, err := h.client.DescribeCoverage(ctx, caps.URL, caps.Version, cs.ID)
		switch {
		case err != nil:
			log.Logger(ctx).Warn("DescribeCoverage failed", zap.Error(err))
		case len(desc.Envelopes) > 0:
			env := desc.Envelopes[0]
			ext := extent{bbox: env.BBox, crs: common.CRSCode(env.SRSName)}
			if env.TemporalExtent != nil {
				ext.temporal = parseTemporalExtent(ctx, *env.TemporalExtent)
			}
			return ext
		}
	}
	return extent{bbox: common.BBox(geometry.WorldExtent), crs: "EPSG:4326"}
}

func parseTemporalExtent(ctx context.Context, raw [2]string) *[2]time.Time {
	var te [2]time.Time
	for i, r := range raw {
		t, err := dateparse.ParseIn(r, time.UTC)
		if err != nil {
			log.Logger(ctx).Warn("cannot parse temporal extent", zap.String("value", r), zap.Error(err))
			return nil
		}
		te[i] = t.UTC()
	}
	return &te
}

// category returns the first keyword matching exactly a topic category (case-sensitive) or ""
func category(keywords, categories []string) string {
	for _, kw := range keywords {
		for _, cat := range categories {
			if kw == cat {
				return cat
			}
		}
	}
	return ""
}

func titleOrID(title, id string) string {
	if title == "" {
		return id
	}
	return title
}

// IsNotFound returns whether the error is an ErrResourceNotFound
func IsNotFound(err error) bool {
	return errors.As(err, &ErrResourceNotFound{})
}
