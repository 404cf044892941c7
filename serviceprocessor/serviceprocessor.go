package serviceprocessor

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
	"github.com/go-spatial/geom"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// ServiceType handled by this processor
	ServiceType = common.ServiceTypeWCS
	// Label of the service type
	Label = "Web Coverage Service"
)

// CapabilitiesGetter retrieves the capabilities of a WCS server (implemented by wcs.Client)
type CapabilitiesGetter interface {
	GetCapabilities(ctx context.Context, baseURL string) (*wcs.Capabilities, error)
}

// Handler describes one remote WCS endpoint
type Handler struct {
	url             string
	name            string
	client          CapabilitiesGetter
	harvesterConfig map[string]interface{}
}

// Option configures a Handler
type Option func(*Handler)

// WithHarvesterConfig sets the type-specific configuration of the harvester created with the service
func WithHarvesterConfig(config map[string]interface{}) Option {
	return func(h *Handler) { h.harvesterConfig = config }
}

// New returns a handler of the WCS endpoint at url
func New(url string, client CapabilitiesGetter, opts ...Option) *Handler {
	h := &Handler{
		url:             strings.TrimSpace(url),
		client:          client,
		harvesterConfig: map[string]interface{}{},
	}
	h.name = common.ServiceName(h.url)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// URL of the endpoint
func (h *Handler) URL() string { return h.url }

// Name is the slug of the url, truncated to 255 characters
func (h *Handler) Name() string { return h.name }

// ServiceType returns "WCS"
func (h *Handler) ServiceType() string { return ServiceType }

// IndexingMethod returns how the resources of the service are handled by the host
func (h *Handler) IndexingMethod() string { return common.IndexingMethodIndexed }

// HarvesterType returns the type of the harvester attached to the service
func (h *Handler) HarvesterType() string { return common.HarvesterTypeWCS }

// Probe validates that the url is a reachable WCS server advertising at least one coverage,
// and returns its metadata.
// It fails with wcs.ErrUnreachableService if the server does not respond, does not advertise
// WCS capabilities or has no coverage.
func (h *Handler) Probe(ctx context.Context) (common.Endpoint, error) {
	ctx = log.With(ctx, "url", h.url)
	caps, err := h.client.GetCapabilities(ctx, h.url)
	if err != nil {
		var malformed wcs.ErrMalformedCapabilities
		if errors.As(err, &malformed) {
			err = wcs.ErrUnreachableService{URL: h.url, Err: err}
		}
		log.Logger(ctx).Info("probe failed", zap.Error(err))
		return common.Endpoint{}, fmt.Errorf("Probe: %w", err)
	}
	if len(caps.Contents) == 0 {
		return common.Endpoint{}, fmt.Errorf("Probe: %w", wcs.ErrUnreachableService{URL: h.url, Err: fmt.Errorf("no coverage advertised")})
	}

	endpoint := common.Endpoint{
		BaseURL:       h.url,
		ServiceType:   ServiceType,
		Version:       caps.Version,
		Title:         validUTF8(caps.Identification.Title),
		Abstract:      validUTF8(caps.Identification.Abstract),
		Keywords:      caps.Identification.Keywords,
		Provider:      caps.Provider.Contact,
		Formats:       caps.Formats,
		CoverageCount: len(caps.Contents),
	}
	if endpoint.ExtentWKT, err = extentWKT(caps.Contents); err != nil {
		log.Logger(ctx).Warn("cannot compute the extent of the service", zap.Error(err))
	}
	return endpoint, nil
}

// ListCoverages returns the coverages advertised by the endpoint, in the order of the capabilities document.
// It fails with wcs.ErrMalformedCapabilities if the document cannot be parsed.
func (h *Handler) ListCoverages(ctx context.Context) ([]common.Coverage, error) {
	caps, err := h.client.GetCapabilities(ctx, h.url)
	if err != nil {
		return nil, fmt.Errorf("ListCoverages: %w", err)
	}
	coverages := make([]common.Coverage, 0, len(caps.Contents))
	for _, cs := range caps.Contents {
		coverages = append(coverages, CoverageFromSummary(cs, caps.Formats))
	}
	return coverages, nil
}

// Keywords of the service
func (h *Handler) Keywords(ctx context.Context) ([]string, error) {
	caps, err := h.client.GetCapabilities(ctx, h.url)
	if err != nil {
		return nil, fmt.Errorf("Keywords: %w", err)
	}
	return caps.Identification.Keywords, nil
}

// NewServiceRecord creates the records of the service and of its harvester, to be persisted by the host.
// The harvester deletes the orphan resources automatically and is not scheduled.
func (h *Handler) NewServiceRecord(ctx context.Context, owner string) (common.Service, common.HarvesterRecord, error) {
	caps, err := h.client.GetCapabilities(ctx, h.url)
	if err != nil {
		return common.Service{}, common.HarvesterRecord{}, fmt.Errorf("NewServiceRecord: %w", err)
	}
	srv := common.Service{
		UUID:         uuid.New().String(),
		BaseURL:      h.url,
		Type:         ServiceType,
		Method:       common.IndexingMethodIndexed,
		Version:      validUTF8(caps.Identification.Version),
		Name:         h.name,
		Title:        validUTF8(caps.Identification.Title),
		Abstract:     validUTF8(caps.Identification.Abstract),
		Keywords:     caps.Identification.Keywords,
		Owner:        owner,
		MetadataOnly: true,
		Created:      time.Now().UTC(),
	}
	if srv.Title == "" {
		srv.Title = h.name
	}
	if srv.Abstract == "" {
		srv.Abstract = common.NotProvided
	}
	rec := common.HarvesterRecord{
		Name:                  h.name,
		RemoteURL:             h.url,
		HarvesterType:         common.HarvesterTypeWCS,
		Config:                h.harvesterConfig,
		DefaultOwner:          owner,
		SchedulingEnabled:     false,
		DeleteOrphanResources: true,
	}
	return srv, rec, nil
}

// CoverageFromSummary converts a coverage of the capabilities document.
// BoundingBox is the WGS84 bounding box if any, the first native bounding box otherwise.
// Formats default to the formats supported by the service.
func CoverageFromSummary(cs wcs.CoverageSummary, serviceFormats []string) common.Coverage {
	c := common.Coverage{
		Identifier: cs.ID,
		Title:      cs.Title,
		Abstract:   cs.Abstract,
		Keywords:   cs.Keywords,
		Formats:    cs.SupportedFormats,
	}
	if len(c.Formats) == 0 {
		c.Formats = serviceFormats
	}
	switch {
	case len(cs.BoundingBoxes) > 0:
		c.NativeCRS = common.CRSCode(cs.BoundingBoxes[0].CRS)
	case len(cs.SupportedCRS) > 0:
		c.NativeCRS = common.CRSCode(cs.SupportedCRS[0])
	}
	if cs.WGS84BoundingBox != nil {
		bbox := *cs.WGS84BoundingBox
		c.BoundingBox = &bbox
	} else if len(cs.BoundingBoxes) > 0 {
		bbox := cs.BoundingBoxes[0].BBox
		c.BoundingBox = &bbox
	}
	return c
}

// extentWKT returns the envelope of the WGS84 bounding boxes of the coverages ("" if none)
func extentWKT(coverages []wcs.CoverageSummary) (string, error) {
	var wkts []string
	for _, cs := range coverages {
		if cs.WGS84BoundingBox == nil {
			continue
		}
		wkt, err := geometry.ExtentWKT(geom.Extent(*cs.WGS84BoundingBox))
		if err != nil {
			return "", fmt.Errorf("extentWKT.%s: %w", cs.ID, err)
		}
		wkts = append(wkts, wkt)
	}
	return geometry.UnionEnvelopeWKT(wkts)
}

func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
