package common

import (
	"time"
)

const (
	// ServiceTypeWCS is the service type of OGC Web Coverage Services
	ServiceTypeWCS = "WCS"
	// IndexingMethodIndexed: resources are indexed (metadata only), data stays on the remote server
	IndexingMethodIndexed = "I"
	// ResourceTypeLayers is the remote resource type of a coverage
	ResourceTypeLayers = "layers"
	// NotProvided is used when the remote service gives no abstract
	NotProvided = "Not provided"
	// HarvesterTypeWCS is the name of the WCS harvester, as listed in the host settings
	HarvesterTypeWCS = "wcs_remote_service.harvesters.wcs.WCSHarvester"
)

// Contact is the point of contact of a remote service
type Contact struct {
	Role                      string `json:"role"`
	Name                      string `json:"name"`
	Organization              string `json:"organization"`
	Position                  string `json:"position"`
	PhoneVoice                string `json:"phone_voice"`
	AddressDeliveryPoint      string `json:"address_delivery_point"`
	AddressCity               string `json:"address_city"`
	AddressAdministrativeArea string `json:"address_administrative_area"`
	AddressPostalCode         string `json:"address_postal_code"`
	AddressCountry            string `json:"address_country"`
	AddressEmail              string `json:"address_email"`
}

// BBox is a bounding box: MinX, MinY, MaxX, MaxY
type BBox [4]float64

// Endpoint describes a validated remote service
type Endpoint struct {
	BaseURL       string   `json:"base_url"`
	ServiceType   string   `json:"service_type"`
	Version       string   `json:"version"`
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract"`
	Keywords      []string `json:"keywords"`
	Provider      Contact  `json:"provider"`
	Formats       []string `json:"formats"`
	CoverageCount int      `json:"coverage_count"`
	ExtentWKT     string   `json:"extent_wkt,omitempty"`
}

// Coverage is a coverage advertised by the capabilities document of an endpoint.
// Identifier is unique within an endpoint.
type Coverage struct {
	Identifier  string   `json:"identifier"`
	Title       string   `json:"title"`
	Abstract    string   `json:"abstract"`
	BoundingBox *BBox    `json:"bounding_box,omitempty"`
	NativeCRS   string   `json:"native_crs"`
	Formats     []string `json:"formats"`
	Keywords    []string `json:"keywords,omitempty"`
}

// HarvestResult is the outcome of one harvest cycle of one endpoint
type HarvestResult struct {
	Added   []Coverage `json:"added"`
	Updated []Coverage `json:"updated"`
	Removed []string   `json:"removed"`
}

// Empty returns true if nothing changed since the last cycle
func (r HarvestResult) Empty() bool {
	return len(r.Added) == 0 && len(r.Updated) == 0 && len(r.Removed) == 0
}

// BriefResource is the short description of a harvestable resource
type BriefResource struct {
	UniqueIdentifier string `json:"unique_identifier"`
	Title            string `json:"title"`
	Abstract         string `json:"abstract"`
	ResourceType     string `json:"resource_type"`
}

// ResourceDescriptor is the full description of a harvested resource
type ResourceDescriptor struct {
	UUID                 string            `json:"uuid"`
	Name                 string            `json:"name"`
	Title                string            `json:"title"`
	Abstract             string            `json:"abstract"`
	Keywords             []string          `json:"keywords"`
	Category             string            `json:"category,omitempty"`
	Contact              Contact           `json:"point_of_contact"`
	DateStamp            time.Time         `json:"date_stamp"`
	BBox                 BBox              `json:"bbox"`
	SpatialExtentWKT     string            `json:"spatial_extent"`
	CRS                  string            `json:"crs"`
	TemporalExtent       *[2]time.Time     `json:"temporal_extent,omitempty"`
	WCSURL               string            `json:"wcs_url"`
	AdditionalParameters map[string]string `json:"additional_parameters"`
}

// Service is the record of a registered remote service
type Service struct {
	UUID         string    `json:"uuid"`
	BaseURL      string    `json:"base_url"`
	Type         string    `json:"type"`
	Method       string    `json:"method"`
	Version      string    `json:"version"`
	Name         string    `json:"name"`
	Title        string    `json:"title"`
	Abstract     string    `json:"abstract"`
	Keywords     []string  `json:"keywords"`
	Owner        string    `json:"owner"`
	MetadataOnly bool      `json:"metadata_only"`
	HarvesterID  int       `json:"harvester_id"`
	Created      time.Time `json:"created"`
}

// HarvesterRecord is the host record of the harvester attached to a service
type HarvesterRecord struct {
	ID                    int                    `json:"id"`
	Name                  string                 `json:"name"`
	RemoteURL             string                 `json:"remote_url"`
	HarvesterType         string                 `json:"harvester_type"`
	Config                map[string]interface{} `json:"harvester_type_specific_configuration"`
	DefaultOwner          string                 `json:"default_owner"`
	SchedulingEnabled     bool                   `json:"scheduling_enabled"`
	DeleteOrphanResources bool                   `json:"delete_orphan_resources_automatically"`
	Available             bool                   `json:"remote_available"`
	LastChecked           *time.Time             `json:"last_checked_availability,omitempty"`
}

// HarvestEvent is published each time a service has been harvested
type HarvestEvent struct {
	ServiceID   string        `json:"service_id"`
	HarvesterID int           `json:"harvester_id"`
	Date        time.Time     `json:"date"`
	Result      HarvestResult `json:"result"`
}

// HarvestRequest asks the harvesting worker to harvest one service (or all if ServiceID is empty)
type HarvestRequest struct {
	ServiceID string `json:"service_id"`
}
