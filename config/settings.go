package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix of the environment variables of the host settings
const Prefix = "geonode"

// Default names of the enabled service type module and harvester type
const (
	DefaultServicesTypeModule = "wcs_remote_service.serviceprocessors.wcs.WCSRemoteServiceRegistry"
	DefaultHarvesterClass     = "wcs_remote_service.harvesters.wcs.WCSHarvester"
)

// Settings are the host settings used by the connector
type Settings struct {
	// OGC_SERVER.TIMEOUT, in seconds
	OGCServerTimeout int `envconfig:"OGC_SERVER_TIMEOUT" default:"60"`
	// SERVICES_TYPE_MODULES: service type modules to enable
	ServicesTypeModules []string `envconfig:"SERVICES_TYPE_MODULES" default:"wcs_remote_service.serviceprocessors.wcs.WCSRemoteServiceRegistry"`
	// HARVESTER_CLASSES: harvester types to enable
	HarvesterClasses []string `envconfig:"HARVESTER_CLASSES" default:"wcs_remote_service.harvesters.wcs.WCSHarvester"`
	// Credentials sent to the remote services (optional)
	RemoteUsername string `envconfig:"REMOTE_SERVICES_USERNAME"`
	RemotePassword string `envconfig:"REMOTE_SERVICES_PASSWORD"`
	// Default owner of the registered services
	DefaultOwner string `envconfig:"DEFAULT_OWNER" default:"admin"`
}

// Load reads the settings from the environment (GEONODE_*)
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process(Prefix, &s); err != nil {
		return s, fmt.Errorf("config.Load: %w", err)
	}
	if s.OGCServerTimeout <= 0 {
		return s, fmt.Errorf("config.Load: OGC_SERVER_TIMEOUT must be positive (got %d)", s.OGCServerTimeout)
	}
	return s, nil
}

// Timeout returns the timeout of the requests to the remote services
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.OGCServerTimeout) * time.Second
}
