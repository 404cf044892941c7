package registry

import (
	"github.com/airbusgeo/wcs-remote-service/common"
	"github.com/airbusgeo/wcs-remote-service/harvester"
	"github.com/airbusgeo/wcs-remote-service/interface/ows/wcs"
	"github.com/airbusgeo/wcs-remote-service/serviceprocessor"
)

// ModuleWCS is the name of the module of the WCS service type, as listed in the host settings
const ModuleWCS = "wcs_remote_service.serviceprocessors.wcs.WCSRemoteServiceRegistry"

// Builtin returns a registry knowing the WCS service type and its harvester, talking to the servers with client
func Builtin(client *wcs.Client) *Registry {
	r := New()
	r.RegisterModule(ModuleWCS, map[string]ServiceTypeEntry{
		serviceprocessor.ServiceType: {
			Label: serviceprocessor.Label,
			OWS:   false,
			NewHandler: func(url string, harvesterConfig map[string]interface{}) ServiceHandler {
				return serviceprocessor.New(url, client, serviceprocessor.WithHarvesterConfig(harvesterConfig))
			},
		},
	})
	r.RegisterHarvester(common.HarvesterTypeWCS, func(record common.HarvesterRecord) (Harvester, error) {
		h, err := harvester.FromRecord(record, client)
		if err != nil {
			return nil, err
		}
		return h, nil
	})
	return r
}
