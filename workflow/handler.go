package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/airbusgeo/wcs-remote-service/common"
	"github.com/airbusgeo/wcs-remote-service/harvester"
	db "github.com/airbusgeo/wcs-remote-service/interface/database"
	"github.com/airbusgeo/wcs-remote-service/interface/ows/wcs"
	"github.com/airbusgeo/wcs-remote-service/registry"
	"github.com/airbusgeo/wcs-remote-service/service/geometry"
	"github.com/airbusgeo/wcs-remote-service/service/log"
	"github.com/go-spatial/geom"
	"github.com/gorilla/mux"
)

func (wf *Workflow) NewHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/types", wf.ListTypesHandler).Methods("GET")
	r.HandleFunc("/services", wf.RegisterServiceHandler).Methods("POST")
	r.HandleFunc("/services", wf.ListServicesHandler).Methods("GET")
	r.HandleFunc("/services/{service}", wf.GetServiceHandler).Methods("GET")
	r.HandleFunc("/services/{service}", wf.DeleteServiceHandler).Methods("DELETE")
	r.HandleFunc("/services/{service}/probe", wf.ProbeServiceHandler).Methods("GET")
	r.HandleFunc("/services/{service}/harvest", wf.HarvestServiceHandler).Methods("POST")
	r.HandleFunc("/services/{service}/resources", wf.ListResourcesHandler).Methods("GET")
	r.HandleFunc("/services/{service}/resources/{resource}", wf.GetResourceHandler).Methods("GET")
	return r
}

// RegisterServiceRequest is the payload of RegisterServiceHandler
type RegisterServiceRequest struct {
	Type            string                 `json:"type"`
	URL             string                 `json:"url"`
	Owner           string                 `json:"owner"`
	HarvesterConfig map[string]interface{} `json:"harvester_config"`
}

// httpStatus returns the status code corresponding to the error
func httpStatus(err error) int {
	switch {
	case errors.As(err, &db.ErrNotFound{}), harvester.IsNotFound(err):
		return 404
	case errors.As(err, &db.ErrAlreadyExists{}):
		return 409
	case errors.As(err, &registry.ErrUnknownType{}), errors.As(err, &harvester.ErrInvalidConfig{}):
		return 400
	case errors.As(err, &wcs.ErrUnreachableService{}), errors.As(err, &wcs.ErrMalformedCapabilities{}), errors.As(err, &wcs.ErrUnsupportedVersion{}):
		return 502
	}
	return 500
}

func writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	status := httpStatus(err)
	if status == 500 {
		log.Logger(ctx).Sugar().Warnf("wf.%s: %v", op, err)
	}
	w.WriteHeader(status)
	fmt.Fprintf(w, "%v", err)
}

func pagination(req *http.Request) (page, limit int, err error) {
	if p := req.FormValue("page"); p != "" {
		if page, err = strconv.Atoi(p); err != nil {
			return 0, 0, fmt.Errorf("invalid page: %w", err)
		}
	}
	if l := req.FormValue("limit"); l != "" {
		if limit, err = strconv.Atoi(l); err != nil {
			return 0, 0, fmt.Errorf("invalid limit: %w", err)
		}
	}
	return page, limit, nil
}

// ListTypesHandler lists the enabled service types and harvester types
func (wf *Workflow) ListTypesHandler(w http.ResponseWriter, req *http.Request) {
	serviceTypes, harvesterTypes := wf.Types()
	json.NewEncoder(w).Encode(map[string]interface{}{
		"service_types":   serviceTypes,
		"harvester_types": harvesterTypes,
	})
}

// RegisterServiceHandler registers a remote service
func (wf *Workflow) RegisterServiceHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	var request RegisterServiceRequest
	if err := json.NewDecoder(req.Body).Decode(&request); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "invalid payload: %v", err)
		return
	}
	if request.URL == "" {
		w.WriteHeader(400)
		fmt.Fprintf(w, "missing url")
		return
	}
	if request.Type == "" {
		request.Type = common.ServiceTypeWCS
	}
	srv, err := wf.RegisterService(ctx, request.Type, request.URL, request.Owner, request.HarvesterConfig)
	if err != nil {
		writeError(ctx, w, "registerservice", err)
		return
	}
	w.WriteHeader(201)
	json.NewEncoder(w).Encode(srv)
}

// ListServicesHandler lists the services whose name fits the pattern
func (wf *Workflow) ListServicesHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	page, limit, err := pagination(req)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}
	services, err := wf.Services(ctx, req.FormValue("pattern"), page, limit)
	if err != nil {
		writeError(ctx, w, "services", err)
		return
	}
	json.NewEncoder(w).Encode(services)
}

// GetServiceHandler retrieves a service by uuid or name
func (wf *Workflow) GetServiceHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	srv, err := wf.Service(ctx, mux.Vars(req)["service"])
	if err != nil {
		writeError(ctx, w, "service", err)
		return
	}
	json.NewEncoder(w).Encode(srv)
}

// DeleteServiceHandler deletes a service, its harvester and its resources
func (wf *Workflow) DeleteServiceHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	if err := wf.DeleteService(ctx, mux.Vars(req)["service"]); err != nil {
		writeError(ctx, w, "deleteservice", err)
		return
	}
	w.WriteHeader(204)
}

// ProbeServiceHandler validates the remote service again
func (wf *Workflow) ProbeServiceHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	endpoint, err := wf.ProbeService(ctx, mux.Vars(req)["service"])
	if err != nil {
		writeError(ctx, w, "probeservice", err)
		return
	}
	json.NewEncoder(w).Encode(endpoint)
}

// HarvestServiceHandler harvests the remote service now
func (wf *Workflow) HarvestServiceHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	result, err := wf.HarvestService(ctx, mux.Vars(req)["service"])
	if err != nil {
		writeError(ctx, w, "harvestservice", err)
		return
	}
	json.NewEncoder(w).Encode(result)
}

// ListResourcesHandler lists the resources of the service, filtered by state (state=ADDED&state=UPDATED...)
func (wf *Workflow) ListResourcesHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	page, limit, err := pagination(req)
	if err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "%v", err)
		return
	}
	req.ParseForm()
	var states []common.ResourceState
	for _, s := range req.Form["state"] {
		state, err := common.ResourceStateString(s)
		if err != nil {
			w.WriteHeader(400)
			fmt.Fprintf(w, "%v", err)
			return
		}
		states = append(states, state)
	}
	resources, err := wf.ServiceResources(ctx, mux.Vars(req)["service"], states, page, limit)
	if err != nil {
		writeError(ctx, w, "resources", err)
		return
	}
	json.NewEncoder(w).Encode(resources)
}

// GetResourceHandler retrieves a resource of the service as a geojson feature
func (wf *Workflow) GetResourceHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	r, err := wf.ServiceResource(ctx, mux.Vars(req)["service"], mux.Vars(req)["resource"])
	if err != nil {
		writeError(ctx, w, "resource", err)
		return
	}
	properties := map[string]interface{}{}
	if b, err := json.Marshal(r); err == nil {
		json.Unmarshal(b, &properties)
	}
	bbox := r.Descriptor.BBox
	w.Header().Set("Content-Type", "application/geo+json")
	json.NewEncoder(w).Encode(geometry.ExtentFeature(geom.Extent{bbox[0], bbox[1], bbox[2], bbox[3]}, properties))
}
