package workflow_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/airbusgeo/wcs-remote-service/common"
	db "github.com/airbusgeo/wcs-remote-service/interface/database"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Handler", func() {
	var (
		handler http.Handler
		srv     common.Service
	)

	do := func(method, url, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, url, strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		wf = newWorkflow()
		remote.set(dem, ortho2020)
		handler = wf.NewHandler()

		w := do("POST", "/services", `{"url":"`+wcsServer.URL+`/wcs","owner":"jdoe"}`)
		Expect(w.Code).To(Equal(201))
		Expect(json.Unmarshal(w.Body.Bytes(), &srv)).To(Succeed())
		Expect(srv.Owner).To(Equal("jdoe"))
	})

	It("should list the types", func() {
		w := do("GET", "/types", "")
		Expect(w.Code).To(Equal(200))
		var types struct {
			ServiceTypes []struct {
				Name  string `json:"name"`
				Label string `json:"label"`
			} `json:"service_types"`
			HarvesterTypes []string `json:"harvester_types"`
		}
		Expect(json.Unmarshal(w.Body.Bytes(), &types)).To(Succeed())
		Expect(types.ServiceTypes).To(HaveLen(1))
		Expect(types.ServiceTypes[0].Name).To(Equal("WCS"))
		Expect(types.ServiceTypes[0].Label).To(Equal("Web Coverage Service"))
		Expect(types.HarvesterTypes).To(Equal([]string{common.HarvesterTypeWCS}))
	})

	It("should reject invalid registrations", func() {
		Expect(do("POST", "/services", `{"url":"`+wcsServer.URL+`/wcs"}`).Code).To(Equal(409))
		Expect(do("POST", "/services", `{"url":`).Code).To(Equal(400))
		Expect(do("POST", "/services", `{}`).Code).To(Equal(400))
		Expect(do("POST", "/services", `{"type":"WMS","url":"`+wcsServer.URL+`/wms"}`).Code).To(Equal(400))
		Expect(do("POST", "/services", `{"url":"`+wcsServer.URL+`/wcs2","harvester_config":{"unknown":true}}`).Code).To(Equal(400))
		Expect(do("POST", "/services", `{"url":"`+wcsServer.URL+`/html"}`).Code).To(Equal(502))
	})

	It("should retrieve the services", func() {
		w := do("GET", "/services/"+srv.Name, "")
		Expect(w.Code).To(Equal(200))
		var s common.Service
		Expect(json.Unmarshal(w.Body.Bytes(), &s)).To(Succeed())
		Expect(s.UUID).To(Equal(srv.UUID))

		Expect(do("GET", "/services/unknown", "").Code).To(Equal(404))

		w = do("GET", "/services?pattern=http*&limit=10", "")
		Expect(w.Code).To(Equal(200))
		var services []common.Service
		Expect(json.Unmarshal(w.Body.Bytes(), &services)).To(Succeed())
		Expect(services).To(HaveLen(1))

		Expect(do("GET", "/services?page=first", "").Code).To(Equal(400))
	})

	It("should probe and harvest the services", func() {
		w := do("GET", "/services/"+srv.UUID+"/probe", "")
		Expect(w.Code).To(Equal(200))
		var endpoint common.Endpoint
		Expect(json.Unmarshal(w.Body.Bytes(), &endpoint)).To(Succeed())
		Expect(endpoint.CoverageCount).To(Equal(2))

		remote.set(dem)
		w = do("POST", "/services/"+srv.UUID+"/harvest", "")
		Expect(w.Code).To(Equal(200))
		var result common.HarvestResult
		Expect(json.Unmarshal(w.Body.Bytes(), &result)).To(Succeed())
		Expect(result.Removed).To(Equal([]string{"ortho_2020"}))

		remote.down()
		Expect(do("POST", "/services/"+srv.UUID+"/harvest", "").Code).To(Equal(502))
		Expect(do("GET", "/services/"+srv.UUID+"/probe", "").Code).To(Equal(502))
	})

	It("should list the resources", func() {
		w := do("GET", "/services/"+srv.Name+"/resources?state=added&state=UPDATED", "")
		Expect(w.Code).To(Equal(200))
		var resources []db.Resource
		Expect(json.Unmarshal(w.Body.Bytes(), &resources)).To(Succeed())
		Expect(resources).To(HaveLen(2))
		Expect(resources[0].Identifier).To(Equal("dem_10m"))

		w = do("GET", "/services/"+srv.Name+"/resources?state=UNCHANGED", "")
		Expect(w.Code).To(Equal(200))
		Expect(json.Unmarshal(w.Body.Bytes(), &resources)).To(Succeed())
		Expect(resources).To(BeEmpty())

		Expect(do("GET", "/services/"+srv.Name+"/resources?state=DELETED", "").Code).To(Equal(400))
		Expect(do("GET", "/services/unknown/resources", "").Code).To(Equal(404))
	})

	It("should retrieve a resource as a feature", func() {
		w := do("GET", "/services/"+srv.Name+"/resources/dem_10m", "")
		Expect(w.Code).To(Equal(200))
		var feature struct {
			Geometry struct {
				Type        string        `json:"type"`
				Coordinates [][][]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]interface{} `json:"properties"`
		}
		Expect(json.Unmarshal(w.Body.Bytes(), &feature)).To(Succeed())
		Expect(feature.Geometry.Type).To(Equal("Polygon"))
		Expect(feature.Geometry.Coordinates[0][0]).To(Equal([]float64{0, 43}))
		Expect(feature.Properties["identifier"]).To(Equal("dem_10m"))
		Expect(feature.Properties["state"]).To(Equal("ADDED"))

		Expect(do("GET", "/services/"+srv.Name+"/resources/unknown", "").Code).To(Equal(404))
	})

	It("should delete a service", func() {
		Expect(do("DELETE", "/services/"+srv.UUID, "").Code).To(Equal(204))
		Expect(do("GET", "/services/"+srv.UUID, "").Code).To(Equal(404))
		Expect(do("DELETE", "/services/"+srv.UUID, "").Code).To(Equal(404))
	})
})
