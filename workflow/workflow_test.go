package workflow_test

import (
	"encoding/json"
	"errors"

	"github.com/airbusgeo/wcs-remote-service/common"
	"github.com/airbusgeo/wcs-remote-service/harvester"
	db "github.com/airbusgeo/wcs-remote-service/interface/database"
	"github.com/airbusgeo/wcs-remote-service/interface/ows/wcs"
	"github.com/airbusgeo/wcs-remote-service/registry"
	"github.com/airbusgeo/wcs-remote-service/service"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var (
	dem       = remoteCoverage{ID: "dem_10m", Title: "DEM 10m"}
	ortho2020 = remoteCoverage{ID: "ortho_2020", Title: "Ortho 2020"}
	ortho2021 = remoteCoverage{ID: "ortho_2021", Title: "Ortho 2021"}
)

func lastEvent() common.HarvestEvent {
	Expect(eventQueue.messages).NotTo(BeEmpty())
	var event common.HarvestEvent
	Expect(json.Unmarshal(eventQueue.messages[len(eventQueue.messages)-1], &event)).To(Succeed())
	return event
}

func resourceStates(srv common.Service) map[string]common.ResourceState {
	resources, err := wf.ServiceResources(ctx, srv.UUID, nil, 0, 0)
	Expect(err).NotTo(HaveOccurred())
	states := map[string]common.ResourceState{}
	for _, r := range resources {
		states[r.Identifier] = r.State
	}
	return states
}

var _ = Describe("Workflow", func() {
	var (
		srv common.Service
		err error
	)

	BeforeEach(func() {
		wf = newWorkflow()
		remote.set(dem, ortho2020)
	})

	Describe("Registering a service", func() {
		It("should store and harvest the service", func() {
			srv, err = wf.RegisterService(ctx, "WCS", wcsServer.URL+"/wcs", "", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(srv.Title).To(Equal("Elevation"))
			Expect(srv.Owner).To(Equal("admin"))
			Expect(srv.HarvesterID).NotTo(BeZero())

			record, err := wf.Harvester(ctx, srv.HarvesterID)
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Available).To(BeTrue())
			Expect(record.HarvesterType).To(Equal(common.HarvesterTypeWCS))

			Expect(resourceStates(srv)).To(Equal(map[string]common.ResourceState{
				"dem_10m":    common.StateADDED,
				"ortho_2020": common.StateADDED,
			}))
			r, err := wf.ServiceResource(ctx, srv.UUID, "dem_10m")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.UUID).NotTo(BeEmpty())
			Expect(r.Descriptor.Title).To(Equal("DEM 10m"))

			event := lastEvent()
			Expect(event.ServiceID).To(Equal(srv.UUID))
			Expect(event.Result.Added).To(HaveLen(2))
		})

		It("should fail with an unknown service type", func() {
			_, err = wf.RegisterService(ctx, "WMS", wcsServer.URL+"/wcs", "", nil)
			Expect(errors.As(err, &registry.ErrUnknownType{})).To(BeTrue())
		})

		It("should fail when the service is unreachable", func() {
			_, err = wf.RegisterService(ctx, "WCS", wcsServer.URL+"/html", "", nil)
			Expect(errors.As(err, &wcs.ErrUnreachableService{})).To(BeTrue())
			services, err := wf.Services(ctx, "", 0, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(services).To(BeEmpty())
		})

		It("should fail with an invalid harvester configuration", func() {
			_, err = wf.RegisterService(ctx, "WCS", wcsServer.URL+"/wcs", "", map[string]interface{}{"unknown": 1})
			Expect(errors.As(err, &harvester.ErrInvalidConfig{})).To(BeTrue())
		})

		It("should not register the same service twice", func() {
			_, err = wf.RegisterService(ctx, "WCS", wcsServer.URL+"/wcs", "", nil)
			Expect(err).NotTo(HaveOccurred())
			_, err = wf.RegisterService(ctx, "WCS", wcsServer.URL+"/wcs", "", nil)
			Expect(errors.As(err, &db.ErrAlreadyExists{})).To(BeTrue())
			services, err := wf.Services(ctx, "", 0, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(services).To(HaveLen(1))
		})

		It("should apply the dataset title filter", func() {
			srv, err = wf.RegisterService(ctx, "WCS", wcsServer.URL+"/wcs", "", map[string]interface{}{"dataset_title_filter": "ortho"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resourceStates(srv)).To(Equal(map[string]common.ResourceState{"ortho_2020": common.StateADDED}))
		})
	})

	Describe("Harvesting a service", func() {
		BeforeEach(func() {
			srv, err = wf.RegisterService(ctx, "WCS", wcsServer.URL+"/wcs", "", nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should find nothing new", func() {
			result, err := wf.HarvestService(ctx, srv.Name)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Empty()).To(BeTrue())
			Expect(resourceStates(srv)).To(Equal(map[string]common.ResourceState{
				"dem_10m":    common.StateUNCHANGED,
				"ortho_2020": common.StateUNCHANGED,
			}))
			Expect(eventQueue.messages).To(HaveLen(2))
		})

		It("should add and delete the resources", func() {
			remote.set(dem, ortho2021)
			result, err := wf.HarvestService(ctx, srv.UUID)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Removed).To(Equal([]string{"ortho_2020"}))
			Expect(result.Added).To(HaveLen(1))
			Expect(result.Added[0].Identifier).To(Equal("ortho_2021"))
			Expect(result.Updated).To(BeEmpty())
			Expect(resourceStates(srv)).To(Equal(map[string]common.ResourceState{
				"dem_10m":    common.StateUNCHANGED,
				"ortho_2021": common.StateADDED,
			}))
			Expect(lastEvent().Result.Removed).To(Equal([]string{"ortho_2020"}))
		})

		It("should mark the orphans as removed if they are not deleted automatically", func() {
			Expect(db.UnitOfWork(ctx, wf, func(tx db.HarvestTxBackend) error {
				record, err := tx.Harvester(ctx, srv.HarvesterID)
				if err != nil {
					return err
				}
				record.DeleteOrphanResources = false
				if record.ID, err = tx.CreateHarvester(ctx, record); err != nil {
					return err
				}
				if err := tx.DeleteService(ctx, srv.UUID); err != nil {
					return err
				}
				srv.HarvesterID = record.ID
				return tx.CreateService(ctx, srv)
			})).To(Succeed())
			_, err := wf.HarvestService(ctx, srv.UUID)
			Expect(err).NotTo(HaveOccurred())

			remote.set(dem)
			_, err = wf.HarvestService(ctx, srv.UUID)
			Expect(err).NotTo(HaveOccurred())
			Expect(resourceStates(srv)).To(Equal(map[string]common.ResourceState{
				"dem_10m":    common.StateUNCHANGED,
				"ortho_2020": common.StateREMOVED,
			}))

			remote.set(dem, ortho2020)
			result, err := wf.HarvestService(ctx, srv.UUID)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Added).To(HaveLen(1))
			Expect(resourceStates(srv)["ortho_2020"]).To(Equal(common.StateADDED))
		})

		It("should update the resources and keep their uuid", func() {
			before, err := wf.ServiceResource(ctx, srv.UUID, "dem_10m")
			Expect(err).NotTo(HaveOccurred())

			remote.set(remoteCoverage{ID: "dem_10m", Title: "DEM 10 meters"}, ortho2020)
			result, err := wf.HarvestService(ctx, srv.UUID)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Updated).To(HaveLen(1))
			Expect(result.Added).To(BeEmpty())

			after, err := wf.ServiceResource(ctx, srv.UUID, "dem_10m")
			Expect(err).NotTo(HaveOccurred())
			Expect(after.State).To(Equal(common.StateUPDATED))
			Expect(after.UUID).To(Equal(before.UUID))
			Expect(after.Descriptor.Title).To(Equal("DEM 10 meters"))
		})

		It("should report an unavailable service", func() {
			remote.down()
			_, err := wf.HarvestService(ctx, srv.UUID)
			Expect(errors.As(err, &wcs.ErrUnreachableService{})).To(BeTrue())
			Expect(service.Temporary(err)).To(BeTrue())

			record, err := wf.Harvester(ctx, srv.HarvesterID)
			Expect(err).NotTo(HaveOccurred())
			Expect(record.Available).To(BeFalse())
			Expect(resourceStates(srv)).To(HaveLen(2))
		})

		It("should fail on an unknown service", func() {
			_, err := wf.HarvestService(ctx, "unknown")
			Expect(errors.As(err, &db.ErrNotFound{})).To(BeTrue())
		})

		It("should probe the service", func() {
			endpoint, err := wf.ProbeService(ctx, srv.UUID)
			Expect(err).NotTo(HaveOccurred())
			Expect(endpoint.CoverageCount).To(Equal(2))
			Expect(endpoint.Version).To(Equal("2.0.1"))
		})
	})

	Describe("Harvesting all the services", func() {
		var other common.Service

		BeforeEach(func() {
			srv, err = wf.RegisterService(ctx, "WCS", wcsServer.URL+"/wcs", "", nil)
			Expect(err).NotTo(HaveOccurred())
			other, err = wf.RegisterService(ctx, "WCS", wcsServer.URL+"/other/wcs", "", nil)
			Expect(err).NotTo(HaveOccurred())
			eventQueue.messages = nil
		})

		It("should harvest every service", func() {
			remote.set(dem)
			Expect(wf.HarvestAll(ctx)).To(Succeed())
			Expect(eventQueue.messages).To(HaveLen(2))
			Expect(resourceStates(srv)).To(HaveLen(1))
			Expect(resourceStates(other)).To(HaveLen(1))
		})

		It("should return the errors", func() {
			remote.down()
			err := wf.HarvestAll(ctx)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("2/2 services failed"))
		})

		It("should handle the harvest requests", func() {
			Expect(wf.HandleHarvestRequest(ctx, []byte(`{"service_id":"`+other.UUID+`"}`))).To(Succeed())
			Expect(eventQueue.messages).To(HaveLen(1))
			Expect(wf.HandleHarvestRequest(ctx, []byte(`{}`))).To(Succeed())
			Expect(eventQueue.messages).To(HaveLen(3))

			err := wf.HandleHarvestRequest(ctx, []byte(`{"service_id":"unknown"}`))
			Expect(service.Fatal(err)).To(BeTrue())
			err = wf.HandleHarvestRequest(ctx, []byte(`service`))
			Expect(service.Fatal(err)).To(BeTrue())
		})
	})
})
