package pg_test

import (
	"errors"
	"time"

	"github.com/airbusgeo/wcs-remote-service/common"
	db "github.com/airbusgeo/wcs-remote-service/interface/database"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Backend", func() {
	var (
		harvesterID int
		service     common.Service
		err         error
	)

	createService := func(url string) (common.Service, int) {
		id, err := backend.CreateHarvester(ctx, common.HarvesterRecord{
			Name:                  common.ServiceName(url),
			RemoteURL:             url,
			HarvesterType:         common.HarvesterTypeWCS,
			Config:                map[string]interface{}{"dataset_title_filter": "dem"},
			DeleteOrphanResources: true,
		})
		Expect(err).NotTo(HaveOccurred())
		srv := common.Service{
			UUID:         uuid.New().String(),
			BaseURL:      url,
			Type:         common.ServiceTypeWCS,
			Method:       common.IndexingMethodIndexed,
			Version:      "2.0.1",
			Name:         common.ServiceName(url),
			Title:        "Elevation",
			Abstract:     common.NotProvided,
			MetadataOnly: true,
			HarvesterID:  id,
			Created:      time.Now().UTC().Truncate(time.Millisecond),
		}
		Expect(backend.CreateService(ctx, srv)).To(Succeed())
		return srv, id
	}

	BeforeEach(func() {
		requireDatabase()
		resetDatabase()
		service, harvesterID = createService("https://example.org/wcs")
	})

	Describe("Services", func() {
		It("should be retrieved by uuid or name", func() {
			s, err := backend.Service(ctx, service.UUID)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Name).To(Equal(service.Name))
			Expect(s.Keywords).To(BeEmpty())
			s, err = backend.Service(ctx, service.Name)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.UUID).To(Equal(service.UUID))
		})
		It("should not be created twice", func() {
			err = backend.CreateService(ctx, service)
			Expect(errors.As(err, &db.ErrAlreadyExists{})).To(BeTrue())
		})
		It("should be listed", func() {
			createService("https://other.org/wcs")
			services, err := backend.Services(ctx, "", 0, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(services).To(HaveLen(2))
			services, err = backend.Services(ctx, "*other*", 0, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(services).To(HaveLen(1))
		})
		It("should be deleted with its harvester", func() {
			Expect(backend.DeleteService(ctx, service.UUID)).To(Succeed())
			_, err = backend.Harvester(ctx, harvesterID)
			Expect(errors.As(err, &db.ErrNotFound{})).To(BeTrue())
			err = backend.DeleteService(ctx, service.UUID)
			Expect(errors.As(err, &db.ErrNotFound{})).To(BeTrue())
		})
	})

	Describe("Harvesters", func() {
		It("should store the configuration and the availability", func() {
			now := time.Now().UTC().Truncate(time.Second)
			Expect(backend.UpdateHarvesterAvailability(ctx, harvesterID, true, now)).To(Succeed())
			h, err := backend.Harvester(ctx, harvesterID)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.Config).To(Equal(map[string]interface{}{"dataset_title_filter": "dem"}))
			Expect(h.Available).To(BeTrue())
			Expect(h.DeleteOrphanResources).To(BeTrue())
			Expect(*h.LastChecked).To(BeTemporally("==", now))
		})
	})

	Describe("Resources", func() {
		bbox := common.BBox{1, 43, 2, 44}
		dem := common.Coverage{Identifier: "dem_10m", Title: "DEM", BoundingBox: &bbox, NativeCRS: "EPSG:4326", Formats: []string{"image/tiff"}}
		ortho := common.Coverage{Identifier: "ortho_2020", Title: "Ortho"}

		BeforeEach(func() {
			Expect(backend.UpsertResource(ctx, harvesterID, dem, common.StateADDED)).To(Succeed())
			Expect(backend.UpsertResource(ctx, harvesterID, ortho, common.StateADDED)).To(Succeed())
		})

		It("should be retrieved", func() {
			r, err := backend.Resource(ctx, harvesterID, "dem_10m")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Coverage).To(Equal(dem))
			Expect(r.State).To(Equal(common.StateADDED))
			Expect(r.Descriptor).To(BeNil())

			_, err = backend.Resource(ctx, harvesterID, "unknown")
			Expect(errors.As(err, &db.ErrNotFound{})).To(BeTrue())
		})

		It("should be updated", func() {
			updated := dem
			updated.Title = "DEM 10m"
			Expect(backend.UpsertResource(ctx, harvesterID, updated, common.StateUPDATED)).To(Succeed())
			r, err := backend.Resource(ctx, harvesterID, "dem_10m")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Title).To(Equal("DEM 10m"))
			Expect(r.State).To(Equal(common.StateUPDATED))
		})

		It("should be filtered by state", func() {
			Expect(backend.SetResourcesState(ctx, harvesterID, []string{"ortho_2020"}, common.StateREMOVED)).To(Succeed())
			resources, err := backend.Resources(ctx, harvesterID, []common.ResourceState{common.StateADDED, common.StateUNCHANGED}, 0, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(resources).To(HaveLen(1))
			Expect(resources[0].Identifier).To(Equal("dem_10m"))

			resources, err = backend.Resources(ctx, harvesterID, nil, 0, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resources).To(HaveLen(1))
		})

		It("should store the descriptor", func() {
			descriptor := common.ResourceDescriptor{UUID: uuid.New().String(), Name: "dem_10m", BBox: bbox, CRS: "EPSG:4326"}
			Expect(backend.SetResourceDescriptor(ctx, harvesterID, "dem_10m", descriptor)).To(Succeed())
			r, err := backend.Resource(ctx, harvesterID, "dem_10m")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.UUID).To(Equal(descriptor.UUID))
			Expect(r.Descriptor).NotTo(BeNil())
			Expect(r.Descriptor.BBox).To(Equal(bbox))
		})

		It("should be deleted in a unit of work", func() {
			err := db.UnitOfWork(ctx, backend, func(tx db.HarvestTxBackend) error {
				return tx.DeleteResources(ctx, harvesterID, []string{"dem_10m", "ortho_2020"})
			})
			Expect(err).NotTo(HaveOccurred())
			resources, err := backend.Resources(ctx, harvesterID, nil, 0, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(resources).To(BeEmpty())
		})

		It("should be rollbacked if the unit of work fails", func() {
			err := db.UnitOfWork(ctx, backend, func(tx db.HarvestTxBackend) error {
				if err := tx.DeleteResources(ctx, harvesterID, []string{"dem_10m"}); err != nil {
					return err
				}
				return errors.New("failure")
			})
			Expect(err).To(HaveOccurred())
			_, err = backend.Resource(ctx, harvesterID, "dem_10m")
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
