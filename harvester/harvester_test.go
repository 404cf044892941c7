package harvester_test

import (
	"context"
	"errors"
	"time"

	"github.com/airbusgeo/wcs-remote-service/common"
	"github.com/airbusgeo/wcs-remote-service/harvester"
	"github.com/airbusgeo/wcs-remote-service/interface/ows/wcs"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Harvester", func() {
	var (
		ctx    = context.Background()
		client *MokeWCSClient
		h      *harvester.Harvester
		known  []common.Coverage
		result common.HarvestResult
		err    error
	)
	remoteURL := "https://example.org/wcs"

	summary := func(id, title string) wcs.CoverageSummary {
		return wcs.CoverageSummary{
			ID:               id,
			Title:            title,
			Abstract:         "abstract of " + id,
			WGS84BoundingBox: &common.BBox{1, 43, 2, 44},
			SupportedFormats: []string{"image/tiff", "image/png"},
		}
	}
	capabilities := func(summaries ...wcs.CoverageSummary) *wcs.Capabilities {
		return &wcs.Capabilities{
			URL:      remoteURL,
			Version:  "2.0.1",
			Provider: wcs.Provider{Name: "Survey", Contact: common.Contact{Name: "Jane Doe", Organization: "Survey"}},
			Contents: summaries,
		}
	}
	identifiers := func(coverages []common.Coverage) []string {
		ids := []string{}
		for _, c := range coverages {
			ids = append(ids, c.Identifier)
		}
		return ids
	}

	BeforeEach(func() {
		client = &MokeWCSClient{capabilities: capabilities(summary("dem_10m", "DEM"), summary("ortho_2020", "Ortho 2020"))}
		h = harvester.New(remoteURL, 1, client, harvester.Config{})
	})

	Describe("Harvesting", func() {
		JustBeforeEach(func() {
			result, err = h.Harvest(ctx, known)
		})

		Context("for the first time", func() {
			BeforeEach(func() {
				known = nil
			})
			It("should add all the coverages", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(identifiers(result.Added)).To(Equal([]string{"dem_10m", "ortho_2020"}))
				Expect(result.Updated).To(BeEmpty())
				Expect(result.Removed).To(BeEmpty())
			})
		})

		Context("twice with identical coverages", func() {
			BeforeEach(func() {
				first, err := h.Harvest(ctx, nil)
				Expect(err).NotTo(HaveOccurred())
				known = first.Added
			})
			It("should report nothing", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Empty()).To(BeTrue())
			})
		})

		Context("when a coverage is replaced", func() {
			BeforeEach(func() {
				first, err := h.Harvest(ctx, nil)
				Expect(err).NotTo(HaveOccurred())
				known = first.Added
				client.capabilities = capabilities(summary("dem_10m", "DEM"), summary("ortho_2021", "Ortho 2021"))
			})
			It("should add the new one and remove the old one", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(identifiers(result.Added)).To(Equal([]string{"ortho_2021"}))
				Expect(result.Removed).To(Equal([]string{"ortho_2020"}))
				Expect(result.Updated).To(BeEmpty())
			})
		})

		Context("when the title of a coverage changes", func() {
			BeforeEach(func() {
				first, err := h.Harvest(ctx, nil)
				Expect(err).NotTo(HaveOccurred())
				known = first.Added
				client.capabilities = capabilities(summary("dem_10m", "DEM 10m"), summary("ortho_2020", "Ortho 2020"))
			})
			It("should update it", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(identifiers(result.Updated)).To(Equal([]string{"dem_10m"}))
				Expect(result.Updated[0].Title).To(Equal("DEM 10m"))
				Expect(result.Added).To(BeEmpty())
				Expect(result.Removed).To(BeEmpty())
			})
		})

		Context("when the abstract of a coverage changes", func() {
			BeforeEach(func() {
				first, err := h.Harvest(ctx, nil)
				Expect(err).NotTo(HaveOccurred())
				known = first.Added
				ortho := summary("ortho_2020", "Ortho 2020")
				ortho.Abstract = "new abstract"
				client.capabilities = capabilities(summary("dem_10m", "DEM"), ortho)
			})
			It("should update it", func() {
				Expect(identifiers(result.Updated)).To(Equal([]string{"ortho_2020"}))
				Expect(result.Added).To(BeEmpty())
			})
		})

		Context("when all the coverages disappear", func() {
			BeforeEach(func() {
				first, err := h.Harvest(ctx, nil)
				Expect(err).NotTo(HaveOccurred())
				known = first.Added
				client.capabilities = capabilities()
			})
			It("should remove them", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Removed).To(Equal([]string{"dem_10m", "ortho_2020"}))
			})
		})

		Context("when the service is unreachable", func() {
			BeforeEach(func() {
				known = nil
				client.err = wcs.ErrUnreachableService{URL: remoteURL, Err: errors.New("connection refused")}
			})
			It("should fail with the same error", func() {
				var unreachable wcs.ErrUnreachableService
				Expect(errors.As(err, &unreachable)).To(BeTrue())
				Expect(unreachable.URL).To(Equal(remoteURL))
			})
		})

		Context("with a title filter", func() {
			BeforeEach(func() {
				known = nil
				h.Config.DatasetTitleFilter = "ORTHO"
			})
			It("should only keep the matching coverages", func() {
				Expect(identifiers(result.Added)).To(Equal([]string{"ortho_2020"}))
			})
		})
	})

	Describe("Comparing coverages", func() {
		bbox := common.BBox{1, 2, 3, 4}
		base := common.Coverage{Identifier: "dem", Title: "DEM", BoundingBox: &bbox, NativeCRS: "EPSG:2154", Formats: []string{"a", "b"}}

		It("should ignore the order of the formats and the keywords", func() {
			other := base
			other.Formats = []string{"b", "a"}
			other.Keywords = []string{"elevation"}
			Expect(harvester.SameCoverage(base, other)).To(BeTrue())
		})
		It("should detect a new bounding box", func() {
			other := base
			other.BoundingBox = &common.BBox{1, 2, 3, 5}
			Expect(harvester.SameCoverage(base, other)).To(BeFalse())
			other.BoundingBox = nil
			Expect(harvester.SameCoverage(base, other)).To(BeFalse())
		})
		It("should detect a new crs", func() {
			other := base
			other.NativeCRS = "EPSG:4326"
			Expect(harvester.SameCoverage(base, other)).To(BeFalse())
		})
	})

	Describe("Listing resources", func() {
		It("should list all the coverages at offset 0", func() {
			client.capabilities.Contents[1].Title = ""
			client.capabilities.Contents[1].Abstract = ""
			resources, err := h.ListResources(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(resources).To(Equal([]common.BriefResource{
				{UniqueIdentifier: "dem_10m", Title: "DEM", Abstract: "abstract of dem_10m", ResourceType: "layers"},
				{UniqueIdentifier: "ortho_2020", Title: "ortho_2020", Abstract: common.NotProvided, ResourceType: "layers"},
			}))
		})
		It("should return nothing at another offset", func() {
			resources, err := h.ListResources(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(resources).To(BeEmpty())
		})
		It("should count the coverages", func() {
			n, err := h.NumAvailableResources(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})
		It("should not allow copying resources", func() {
			Expect(h.AllowsCopyingResources()).To(BeFalse())
		})
	})

	Describe("Checking availability", func() {
		It("should be available", func() {
			Expect(h.CheckAvailability(ctx, 0)).To(BeTrue())
		})
		It("should not be available without coverages", func() {
			client.capabilities = capabilities()
			Expect(h.CheckAvailability(ctx, time.Second)).To(BeFalse())
		})
		It("should not be available when unreachable", func() {
			client.err = wcs.ErrUnreachableService{URL: remoteURL, Err: errors.New("timeout")}
			Expect(h.CheckAvailability(ctx, time.Second)).To(BeFalse())
		})
	})

	Describe("Getting a resource", func() {
		var resource *common.ResourceDescriptor
		var existingUUID string
		var identifier string

		BeforeEach(func() {
			existingUUID = ""
			identifier = "dem_10m"
		})
		JustBeforeEach(func() {
			resource, err = h.GetResource(ctx, identifier, existingUUID)
		})

		Context("with a WGS84 bounding box", func() {
			BeforeEach(func() {
				client.capabilities.Contents[0].Keywords = []string{"dem", "elevation", "environment"}
			})
			It("should describe the coverage", func() {
				Expect(err).NotTo(HaveOccurred())
				_, err := uuid.Parse(resource.UUID)
				Expect(err).NotTo(HaveOccurred())
				Expect(resource.Name).To(Equal("dem_10m"))
				Expect(resource.Title).To(Equal("DEM"))
				Expect(resource.Category).To(Equal("elevation"))
				Expect(resource.CRS).To(Equal("EPSG:4326"))
				Expect(resource.BBox).To(Equal(common.BBox{1, 43, 2, 44}))
				Expect(resource.SpatialExtentWKT).To(HavePrefix("POLYGON"))
				Expect(resource.TemporalExtent).To(BeNil())
				Expect(resource.Contact.Name).To(Equal("Jane Doe"))
				Expect(resource.AdditionalParameters).To(Equal(map[string]string{
					"alternate": "dem_10m",
					"store":     "httpsexampleorgwcs",
					"workspace": "remoteWorkspace",
					"ows_url":   remoteURL,
					"ptype":     "gxp_wmscsource",
				}))
				Expect(client.describeCalls).To(Equal(0))
			})
		})

		Context("already harvested", func() {
			BeforeEach(func() {
				existingUUID = "05a23a04-82fa-46e0-b9a9-2c25912a305c"
			})
			It("should keep its uuid", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(resource.UUID).To(Equal(existingUUID))
			})
		})

		Context("with a native bounding box only", func() {
			BeforeEach(func() {
				client.capabilities.Contents[0].WGS84BoundingBox = nil
				client.capabilities.Contents[0].BoundingBoxes = []wcs.BoundingBox{{
					CRS:  "http://www.opengis.net/def/crs/EPSG/0/2154",
					BBox: common.BBox{500000, 6200000, 600000, 6300000},
				}}
			})
			It("should use it", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(resource.CRS).To(Equal("EPSG:2154"))
				Expect(resource.BBox).To(Equal(common.BBox{500000, 6200000, 600000, 6300000}))
			})
		})

		Context("described by DescribeCoverage", func() {
			BeforeEach(func() {
				client.capabilities.Contents[0].WGS84BoundingBox = nil
				client.descriptions = map[string]*wcs.CoverageDescription{
					"dem_10m": {ID: "dem_10m", Envelopes: []wcs.Envelope{{
						SRSName:        "http://www.opengis.net/def/crs/EPSG/0/4326",
						Dimension:      3,
						BBox:           common.BBox{1, 43, 2, 44},
						TemporalExtent: &[2]string{"2020-01-01T00:00:00Z", "2020-12-31"},
					}}},
				}
			})
			It("should use the envelope and its temporal extent", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(client.describeCalls).To(Equal(1))
				Expect(resource.CRS).To(Equal("EPSG:4326"))
				Expect(resource.BBox).To(Equal(common.BBox{1, 43, 2, 44}))
				Expect(resource.TemporalExtent).NotTo(BeNil())
				Expect(resource.TemporalExtent[0]).To(BeTemporally("==", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
				Expect(resource.TemporalExtent[1]).To(BeTemporally("==", time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)))
			})
		})

		Context("without any bounding box", func() {
			BeforeEach(func() {
				client.capabilities.Contents[0].WGS84BoundingBox = nil
				client.capabilities.Contents[0].Title = ""
				client.capabilities.Contents[0].Abstract = ""
			})
			It("should use the whole world", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(resource.CRS).To(Equal("EPSG:4326"))
				Expect(resource.BBox).To(Equal(common.BBox{-180, -90, 180, 90}))
				Expect(resource.Title).To(Equal("dem_10m"))
				Expect(resource.Abstract).To(Equal(common.NotProvided))
				Expect(resource.Category).To(BeEmpty())
			})
		})

		Context("that does not exist", func() {
			BeforeEach(func() {
				identifier = "unknown"
			})
			It("should return a not found error", func() {
				Expect(harvester.IsNotFound(err)).To(BeTrue())
			})
		})
	})

	Describe("Configuring", func() {
		It("should validate the configuration", func() {
			h, err := harvester.FromRecord(common.HarvesterRecord{
				ID:        3,
				RemoteURL: remoteURL,
				Config:    map[string]interface{}{"dataset_title_filter": "dem", "topic_categories": []interface{}{"elevation"}},
			}, client)
			Expect(err).NotTo(HaveOccurred())
			Expect(h.HarvesterID).To(Equal(3))
			Expect(h.Config.DatasetTitleFilter).To(Equal("dem"))
			Expect(h.Config.TopicCategories).To(Equal([]string{"elevation"}))
		})
		It("should reject unknown options", func() {
			_, err := harvester.FromRecord(common.HarvesterRecord{
				RemoteURL: remoteURL,
				Config:    map[string]interface{}{"layer_filter": "dem"},
			}, client)
			var invalid harvester.ErrInvalidConfig
			Expect(errors.As(err, &invalid)).To(BeTrue())
		})
		It("should reject invalid types", func() {
			_, err := harvester.ParseConfig(map[string]interface{}{"dataset_title_filter": 3})
			Expect(err).To(HaveOccurred())
		})
		It("should round-trip through the record", func() {
			c := harvester.Config{DatasetTitleFilter: "dem"}
			parsed, err := harvester.ParseConfig(c.ToMap())
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(c))
		})
	})
})
