package geometry

import (
	"fmt"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	geomwkt "github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

// geogTolerance is the simplification tolerance of the footprints, in degrees
const geogTolerance = 0.000001

// WorldExtent is used when a coverage advertises no usable bounding box
var WorldExtent = geom.Extent{-180, -90, 180, 90}

// ExtentPolygon returns the closed polygon of the extent (counter-clockwise)
func ExtentPolygon(e geom.Extent) geom.Polygon {
	return geom.Polygon{{
		{e.MinX(), e.MinY()},
		{e.MaxX(), e.MinY()},
		{e.MaxX(), e.MaxY()},
		{e.MinX(), e.MaxY()},
		{e.MinX(), e.MinY()},
	}}
}

// ExtentFeature returns the geojson feature of the polygon of the extent
func ExtentFeature(e geom.Extent, properties map[string]interface{}) geojson.Feature {
	return geojson.Feature{
		Geometry:   geojson.Geometry{Geometry: ExtentPolygon(e)},
		Properties: properties,
	}
}

// ExtentWKT encodes the polygon of the extent
func ExtentWKT(e geom.Extent) (string, error) {
	var shell []geos.Coord
	for _, pt := range ExtentPolygon(e)[0] {
		shell = append(shell, geos.NewCoord(pt[0], pt[1]))
	}
	polygon, err := geos.NewPolygon(shell)
	if err != nil {
		return "", fmt.Errorf("ExtentWKT.NewPolygon: %w", err)
	}
	wkt, err := polygon.ToWKT()
	if err != nil {
		return "", fmt.Errorf("ExtentWKT.ToWKT: %w", err)
	}
	return wkt, nil
}

// Generates a geom.Geometry from a geos.Geometry
func GeosToGeom(g *geos.Geometry) (geom.Geometry, error) {
	wkt, err := g.ToWKT()
	if err != nil {
		return nil, fmt.Errorf("GeosToGeom.ToWKT: %w", err)
	}
	geometry, err := geomwkt.DecodeString(wkt)
	if err != nil {
		return nil, fmt.Errorf("GeosToGeom.DecodeString: %w", err)
	}

	return geometry, nil
}

// UnionEnvelopeWKT merges the footprints and returns the WKT of their envelope
func UnionEnvelopeWKT(wkts []string) (string, error) {
	if len(wkts) == 0 {
		return "", nil
	}
	var geoms []*geos.Geometry
	for _, wkt := range wkts {
		geo, err := geos.FromWKT(wkt)
		if err != nil {
			return "", fmt.Errorf("UnionEnvelopeWKT.FromWKT: %w", err)
		}
		geoms = append(geoms, geo)
	}
	union, err := Union(geoms, geogTolerance)
	if err != nil {
		return "", fmt.Errorf("UnionEnvelopeWKT.%w", err)
	}
	envelope, err := union.Envelope()
	if err != nil {
		return "", fmt.Errorf("UnionEnvelopeWKT.Envelope: %w", err)
	}
	wkt, err := envelope.ToWKT()
	if err != nil {
		return "", fmt.Errorf("UnionEnvelopeWKT.ToWKT: %w", err)
	}
	return wkt, nil
}

func Union(geoms []*geos.Geometry, tolerance float64) (*geos.Geometry, error) {
	aoi, err := UnaryUnion(geoms)
	if err == nil {
		if aoi, err = aoi.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		return aoi, nil
	}
	// Union all failed, retry one by one with simplify
	aoi = nil
	for _, g := range geoms {
		if g, err = g.Simplify(tolerance); err != nil {
			return nil, fmt.Errorf("Union.Simplify: %w", err)
		}
		if aoi == nil {
			aoi = g
			continue
		}
		if aoi, err = g.Union(aoi); err != nil {
			return nil, fmt.Errorf("Union: %w", err)
		}
	}
	return aoi, nil
}

func UnaryUnion(geoms []*geos.Geometry) (*geos.Geometry, error) {
	aoi, err := geos.NewCollection(geos.MULTIPOLYGON, geoms...)
	if err != nil {
		return nil, fmt.Errorf("UnaryUnion.NewCollection: %w", err)
	}
	if aoi, err = aoi.UnaryUnion(); err != nil {
		return nil, fmt.Errorf("UnaryUnion.UnaryUnion: %w", err)
	}
	return aoi, nil
}
