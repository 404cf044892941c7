package wcs

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/airbusgeo/wcs-remote-service/common"
)

// Envelope is a bounded extent of a coverage, as described by DescribeCoverage
type Envelope struct {
	SRSName    string
	Dimension  int
	AxisLabels []string
	// BBox is always in x/y order (lon/lat for geographic CRS)
	BBox common.BBox
	// TemporalExtent is set for 3D envelopes (time first): raw begin/end values
	TemporalExtent *[2]string
}

// CoverageDescription is the parsed DescribeCoverage document of one coverage
type CoverageDescription struct {
	ID            string
	Envelopes     []Envelope
	NativeFormats []string
}

var (
	xAxisLabels = map[string]struct{}{"longitude": {}, "lon": {}, "long": {}, "e": {}, "w": {}, "x": {}}
	yAxisLabels = map[string]struct{}{"latitude": {}, "lat": {}, "n": {}, "s": {}, "y": {}}
)

type gmlEnvelope struct {
	SRSName      string `xml:"srsName,attr"`
	SRSDimension string `xml:"srsDimension,attr"`
	AxisLabels   string `xml:"axisLabels,attr"`
	LowerCorner  string `xml:"lowerCorner"`
	UpperCorner  string `xml:"upperCorner"`
}

type coverageDescriptions struct {
	CoverageDescription []struct {
		CoverageID string `xml:"CoverageId"`
		BoundedBy  struct {
			Envelope               []gmlEnvelope `xml:"Envelope"`
			EnvelopeWithTimePeriod []gmlEnvelope `xml:"EnvelopeWithTimePeriod"`
		} `xml:"boundedBy"`
		NativeFormat []string `xml:"ServiceParameters>nativeFormat"`
	} `xml:"CoverageDescription"`
}

// ParseCoverageDescription parses a WCS 2.x DescribeCoverage document and returns the description of the coverage with the given id.
// If the document describes a single coverage, its id is not checked.
func ParseCoverageDescription(url, coverageID string, body []byte) (*CoverageDescription, error) {
	root, err := rootElement(body)
	if err != nil {
		return nil, ErrMalformedCapabilities{URL: url, Err: err}
	}
	switch root.Name.Local {
	case "CoverageDescriptions":
	case "ExceptionReport", "ServiceExceptionReport":
		return nil, ErrUnreachableService{URL: url, Err: fmt.Errorf("service exception: %s", exceptionText(body))}
	default:
		return nil, ErrMalformedCapabilities{URL: url, Err: fmt.Errorf("not a WCS coverage description (root element: %s)", root.Name.Local)}
	}

	doc := coverageDescriptions{}
	if err := newDecoder(bytes.NewReader(body)).Decode(&doc); err != nil {
		return nil, ErrMalformedCapabilities{URL: url, Err: fmt.Errorf("decode: %w", err)}
	}
	for _, cd := range doc.CoverageDescription {
		if len(doc.CoverageDescription) > 1 && strings.TrimSpace(cd.CoverageID) != coverageID {
			continue
		}
		desc := CoverageDescription{
			ID:            strings.TrimSpace(cd.CoverageID),
			NativeFormats: trimAll(cd.NativeFormat),
		}
		for _, e := range append(cd.BoundedBy.Envelope, cd.BoundedBy.EnvelopeWithTimePeriod...) {
			env, err := e.parse()
			if err != nil {
				return nil, ErrMalformedCapabilities{URL: url, Err: fmt.Errorf("coverage %s: envelope: %w", coverageID, err)}
			}
			desc.Envelopes = append(desc.Envelopes, env)
		}
		return &desc, nil
	}
	return nil, ErrMalformedCapabilities{URL: url, Err: fmt.Errorf("coverage %s is not described", coverageID)}
}

func (e gmlEnvelope) parse() (Envelope, error) {
	env := Envelope{
		SRSName:    strings.TrimSpace(e.SRSName),
		AxisLabels: strings.Fields(strings.ToLower(e.AxisLabels)),
	}
	lc, uc := strings.Fields(e.LowerCorner), strings.Fields(e.UpperCorner)
	env.Dimension = len(lc)
	if e.SRSDimension != "" {
		d, err := strconv.Atoi(strings.TrimSpace(e.SRSDimension))
		if err != nil {
			return env, fmt.Errorf("srsDimension: %w", err)
		}
		env.Dimension = d
	}
	if len(lc) < env.Dimension || len(uc) < env.Dimension || len(lc) < 2 || len(uc) < 2 {
		return env, fmt.Errorf("expecting %d coordinates, got %q and %q", env.Dimension, e.LowerCorner, e.UpperCorner)
	}

	// x, y: indices of the spatial axes
	x, y := 0, 1
	switch env.Dimension {
	case 2:
		if env.isLatLon(0, 1) {
			x, y = 1, 0
		}
	case 3:
		// Time is the first axis
		x, y = 1, 2
		if env.isLatLon(1, 2) {
			x, y = 2, 1
		}
		env.TemporalExtent = &[2]string{strings.ReplaceAll(lc[0], `"`, ""), strings.ReplaceAll(uc[0], `"`, "")}
	}

	var err error
	coords := []string{lc[x], lc[y], uc[x], uc[y]}
	for i, c := range coords {
		if env.BBox[i], err = strconv.ParseFloat(c, 64); err != nil {
			return env, fmt.Errorf("parseFloat: %w", err)
		}
	}
	return env, nil
}

func (e Envelope) isLatLon(i, j int) bool {
	if len(e.AxisLabels) <= j {
		return false
	}
	_, isY := yAxisLabels[e.AxisLabels[i]]
	_, isX := xAxisLabels[e.AxisLabels[j]]
	return isY && isX
}
