package wcs

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/airbusgeo/wcs-remote-service/common"
	"golang.org/x/net/html/charset"
)

// Identification is the identification section of a capabilities document
type Identification struct {
	Title    string
	Abstract string
	Keywords []string
	Version  string
}

// Provider is the service provider section of a capabilities document
type Provider struct {
	Name    string
	Site    string
	Contact common.Contact
}

// BoundingBox is a bounding box expressed in the given CRS
type BoundingBox struct {
	CRS  string
	BBox common.BBox
}

// CoverageSummary is the description of a coverage in the capabilities document
type CoverageSummary struct {
	ID               string
	Title            string
	Abstract         string
	Keywords         []string
	WGS84BoundingBox *common.BBox
	BoundingBoxes    []BoundingBox
	SupportedCRS     []string
	SupportedFormats []string
}

// Capabilities is the parsed GetCapabilities document, whatever the version of the protocol
type Capabilities struct {
	URL            string
	Version        string
	Identification Identification
	Provider       Provider
	// Formats supported by the service (2.x: ServiceMetadata)
	Formats []string
	// Contents in the order of the document
	Contents []CoverageSummary
}

// Coverage returns the summary of the coverage with the given id
func (c *Capabilities) Coverage(id string) (CoverageSummary, bool) {
	for _, cs := range c.Contents {
		if cs.ID == id {
			return cs, true
		}
	}
	return CoverageSummary{}, false
}

// ows (1.1, 2.x) capabilities

type owsKeywords struct {
	Keyword []string `xml:"Keyword"`
}

type owsBoundingBox struct {
	CRS         string `xml:"crs,attr"`
	Dimensions  string `xml:"dimensions,attr"`
	LowerCorner string `xml:"LowerCorner"`
	UpperCorner string `xml:"UpperCorner"`
}

// bbox returns the spatial extent of the bounding box, with the same axis handling as the gml envelopes
// (time first in 3-D bounding boxes). latLon swaps the spatial axes.
func (b owsBoundingBox) bbox(latLon bool) (common.BBox, error) {
	env, err := gmlEnvelope{
		SRSName:      b.CRS,
		SRSDimension: strings.TrimSpace(b.Dimensions),
		LowerCorner:  b.LowerCorner,
		UpperCorner:  b.UpperCorner,
	}.parse()
	if err != nil {
		return common.BBox{}, err
	}
	if latLon {
		return common.BBox{env.BBox[1], env.BBox[0], env.BBox[3], env.BBox[2]}, nil
	}
	return env.BBox, nil
}

type owsAddress struct {
	DeliveryPoint         []string `xml:"DeliveryPoint"`
	City                  string   `xml:"City"`
	AdministrativeArea    string   `xml:"AdministrativeArea"`
	PostalCode            string   `xml:"PostalCode"`
	Country               string   `xml:"Country"`
	ElectronicMailAddress []string `xml:"ElectronicMailAddress"`
}

type owsServiceProvider struct {
	ProviderName string `xml:"ProviderName"`
	ProviderSite struct {
		Href string `xml:"http://www.w3.org/1999/xlink href,attr"`
	} `xml:"ProviderSite"`
	ServiceContact struct {
		IndividualName string `xml:"IndividualName"`
		PositionName   string `xml:"PositionName"`
		Role           string `xml:"Role"`
		ContactInfo    struct {
			Voice   []string   `xml:"Phone>Voice"`
			Address owsAddress `xml:"Address"`
		} `xml:"ContactInfo"`
	} `xml:"ServiceContact"`
}

type owsCoverageSummary struct {
	CoverageID        string               `xml:"CoverageId"`
	Identifier        string               `xml:"Identifier"`
	Title             string               `xml:"Title"`
	Abstract          string               `xml:"Abstract"`
	Keywords          []owsKeywords        `xml:"Keywords"`
	WGS84BoundingBox  []owsBoundingBox     `xml:"WGS84BoundingBox"`
	BoundingBox       []owsBoundingBox     `xml:"BoundingBox"`
	SupportedCRS      []string             `xml:"SupportedCRS"`
	SupportedFormat   []string             `xml:"SupportedFormat"`
	CoverageSummaries []owsCoverageSummary `xml:"CoverageSummary"`
}

type owsCapabilities struct {
	Version               string `xml:"version,attr"`
	ServiceIdentification struct {
		Title              string        `xml:"Title"`
		Abstract           string        `xml:"Abstract"`
		Keywords           []owsKeywords `xml:"Keywords"`
		ServiceTypeVersion []string      `xml:"ServiceTypeVersion"`
	} `xml:"ServiceIdentification"`
	ServiceProvider owsServiceProvider `xml:"ServiceProvider"`
	ServiceMetadata struct {
		FormatSupported []string `xml:"formatSupported"`
	} `xml:"ServiceMetadata"`
	Contents struct {
		CoverageSummaries []owsCoverageSummary `xml:"CoverageSummary"`
		SupportedFormat   []string             `xml:"SupportedFormat"`
	} `xml:"Contents"`
}

// 1.0.0 capabilities

type wcs10Keywords struct {
	Keyword []string `xml:"keyword"`
}

type wcs10Envelope struct {
	SRSName string   `xml:"srsName,attr"`
	Pos     []string `xml:"pos"`
}

type wcs10Capabilities struct {
	Version string `xml:"version,attr"`
	Service struct {
		Name             string          `xml:"name"`
		Label            string          `xml:"label"`
		Description      string          `xml:"description"`
		Keywords         []wcs10Keywords `xml:"keywords"`
		ResponsibleParty struct {
			IndividualName   string `xml:"individualName"`
			OrganisationName string `xml:"organisationName"`
			PositionName     string `xml:"positionName"`
			ContactInfo      struct {
				Voice   []string `xml:"phone>voice"`
				Address struct {
					DeliveryPoint         []string `xml:"deliveryPoint"`
					City                  string   `xml:"city"`
					AdministrativeArea    string   `xml:"administrativeArea"`
					PostalCode            string   `xml:"postalCode"`
					Country               string   `xml:"country"`
					ElectronicMailAddress []string `xml:"electronicMailAddress"`
				} `xml:"address"`
			} `xml:"contactInfo"`
		} `xml:"responsibleParty"`
	} `xml:"Service"`
	ContentMetadata struct {
		CoverageOfferingBriefs []struct {
			Name           string          `xml:"name"`
			Label          string          `xml:"label"`
			Description    string          `xml:"description"`
			Keywords       []wcs10Keywords `xml:"keywords"`
			LonLatEnvelope wcs10Envelope   `xml:"lonLatEnvelope"`
		} `xml:"CoverageOfferingBrief"`
	} `xml:"ContentMetadata"`
}

func newDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	return d
}

// rootElement returns the first start element of the document
func rootElement(body []byte) (xml.StartElement, error) {
	d := newDecoder(bytes.NewReader(body))
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return xml.StartElement{}, fmt.Errorf("no root element")
			}
			return xml.StartElement{}, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

var wcsNamespaces = map[string]struct{}{
	"http://www.opengis.net/wcs":       {},
	"http://www.opengis.net/wcs/1.1":   {},
	"http://www.opengis.net/wcs/1.1.1": {},
	"http://www.opengis.net/wcs/2.0":   {},
	"http://www.opengis.net/wcs/2.1":   {},
}

// wcsRoot returns true if the root element belongs to a WCS namespace.
// Only the 1.0 root element is accepted without namespace.
func wcsRoot(name xml.Name) bool {
	if name.Space == "" {
		return name.Local == "WCS_Capabilities"
	}
	_, ok := wcsNamespaces[strings.TrimSuffix(name.Space, "/")]
	return ok
}

func attr(se xml.StartElement, name string) string {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// exceptionText extracts the messages of an OWS exception report
func exceptionText(body []byte) string {
	report := struct {
		Exceptions []struct {
			Code  string   `xml:"exceptionCode,attr"`
			Texts []string `xml:"ExceptionText"`
			Text  string   `xml:",chardata"`
		} `xml:"Exception"`
		ServiceExceptions []string `xml:"ServiceException"`
	}{}
	if err := newDecoder(bytes.NewReader(body)).Decode(&report); err != nil {
		return ""
	}
	var msgs []string
	for _, e := range report.Exceptions {
		msg := strings.TrimSpace(strings.Join(e.Texts, " "))
		if msg == "" {
			msg = strings.TrimSpace(e.Text)
		}
		if e.Code != "" {
			msg = e.Code + ": " + msg
		}
		msgs = append(msgs, msg)
	}
	for _, e := range report.ServiceExceptions {
		msgs = append(msgs, strings.TrimSpace(e))
	}
	return strings.Join(msgs, "; ")
}

// ParseCapabilities parses a GetCapabilities document of any supported version.
// It returns ErrUnreachableService if the document is not a WCS capabilities document,
// ErrMalformedCapabilities if it cannot be decoded and ErrUnsupportedVersion if the version is not handled.
func ParseCapabilities(url string, body []byte) (*Capabilities, error) {
	root, err := rootElement(body)
	if err != nil {
		return nil, ErrMalformedCapabilities{URL: url, Err: err}
	}
	switch root.Name.Local {
	case "Capabilities", "WCS_Capabilities":
	case "ExceptionReport", "ServiceExceptionReport":
		return nil, ErrUnreachableService{URL: url, Err: fmt.Errorf("service exception: %s", exceptionText(body))}
	default:
		return nil, ErrUnreachableService{URL: url, Err: fmt.Errorf("not a WCS capabilities document (root element: %s)", root.Name.Local)}
	}
	if !wcsRoot(root.Name) {
		return nil, ErrUnreachableService{URL: url, Err: fmt.Errorf("not a WCS capabilities document (namespace: %q)", root.Name.Space)}
	}

	version := attr(root, "version")
	if !SupportedVersion(version) {
		return nil, ErrUnsupportedVersion{URL: url, Version: version}
	}

	var caps *Capabilities
	if root.Name.Local == "WCS_Capabilities" || strings.HasPrefix(version, "1.0") {
		caps, err = parseCapabilities10(body)
	} else {
		caps, err = parseOWSCapabilities(body)
	}
	if err != nil {
		return nil, ErrMalformedCapabilities{URL: url, Err: err}
	}
	caps.URL = url
	caps.Version = version
	if caps.Identification.Version == "" {
		caps.Identification.Version = version
	}
	return caps, nil
}

func parseOWSCapabilities(body []byte) (*Capabilities, error) {
	doc := owsCapabilities{}
	if err := newDecoder(bytes.NewReader(body)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	sp := doc.ServiceProvider
	caps := Capabilities{
		Identification: Identification{
			Title:    strings.TrimSpace(doc.ServiceIdentification.Title),
			Abstract: strings.TrimSpace(doc.ServiceIdentification.Abstract),
			Keywords: flattenKeywords(doc.ServiceIdentification.Keywords),
			Version:  doc.Version,
		},
		Provider: Provider{
			Name: strings.TrimSpace(sp.ProviderName),
			Site: sp.ProviderSite.Href,
			Contact: common.Contact{
				Role:                      strings.TrimSpace(sp.ServiceContact.Role),
				Name:                      strings.TrimSpace(sp.ServiceContact.IndividualName),
				Organization:              strings.TrimSpace(sp.ProviderName),
				Position:                  strings.TrimSpace(sp.ServiceContact.PositionName),
				PhoneVoice:                first(sp.ServiceContact.ContactInfo.Voice),
				AddressDeliveryPoint:      first(sp.ServiceContact.ContactInfo.Address.DeliveryPoint),
				AddressCity:               strings.TrimSpace(sp.ServiceContact.ContactInfo.Address.City),
				AddressAdministrativeArea: strings.TrimSpace(sp.ServiceContact.ContactInfo.Address.AdministrativeArea),
				AddressPostalCode:         strings.TrimSpace(sp.ServiceContact.ContactInfo.Address.PostalCode),
				AddressCountry:            strings.TrimSpace(sp.ServiceContact.ContactInfo.Address.Country),
				AddressEmail:              first(sp.ServiceContact.ContactInfo.Address.ElectronicMailAddress),
			},
		},
		Formats: trimAll(append(doc.ServiceMetadata.FormatSupported, doc.Contents.SupportedFormat...)),
	}

	var walk func(summaries []owsCoverageSummary) error
	walk = func(summaries []owsCoverageSummary) error {
		for _, s := range summaries {
			id := strings.TrimSpace(s.CoverageID)
			if id == "" {
				id = strings.TrimSpace(s.Identifier)
			}
			if id != "" {
				cs, err := owsCoverageSummaryToSummary(id, s)
				if err != nil {
					return fmt.Errorf("coverage %s: %w", id, err)
				}
				caps.Contents = append(caps.Contents, cs)
			}
			if err := walk(s.CoverageSummaries); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(doc.Contents.CoverageSummaries); err != nil {
		return nil, err
	}
	return &caps, nil
}

func owsCoverageSummaryToSummary(id string, s owsCoverageSummary) (CoverageSummary, error) {
	cs := CoverageSummary{
		ID:               id,
		Title:            strings.TrimSpace(s.Title),
		Abstract:         strings.TrimSpace(s.Abstract),
		Keywords:         flattenKeywords(s.Keywords),
		SupportedCRS:     trimAll(s.SupportedCRS),
		SupportedFormats: trimAll(s.SupportedFormat),
	}
	if len(s.WGS84BoundingBox) > 0 {
		bbox, err := s.WGS84BoundingBox[0].bbox(false)
		if err != nil {
			return cs, fmt.Errorf("WGS84BoundingBox: %w", err)
		}
		cs.WGS84BoundingBox = &bbox
	}
	for _, b := range s.BoundingBox {
		bbox, err := b.bbox(latLonAxisOrder(b.CRS))
		if err != nil {
			return cs, fmt.Errorf("BoundingBox: %w", err)
		}
		cs.BoundingBoxes = append(cs.BoundingBoxes, BoundingBox{CRS: strings.TrimSpace(b.CRS), BBox: bbox})
	}
	return cs, nil
}

func parseCapabilities10(body []byte) (*Capabilities, error) {
	doc := wcs10Capabilities{}
	if err := newDecoder(bytes.NewReader(body)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	rp := doc.Service.ResponsibleParty
	title := strings.TrimSpace(doc.Service.Label)
	if title == "" {
		title = strings.TrimSpace(doc.Service.Name)
	}
	caps := Capabilities{
		Identification: Identification{
			Title:    title,
			Abstract: strings.TrimSpace(doc.Service.Description),
			Keywords: flattenKeywords10(doc.Service.Keywords),
			Version:  doc.Version,
		},
		Provider: Provider{
			Name: strings.TrimSpace(rp.OrganisationName),
			Contact: common.Contact{
				Name:                      strings.TrimSpace(rp.IndividualName),
				Organization:              strings.TrimSpace(rp.OrganisationName),
				Position:                  strings.TrimSpace(rp.PositionName),
				PhoneVoice:                first(rp.ContactInfo.Voice),
				AddressDeliveryPoint:      first(rp.ContactInfo.Address.DeliveryPoint),
				AddressCity:               strings.TrimSpace(rp.ContactInfo.Address.City),
				AddressAdministrativeArea: strings.TrimSpace(rp.ContactInfo.Address.AdministrativeArea),
				AddressPostalCode:         strings.TrimSpace(rp.ContactInfo.Address.PostalCode),
				AddressCountry:            strings.TrimSpace(rp.ContactInfo.Address.Country),
				AddressEmail:              first(rp.ContactInfo.Address.ElectronicMailAddress),
			},
		},
	}
	for _, brief := range doc.ContentMetadata.CoverageOfferingBriefs {
		id := strings.TrimSpace(brief.Name)
		if id == "" {
			continue
		}
		cs := CoverageSummary{
			ID:       id,
			Title:    strings.TrimSpace(brief.Label),
			Abstract: strings.TrimSpace(brief.Description),
			Keywords: flattenKeywords10(brief.Keywords),
		}
		if pos := brief.LonLatEnvelope.Pos; len(pos) >= 2 {
			bbox, err := parseCorners(pos[0], pos[1])
			if err != nil {
				return nil, fmt.Errorf("coverage %s: lonLatEnvelope: %w", id, err)
			}
			cs.WGS84BoundingBox = &bbox
		}
		caps.Contents = append(caps.Contents, cs)
	}
	return &caps, nil
}

// parseCorners parses "x y" corners into a bbox
func parseCorners(lower, upper string) (common.BBox, error) {
	lc, err := parseFloats(lower)
	if err != nil {
		return common.BBox{}, err
	}
	uc, err := parseFloats(upper)
	if err != nil {
		return common.BBox{}, err
	}
	if len(lc) < 2 || len(uc) < 2 {
		return common.BBox{}, fmt.Errorf("expecting 2 coordinates, got %q and %q", lower, upper)
	}
	return common.BBox{lc[0], lc[1], uc[0], uc[1]}, nil
}

func parseFloats(s string) ([]float64, error) {
	var fs []float64
	for _, f := range strings.Fields(s) {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parseFloat: %w", err)
		}
		fs = append(fs, v)
	}
	return fs, nil
}

// latLonAxisOrder returns true for geographic CRS whose authority defines a latitude-first axis order
// The legacy "EPSG:XXXX" notation keeps the x/y order.
func latLonAxisOrder(crs string) bool {
	code := common.CRSCode(crs)
	if code == strings.TrimSpace(crs) {
		return false
	}
	switch code {
	case "EPSG:4326", "EPSG:4258", "EPSG:4269":
		return true
	}
	return false
}

func flattenKeywords(kws []owsKeywords) []string {
	var keywords []string
	for _, kw := range kws {
		keywords = append(keywords, trimAll(kw.Keyword)...)
	}
	return keywords
}

func flattenKeywords10(kws []wcs10Keywords) []string {
	var keywords []string
	for _, kw := range kws {
		keywords = append(keywords, trimAll(kw.Keyword)...)
	}
	return keywords
}

// trimAll trims the strings and removes the empty ones
func trimAll(ss []string) []string {
	var res []string
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			res = append(res, s)
		}
	}
	return res
}

func first(ss []string) string {
	if ss = trimAll(ss); len(ss) > 0 {
		return ss[0]
	}
	return ""
}
