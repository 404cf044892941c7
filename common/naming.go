package common

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const maxNameLength = 255

var (
	slugInvalidChars = regexp.MustCompile(`[^\w\s-]`)
	slugSeparators   = regexp.MustCompile(`[-\s]+`)
)

// Slugify converts the input to an ascii slug: lowercase alphanumerics, underscores and hyphens
func Slugify(s string) string {
	var ascii strings.Builder
	for _, r := range norm.NFKD.String(s) {
		if r < 128 {
			ascii.WriteRune(r)
		}
	}
	slug := slugInvalidChars.ReplaceAllString(strings.ToLower(ascii.String()), "")
	slug = slugSeparators.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-_")
}

// ServiceName returns the name of the service registered with the given url
func ServiceName(url string) string {
	name := Slugify(url)
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}

// CRSCode returns the "AUTHORITY:CODE" form of a CRS given as an URL or an URN.
// e.g. http://www.opengis.net/def/crs/EPSG/0/4326 or urn:ogc:def:crs:EPSG::4326 => EPSG:4326
func CRSCode(crs string) string {
	crs = strings.TrimSpace(crs)
	switch {
	case strings.HasPrefix(crs, "http://") || strings.HasPrefix(crs, "https://"):
		parts := strings.Split(strings.TrimSuffix(crs, "/"), "/")
		if len(parts) >= 3 {
			return parts[len(parts)-3] + ":" + parts[len(parts)-1]
		}
	case strings.HasPrefix(strings.ToLower(crs), "urn:"):
		parts := strings.Split(crs, ":")
		if len(parts) >= 6 {
			return parts[4] + ":" + parts[len(parts)-1]
		}
	}
	return crs
}

// TopicCategories are the ISO 19115 topic category codes
var TopicCategories = []string{
	"farming",
	"biota",
	"boundaries",
	"climatologyMeteorologyAtmosphere",
	"economy",
	"elevation",
	"environment",
	"geoscientificInformation",
	"health",
	"imageryBaseMapsEarthCover",
	"intelligenceMilitary",
	"inlandWaters",
	"location",
	"oceans",
	"planningCadastre",
	"society",
	"structure",
	"transportation",
	"utilitiesCommunication",
}
