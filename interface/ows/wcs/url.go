package wcs

import (
	"fmt"
	neturl "net/url"
	"strings"
)

// DefaultVersion is requested when the url does not give one
const DefaultVersion = "2.0.1"

var supportedVersions = map[string]struct{}{
	"1.0.0": {},
	"1.1.0": {},
	"1.1.1": {},
	"1.1.2": {},
	"2.0.0": {},
	"2.0.1": {},
	"2.1.0": {},
}

// SupportedVersion returns true if the version of the protocol is handled
func SupportedVersion(version string) bool {
	_, ok := supportedVersions[version]
	return ok
}

// CleanURL removes the OWS parameters (service, request, version) from the url
// and returns them with the cleaned url. Version defaults to DefaultVersion.
// Parameter names are matched case-insensitively, other parameters are kept.
func CleanURL(rawURL string) (cleaned, service, version, request string, err error) {
	if unquoted, e := neturl.PathUnescape(rawURL); e == nil {
		rawURL = unquoted
	}
	u, err := neturl.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", "", "", "", fmt.Errorf("CleanURL.Parse: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", "", "", fmt.Errorf("CleanURL: url must be absolute: %s", rawURL)
	}

	version = DefaultVersion
	query := neturl.Values{}
	for k, v := range u.Query() {
		if len(v) == 0 {
			continue
		}
		last := v[len(v)-1]
		switch strings.ToLower(k) {
		case "version":
			if last != "" {
				version = last
			}
		case "service":
			service = last
		case "request":
			request = last
		default:
			query.Set(k, last)
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), service, version, request, nil
}

func requestURL(baseURL string, params map[string]string) (string, error) {
	u, err := neturl.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("requestURL.Parse: %w", err)
	}
	query := u.Query()
	for k, v := range params {
		query.Set(k, v)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func capabilitiesURL(baseURL, version string) (string, error) {
	return requestURL(baseURL, map[string]string{
		"service": "WCS",
		"request": "GetCapabilities",
		"version": version,
	})
}

func describeCoverageURL(baseURL, version, coverageID string) (string, error) {
	params := map[string]string{
		"service": "WCS",
		"request": "DescribeCoverage",
		"version": version,
	}
	switch {
	case strings.HasPrefix(version, "2."):
		params["coverageId"] = coverageID
	case strings.HasPrefix(version, "1.1"):
		params["identifiers"] = coverageID
	default:
		params["coverage"] = coverageID
	}
	return requestURL(baseURL, params)
}
