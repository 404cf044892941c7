package wcs

import "fmt"

// ErrUnreachableService is returned when the endpoint does not respond or does not advertise WCS capabilities
type ErrUnreachableService struct {
	URL string
	Err error
}

func (e ErrUnreachableService) Error() string {
	return fmt.Sprintf("unreachable WCS service %s: %v", e.URL, e.Err)
}

func (e ErrUnreachableService) Unwrap() error { return e.Err }

// ErrMalformedCapabilities is returned when a document of the service cannot be parsed
type ErrMalformedCapabilities struct {
	URL string
	Err error
}

func (e ErrMalformedCapabilities) Error() string {
	return fmt.Sprintf("malformed WCS document from %s: %v", e.URL, e.Err)
}

func (e ErrMalformedCapabilities) Unwrap() error { return e.Err }

// ErrUnsupportedVersion is returned when the requested or advertised WCS version is not handled
type ErrUnsupportedVersion struct {
	URL     string
	Version string
}

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("unsupported WCS version %q (%s)", e.Version, e.URL)
}
