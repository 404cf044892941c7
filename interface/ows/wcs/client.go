package wcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/airbusgeo/wcs-remote-service/service"
	"github.com/airbusgeo/wcs-remote-service/service/log"
	"go.uber.org/zap"
)

// DefaultTimeout of the requests to the remote servers
const DefaultTimeout = 60 * time.Second

// Client speaks the WCS protocol with remote servers.
// It performs exactly one request per call: no retry, no cache.
type Client struct {
	HTTPClient *http.Client
	Auth       service.HTTPAuth
	UserAgent  string
}

// ClientOption configures a client
type ClientOption func(*Client)

// WithAuth sets the credentials sent to the remote servers
func WithAuth(auth service.HTTPAuth) ClientOption {
	return func(c *Client) { c.Auth = auth }
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.UserAgent = ua }
}

// WithHTTPClient replaces the underlying http client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.HTTPClient = client }
}

// NewClient returns a client whose requests time out after the given duration (DefaultTimeout if 0)
func NewClient(timeout time.Duration, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		HTTPClient: service.NewHTTPClient(timeout),
		UserAgent:  "wcs-remote-service",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetCapabilities retrieves and parses the capabilities of the server.
// The version and the OWS parameters given in baseURL are taken into account (see CleanURL).
func (c *Client) GetCapabilities(ctx context.Context, baseURL string) (*Capabilities, error) {
	cleaned, _, version, _, err := CleanURL(baseURL)
	if err != nil {
		return nil, ErrUnreachableService{URL: baseURL, Err: err}
	}
	if !SupportedVersion(version) {
		return nil, ErrUnsupportedVersion{URL: baseURL, Version: version}
	}
	url, err := capabilitiesURL(cleaned, version)
	if err != nil {
		return nil, ErrUnreachableService{URL: baseURL, Err: err}
	}
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	caps, err := ParseCapabilities(url, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GetCapabilities: %w", err)
	}
	caps.URL = cleaned
	return caps, nil
}

// DescribeCoverage retrieves and parses the description of a coverage.
// Only the 2.x versions of the protocol are handled.
func (c *Client) DescribeCoverage(ctx context.Context, baseURL, version, coverageID string) (*CoverageDescription, error) {
	if !strings.HasPrefix(version, "2.") || !SupportedVersion(version) {
		return nil, ErrUnsupportedVersion{URL: baseURL, Version: version}
	}
	cleaned, _, _, _, err := CleanURL(baseURL)
	if err != nil {
		return nil, ErrUnreachableService{URL: baseURL, Err: err}
	}
	url, err := describeCoverageURL(cleaned, version, coverageID)
	if err != nil {
		return nil, ErrUnreachableService{URL: baseURL, Err: err}
	}
	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	desc, err := ParseCoverageDescription(url, coverageID, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("DescribeCoverage: %w", err)
	}
	return desc, nil
}

// get performs the request. All the failures are returned as ErrUnreachableService
// (temporary if the server may answer later) and an html page is not a valid response.
func (c *Client) get(ctx context.Context, url string) (*service.HTTPResponse, error) {
	log.Logger(ctx).Debug("wcs request", zap.String("url", url))
	start := time.Now()
	resp, err := service.HTTPGetWithAuth(ctx, c.HTTPClient, url, c.Auth, map[string]string{
		"User-Agent": c.UserAgent,
		"Accept":     "application/xml, text/xml",
	})
	if err != nil {
		uerr := ErrUnreachableService{URL: url, Err: err}
		if service.Temporary(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, service.MakeTemporary(uerr)
		}
		return nil, uerr
	}
	log.Logger(ctx).Debug("wcs response",
		zap.String("url", url),
		zap.String("content-type", resp.ContentType),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("elapsed", time.Since(start)))
	if strings.Contains(strings.ToLower(resp.ContentType), "text/html") {
		return nil, ErrUnreachableService{URL: url, Err: fmt.Errorf("html page returned (content-type: %s)", resp.ContentType)}
	}
	return resp, nil
}
