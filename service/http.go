package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPAuth holds the optional credentials of a remote server
type HTTPAuth struct {
	Name     string
	Password string
	Token    string
}

// HTTPResponse is the result of a successful request
type HTTPResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// ErrHTTPStatus is returned when the server answers with a non-2xx status
type ErrHTTPStatus struct {
	URL        string
	StatusCode int
	Body       []byte
}

func (e ErrHTTPStatus) Error() string {
	body := e.Body
	if len(body) > 256 {
		body = body[:256]
	}
	return fmt.Sprintf("%s: http status %d: %s", e.URL, e.StatusCode, body)
}

// NewHTTPClient returns a client with the given timeout (no timeout if 0)
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// HTTPGetWithAuth performs a single GET request and reads the body.
// 429 and 5xx statuses are returned as temporary errors.
func HTTPGetWithAuth(ctx context.Context, client *http.Client, url string, auth HTTPAuth, headers map[string]string) (*HTTPResponse, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPGet: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := doWithAuth(client, req, auth)
	if err != nil {
		return nil, fmt.Errorf("HTTPGet: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, MakeTemporary(fmt.Errorf("HTTPGet.ReadAll: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := ErrHTTPStatus{URL: url, StatusCode: resp.StatusCode, Body: body}
		if TemporaryStatus(resp.StatusCode) {
			return nil, MakeTemporary(err)
		}
		return nil, err
	}
	return &HTTPResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func doWithAuth(client *http.Client, req *http.Request, auth HTTPAuth) (*http.Response, error) {
	if auth.Name != "" {
		req.SetBasicAuth(auth.Name, auth.Password)
	}
	if auth.Token != "" {
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}
