// Package rest holds the GET helper shared by the vendor cost-report clients.
package rest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kailas-cloud/expensify-os/internal/domain"
)

const (
	maxBodySize  = 4 << 20
	maxErrorBody = 512
)

// Get performs an authenticated GET and returns the body of a 2xx response.
// 401/403 map to domain.ErrUnauthorized, 429 to domain.ErrRateLimited, other
// non-2xx statuses to *domain.VendorError.
func Get(ctx context.Context, client *http.Client, vendor, rawURL string, query url.Values, header http.Header) ([]byte, error) {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", vendor, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", vendor, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", vendor, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s: status %d: %w", vendor, resp.StatusCode, domain.ErrUnauthorized)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", vendor, domain.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &domain.VendorError{Vendor: vendor, Status: resp.StatusCode, Body: excerpt(body)}
	}
	return body, nil
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}
