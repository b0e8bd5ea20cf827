package oidckit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// maxDocumentSize caps discovery and key-set response bodies.
const maxDocumentSize = 1 << 20

func (o *options) get(ctx context.Context, op, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, newErr(KindMalformedURL, op, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := o.httpClient(ctx).Do(req)
	if err != nil {
		return nil, newErr(KindTransport, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newErr(KindTransport, op, fmt.Errorf("%s returned %s", u, resp.Status))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, newErr(KindTransport, op, err)
	}
	if len(body) > maxDocumentSize {
		return nil, newErr(KindDecode, op, fmt.Errorf("%s: document too large (over %d bytes)", u, maxDocumentSize))
	}
	return body, nil
}

// parseAbsURL accepts only absolute URLs with a scheme and host.
func parseAbsURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute url", raw)
	}
	return u, nil
}
