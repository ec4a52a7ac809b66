package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/Paintersrp/procwatch/internal/config"
)

const userAgent = "procwatch-probe"

type httpProber struct {
	client *http.Client
	url    string
	expect []int
}

func newHTTPProber(spec *config.HTTPProbe) Prober {
	return &httpProber{
		client: &http.Client{
			// A redirect is an answer; the process is alive.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		url:    spec.URL,
		expect: slices.Clone(spec.ExpectStatus),
	}
}

func (p *httpProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if !p.acceptable(resp.StatusCode) {
		return fmt.Errorf("status=%d", resp.StatusCode)
	}
	return nil
}

func (p *httpProber) acceptable(status int) bool {
	if len(p.expect) > 0 {
		return slices.Contains(p.expect, status)
	}
	return status >= 200 && status < 400
}
