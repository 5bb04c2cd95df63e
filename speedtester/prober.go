package speedtester

import (
	"context"
	"fmt"
	"time"

	"github.com/imroc/req/v3"
)

// UserAgent is sent with every probe request.
var UserAgent = "vnetscan-probe/1.0"

// HTTPProber is the req-backed Prober used outside of tests.
type HTTPProber struct {
	client *req.Client
}

// NewHTTPProber builds a prober whose requests each time out after timeout.
func NewHTTPProber(timeout time.Duration, insecureTLS bool) *HTTPProber {
	c := req.C().
		SetTimeout(timeout).
		SetUserAgent(UserAgent)
	if insecureTLS {
		c.EnableInsecureSkipVerify()
	}
	return &HTTPProber{client: c}
}

func (p *HTTPProber) Get(ctx context.Context, url string) (int64, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Cache-Control", "no-cache").
		SetHeader("Pragma", "no-cache").
		Get(url)
	if err != nil {
		return 0, err
	}
	if !resp.IsSuccessState() {
		return 0, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return int64(len(resp.Bytes())), nil
}

func (p *HTTPProber) Post(ctx context.Context, url string, body []byte) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Cache-Control", "no-cache").
		SetContentType("application/octet-stream").
		SetBodyBytes(body).
		Post(url)
	if err != nil {
		return err
	}
	if !resp.IsSuccessState() {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return nil
}
