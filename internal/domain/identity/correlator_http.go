package identity

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ehr/folio/internal/platform/hisclient"
)

// HTTPCorrelator resolves secondary keys through the HIS correlation
// endpoint, GET {base}/{documentNumber}.
type HTTPCorrelator struct {
	client *hisclient.Client
}

func NewHTTPCorrelator(client *hisclient.Client) *HTTPCorrelator {
	return &HTTPCorrelator{client: client}
}

func (c *HTTPCorrelator) Correlate(ctx context.Context, documentNumber string) (string, error) {
	resp, err := c.client.Get(ctx, documentNumber)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if resp.Status == http.StatusNotFound {
		return "", fmt.Errorf("%w: document %s", ErrNotFound, documentNumber)
	}
	if err := resp.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	v := resp.Value().First()
	if key, ok := v.Field("hiscsec", "HISCSEC"); ok {
		return key, nil
	}
	if key := v.Text(); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: response carries no hiscsec", ErrLookupFailed)
}
