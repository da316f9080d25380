package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/growthfoundry/leadship/internal/domain"
	"github.com/growthfoundry/leadship/internal/ports"
)

// maxFragmentBytes caps a single fragment body. Fragments are footers and
// offer partials, not documents.
const maxFragmentBytes = 256 << 10

// FragmentFetcher implements ports.FragmentFetcher over HTTP, resolving
// fragment keys against a base URL.
type FragmentFetcher struct {
	client  ports.HTTPClient
	baseURL string
}

// NewFragmentFetcher creates a fetcher rooted at baseURL; the fragment for
// key "footer" is fetched from <baseURL>/footer.html.
func NewFragmentFetcher(client ports.HTTPClient, baseURL string) *FragmentFetcher {
	return &FragmentFetcher{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Fetch returns the fragment markup for key.
func (f *FragmentFetcher) Fetch(ctx context.Context, key string) (string, error) {
	u := f.baseURL + "/" + url.PathEscape(key) + ".html"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%w: fragment %q returned %d", domain.ErrNetwork, key, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFragmentBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read fragment %q: %v", domain.ErrNetwork, key, err)
	}
	return string(body), nil
}
