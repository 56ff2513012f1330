package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

const resultsPage = `<html><body>
<div class="result results_links result--ad"><a class="result__a" href="https://ads.example.com">Ad</a></div>
<div class="result results_links">
  <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fmonitor&amp;rut=x">Best <b>4K</b> monitors</a></h2>
  <a class="result__snippet" href="#">Compare   HDR and refresh rates.</a>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="https://example.org/usb-c">USB-C docks</a></h2>
  <div class="result__snippet">Docking guide</div>
</div>
<div class="result results_links">
  <h2><a class="result__a" href="https://example.net/third">Third</a></h2>
</div>
</body></html>`

func newTestServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "monitors", r.PostForm.Get("q"))
		require.Equal(t, "us-en", r.PostForm.Get("kl"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearch_ParsesResults(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, resultsPage)
	c := NewClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	results, err := c.Search(context.Background(), "monitors", "us-en", 2)
	require.NoError(t, err)
	require.Equal(t, []Result{
		{Title: "Best 4K monitors", Href: "https://example.com/monitor", Body: "Compare HDR and refresh rates."},
		{Title: "USB-C docks", Href: "https://example.org/usb-c", Body: "Docking guide"},
	}, results)
}

func TestSearch_RateLimited(t *testing.T) {
	srv := newTestServer(t, http.StatusAccepted, "challenge")
	c := NewClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	_, err := c.Search(context.Background(), "monitors", "us-en", 5)
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestSearch_UpstreamError(t *testing.T) {
	srv := newTestServer(t, http.StatusInternalServerError, "oops")
	c := NewClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))

	_, err := c.Search(context.Background(), "monitors", "us-en", 5)
	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestSearch_EmptyKeywords(t *testing.T) {
	_, err := NewClient().Search(context.Background(), "  ", "us-en", 5)
	require.ErrorContains(t, err, "keywords")
}

func TestResolveHref(t *testing.T) {
	require.Equal(t, "https://a.example/x", resolveHref("//duckduckgo.com/l/?uddg=https%3A%2F%2Fa.example%2Fx"))
	require.Equal(t, "https://b.example", resolveHref("https://b.example"))
	require.Empty(t, resolveHref(""))
}
