package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logsift/logsift/internal/source"
)

// httpFetcher is a plain Fetcher for tests; directory listing is canned.
type httpFetcher struct {
	listings map[string][]string
}

func (f *httpFetcher) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%s: %s", url, resp.Status)
	}
	return resp.Body, nil
}

func (f *httpFetcher) ListDir(ctx context.Context, url string) ([]string, error) {
	return f.listings[url], nil
}

func TestZuulContentFromURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tenant/local/build/af1e2d", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{
			"uuid": "af1e2d",
			"job_name": "tox-py311",
			"project": "acme/widget",
			"branch": "main",
			"result": "FAILURE",
			"log_url": "https://logserver.example.com/af1e2d"
		}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	z := &Zuul{Fetcher: &httpFetcher{}}
	content, ok, err := z.ContentFromZuulURL(context.Background(), srv.URL+"/t/local/build/af1e2d")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, content.Build)
	assert.Equal(t, source.ContentZuulBuild, content.Kind)
	assert.Equal(t, "tox-py311", content.Build.Job)
	assert.Equal(t, "acme/widget", content.Build.Project)
	assert.Equal(t, "https://logserver.example.com/af1e2d/", content.Build.LogURL)
}

func TestZuulContentFromURLNotZuul(t *testing.T) {
	z := &Zuul{Fetcher: &httpFetcher{}}
	_, ok, err := z.ContentFromZuulURL(context.Background(), "https://example.com/logs/app.log")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestZuulFindBaselines(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tenant/local/builds", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tox-py311", r.URL.Query().Get("job_name"))
		assert.Equal(t, "SUCCESS", r.URL.Query().Get("result"))
		_, _ = fmt.Fprint(w, `[
			{"uuid": "target", "job_name": "tox-py311", "result": "SUCCESS", "log_url": "https://logs/target"},
			{"uuid": "prior1", "job_name": "tox-py311", "result": "SUCCESS", "log_url": "https://logs/prior1"},
			{"uuid": "prior2", "job_name": "tox-py311", "result": "SUCCESS", "log_url": "https://logs/prior2"}
		]`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	z := &Zuul{Fetcher: &httpFetcher{}}
	content := &source.Content{
		Kind: source.ContentZuulBuild,
		Build: &source.BuildInfo{
			API:  srv.URL + "/api/tenant/local",
			UUID: "target",
			Job:  "tox-py311",
		},
	}
	baselines, err := z.FindBaselines(context.Background(), content, 1)
	require.NoError(t, err)
	require.Len(t, baselines, 1)
	assert.Equal(t, "prior1", baselines[0].Build.UUID, "the target itself must be excluded")
	assert.Equal(t, "https://logs/prior1/", baselines[0].Build.LogURL)
}

func TestZuulResolve(t *testing.T) {
	f := &httpFetcher{listings: map[string][]string{
		"https://logs/build/": {"https://logs/build/job-output.txt.gz"},
	}}
	z := &Zuul{Fetcher: f}
	urls, err := z.Resolve(context.Background(), &source.Content{
		Kind:  source.ContentZuulBuild,
		Build: &source.BuildInfo{LogURL: "https://logs/build/"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://logs/build/job-output.txt.gz"}, urls)
}

func TestProwContentFromURL(t *testing.T) {
	p := &Prow{}
	content, ok := p.ContentFromProwURL("https://prow.example.org/view/gs/my-bucket/logs/e2e-gcp/1452")
	require.True(t, ok)
	require.NotNil(t, content.Build)
	assert.Equal(t, source.ContentProwBuild, content.Kind)
	assert.Equal(t, "e2e-gcp", content.Build.Job)
	assert.Equal(t, "1452", content.Build.UUID)
	assert.True(t, strings.HasSuffix(content.Build.LogURL, "/my-bucket/logs/e2e-gcp/1452/"))

	_, ok = p.ContentFromProwURL("https://example.com/not/prow")
	assert.False(t, ok)
}

type prowFetcher struct {
	finished map[string]string
}

func (f *prowFetcher) Get(ctx context.Context, url string) (io.ReadCloser, error) {
	body, ok := f.finished[url]
	if !ok {
		return nil, fmt.Errorf("404: %s", url)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *prowFetcher) ListDir(ctx context.Context, url string) ([]string, error) {
	return nil, nil
}

func TestProwFindBaselines(t *testing.T) {
	root := "https://storage.example.com/bucket/logs/e2e/"
	p := &Prow{Fetcher: &prowFetcher{finished: map[string]string{
		root + "99/finished.json":  `{"result":"FAILURE"}`,
		root + "98/finished.json":  `{"result":"SUCCESS"}`,
		root + "100/finished.json": `{"result":"FAILURE"}`,
	}}}
	content := &source.Content{
		Kind: source.ContentProwBuild,
		Build: &source.BuildInfo{
			UUID:   "100",
			Job:    "e2e",
			LogURL: root + "100/",
		},
	}
	baselines, err := p.FindBaselines(context.Background(), content, 1)
	require.NoError(t, err)
	require.Len(t, baselines, 1)
	assert.Equal(t, "98", baselines[0].Build.UUID,
		"the most recent successful prior build wins; failed ones are skipped")
}
