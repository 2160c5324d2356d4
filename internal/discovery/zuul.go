// Package discovery resolves CI builds into log URLs and finds their
// baselines: prior successful builds of the same job, project, and branch.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	sifterrors "github.com/logsift/logsift/internal/errors"
	"github.com/logsift/logsift/internal/source"
)

// Fetcher is the minimal transport surface discovery needs.
type Fetcher interface {
	Get(ctx context.Context, url string) (io.ReadCloser, error)
	ListDir(ctx context.Context, url string) ([]string, error)
}

// Zuul resolves builds through the Zuul REST API.
type Zuul struct {
	Fetcher Fetcher
}

// zuulBuildURLRe matches the web UI build pages:
// https://zuul.example.com/t/<tenant>/build/<uuid>
var zuulBuildURLRe = regexp.MustCompile(`^(?P<root>https?://[^/]+(?:/[^/]+)*?)/t/(?P<tenant>[^/]+)/build/(?P<uuid>[0-9a-f]+)`)

// zuulAPIBuild mirrors the API response fields the core consumes.
type zuulAPIBuild struct {
	UUID    string `json:"uuid"`
	JobName string `json:"job_name"`
	Project string `json:"project"`
	Branch  string `json:"branch"`
	Result  string `json:"result"`
	LogURL  string `json:"log_url"`
}

// ContentFromZuulURL recognizes a Zuul build page URL and resolves it into a
// ZuulBuild content. Returns (zero, false) for non-Zuul URLs.
func (z *Zuul) ContentFromZuulURL(ctx context.Context, rawURL string) (source.Content, bool, error) {
	m := zuulBuildURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return source.Content{}, false, nil
	}
	root, tenant, uuid := m[1], m[2], m[3]
	api := fmt.Sprintf("%s/api/tenant/%s", root, tenant)

	build, err := z.fetchBuild(ctx, fmt.Sprintf("%s/build/%s", api, uuid))
	if err != nil {
		return source.Content{}, true, err
	}
	return source.Content{
		Kind: source.ContentZuulBuild,
		Build: &source.BuildInfo{
			API:     api,
			URL:     rawURL,
			UUID:    build.UUID,
			Job:     build.JobName,
			Project: build.Project,
			Branch:  build.Branch,
			Result:  build.Result,
			LogURL:  ensureTrailingSlash(build.LogURL),
		},
	}, true, nil
}

// Resolve expands a build into the URLs of its log files.
func (z *Zuul) Resolve(ctx context.Context, content *source.Content) ([]string, error) {
	if content.Build == nil || content.Build.LogURL == "" {
		return nil, fmt.Errorf("zuul build without log url: %s", content)
	}
	return z.Fetcher.ListDir(ctx, content.Build.LogURL)
}

// FindBaselines queries the API for prior successful builds of the same job,
// project, and branch, excluding the target build itself.
func (z *Zuul) FindBaselines(ctx context.Context, content *source.Content, count int) ([]source.Content, error) {
	build := content.Build
	if build == nil || build.API == "" {
		return nil, fmt.Errorf("zuul build without api: %s", content)
	}
	if count <= 0 {
		count = 1
	}
	query := url.Values{}
	query.Set("job_name", build.Job)
	query.Set("project", build.Project)
	query.Set("branch", build.Branch)
	query.Set("result", "SUCCESS")
	query.Set("complete", "true")
	// One extra in case the target itself is in the result page.
	query.Set("limit", fmt.Sprintf("%d", count+1))

	body, err := z.Fetcher.Get(ctx, fmt.Sprintf("%s/builds?%s", build.API, query.Encode()))
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	var builds []zuulAPIBuild
	if err := json.NewDecoder(body).Decode(&builds); err != nil {
		return nil, sifterrors.ReadError("decoding zuul builds response", err)
	}

	var baselines []source.Content
	for _, b := range builds {
		if b.UUID == build.UUID || b.LogURL == "" {
			continue
		}
		baselines = append(baselines, source.Content{
			Kind: source.ContentZuulBuild,
			Build: &source.BuildInfo{
				API:     build.API,
				URL:     fmt.Sprintf("%s (baseline of %s)", b.UUID, build.UUID),
				UUID:    b.UUID,
				Job:     b.JobName,
				Project: b.Project,
				Branch:  b.Branch,
				Result:  b.Result,
				LogURL:  ensureTrailingSlash(b.LogURL),
			},
		})
		if len(baselines) == count {
			break
		}
	}
	return baselines, nil
}

func (z *Zuul) fetchBuild(ctx context.Context, apiURL string) (*zuulAPIBuild, error) {
	body, err := z.Fetcher.Get(ctx, apiURL)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()
	var build zuulAPIBuild
	if err := json.NewDecoder(body).Decode(&build); err != nil {
		return nil, sifterrors.ReadError(fmt.Sprintf("decoding zuul build %s", apiURL), err)
	}
	return &build, nil
}

func ensureTrailingSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
