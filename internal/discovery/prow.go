package discovery

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/logsift/logsift/internal/source"
)

// Prow resolves builds stored in a GCS bucket behind a Prow deck instance.
type Prow struct {
	Fetcher Fetcher

	// StorageBase is the public object-store frontend; the default serves
	// the common case of GCS-backed decks.
	StorageBase string
}

const defaultProwStorage = "https://storage.googleapis.com"

// prowViewURLRe matches deck spyglass pages:
// https://prow.example.com/view/gs/<bucket>/logs/<job>/<build>
var prowViewURLRe = regexp.MustCompile(`^https?://[^/]+/view/gs/(?P<bucket>[^/]+)/(?P<path>.+?)/(?P<job>[^/]+)/(?P<build>\d+)/?$`)

// ContentFromProwURL recognizes a Prow spyglass URL. Returns (zero, false)
// for non-Prow URLs.
func (p *Prow) ContentFromProwURL(rawURL string) (source.Content, bool) {
	m := prowViewURLRe.FindStringSubmatch(rawURL)
	if m == nil {
		return source.Content{}, false
	}
	bucket, path, job, build := m[1], m[2], m[3], m[4]
	return source.Content{
		Kind: source.ContentProwBuild,
		Build: &source.BuildInfo{
			URL:    rawURL,
			UUID:   build,
			Job:    job,
			LogURL: fmt.Sprintf("%s/%s/%s/%s/%s/", p.storageBase(), bucket, path, job, build),
		},
	}, true
}

// Resolve expands a Prow build into its log file URLs.
func (p *Prow) Resolve(ctx context.Context, content *source.Content) ([]string, error) {
	if content.Build == nil || content.Build.LogURL == "" {
		return nil, fmt.Errorf("prow build without log url: %s", content)
	}
	return p.Fetcher.ListDir(ctx, content.Build.LogURL)
}

// FindBaselines walks back from the target build number looking for the most
// recent prior builds of the same job. Prow publishes no result index next
// to the logs, so a build is accepted when its finished marker reports
// success.
func (p *Prow) FindBaselines(ctx context.Context, content *source.Content, count int) ([]source.Content, error) {
	build := content.Build
	if build == nil || build.LogURL == "" {
		return nil, fmt.Errorf("prow build without log url: %s", content)
	}
	var target int
	if _, err := fmt.Sscanf(build.UUID, "%d", &target); err != nil {
		return nil, fmt.Errorf("prow build id is not numeric: %s", build.UUID)
	}
	jobRoot := strings.TrimSuffix(build.LogURL, build.UUID+"/")

	var baselines []source.Content
	for prior := target - 1; prior > 0 && target-prior <= 20 && len(baselines) < count; prior-- {
		logURL := fmt.Sprintf("%s%d/", jobRoot, prior)
		if !p.finishedSuccessfully(ctx, logURL) {
			continue
		}
		baselines = append(baselines, source.Content{
			Kind: source.ContentProwBuild,
			Build: &source.BuildInfo{
				URL:    fmt.Sprintf("%d (baseline of %s)", prior, build.UUID),
				UUID:   fmt.Sprintf("%d", prior),
				Job:    build.Job,
				Result: "SUCCESS",
				LogURL: logURL,
			},
		})
	}
	return baselines, nil
}

func (p *Prow) finishedSuccessfully(ctx context.Context, logURL string) bool {
	body, err := p.Fetcher.Get(ctx, logURL+"finished.json")
	if err != nil {
		return false
	}
	defer func() { _ = body.Close() }()
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), `"result":"SUCCESS"`) ||
			strings.Contains(scanner.Text(), `"passed":true`) {
			return true
		}
	}
	return false
}

func (p *Prow) storageBase() string {
	if p.StorageBase != "" {
		return strings.TrimSuffix(p.StorageBase, "/")
	}
	return defaultProwStorage
}
