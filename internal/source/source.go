// Package source models the inputs of a run: Sources (individual byte
// streams) and Contents (user-facing inputs that expand into Sources).
package source

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/logsift/logsift/internal/tokenizer"
)

// Kind tags the transport of a Source.
type Kind int

const (
	// KindLocal is a filesystem path.
	KindLocal Kind = iota
	// KindRemote is an HTTP(S) URL.
	KindRemote
	// KindJournal is a systemd journal time range.
	KindJournal
)

// Source uniquely identifies one byte stream. Two equal Sources refer to
// identical content for the duration of a run.
type Source struct {
	Kind Kind `cbor:"1,keyasint" json:"kind"`

	// Location is an opaque path or URL. Tar members carry the virtual
	// `outer!inner` naming.
	Location string `cbor:"2,keyasint" json:"location"`

	// PrefixLen is the length of the expansion-root prefix; the remainder
	// is the relative path used for grouping and display.
	PrefixLen int `cbor:"3,keyasint" json:"prefix_len"`
}

// Local creates a local file source.
func Local(path string) Source {
	return Source{Kind: KindLocal, Location: path}
}

// Remote creates a remote URL source.
func Remote(rawURL string, prefixLen int) Source {
	return Source{Kind: KindRemote, Location: rawURL, PrefixLen: prefixLen}
}

// RelPath returns the path relative to the expansion root.
func (s Source) RelPath() string {
	if s.PrefixLen > 0 && s.PrefixLen < len(s.Location) {
		return s.Location[s.PrefixLen:]
	}
	return s.Location
}

// IndexName returns the grouping key of this source.
func (s Source) IndexName() tokenizer.IndexName {
	return tokenizer.IndexNameFromPath(s.RelPath())
}

// Member derives the virtual source of an archive member.
func (s Source) Member(inner string) Source {
	return Source{
		Kind:      s.Kind,
		Location:  s.Location + "!" + inner,
		PrefixLen: s.PrefixLen,
	}
}

func (s Source) String() string { return s.Location }

// ContentKind tags the Content variant.
type ContentKind int

const (
	// ContentFile is a single local or remote file.
	ContentFile ContentKind = iota
	// ContentDir is a local directory or a remote directory index.
	ContentDir
	// ContentZuulBuild is a Zuul CI build resolved through its API.
	ContentZuulBuild
	// ContentProwBuild is a Prow CI build resolved through its storage.
	ContentProwBuild
	// ContentLocalZuul is an on-disk copy of a Zuul build's logs.
	ContentLocalZuul
	// ContentJournalRange is a systemd journal time window.
	ContentJournalRange
)

// BuildInfo describes a CI build, filled in by the discovery collaborator.
type BuildInfo struct {
	API     string `cbor:"1,keyasint" json:"api"`
	URL     string `cbor:"2,keyasint" json:"url"`
	UUID    string `cbor:"3,keyasint" json:"uuid"`
	Job     string `cbor:"4,keyasint" json:"job"`
	Project string `cbor:"5,keyasint" json:"project"`
	Branch  string `cbor:"6,keyasint" json:"branch"`
	Result  string `cbor:"7,keyasint" json:"result"`
	LogURL  string `cbor:"8,keyasint" json:"log_url"`
}

// Content is the discriminated input variant. It expands deterministically
// into an ordered list of Sources.
type Content struct {
	Kind   ContentKind `cbor:"1,keyasint" json:"kind"`
	Source Source      `cbor:"2,keyasint" json:"source"`
	Build  *BuildInfo  `cbor:"3,keyasint,omitempty" json:"build,omitempty"`

	// Since/Until bound a journal range, in unix milliseconds.
	Since int64 `cbor:"4,keyasint,omitempty" json:"since,omitempty"`
	Until int64 `cbor:"5,keyasint,omitempty" json:"until,omitempty"`
}

// File creates a file content.
func File(s Source) Content { return Content{Kind: ContentFile, Source: s} }

// Dir creates a directory content.
func Dir(s Source) Content { return Content{Kind: ContentDir, Source: s} }

// JournalRange creates a journal content over [since, until).
func JournalRange(since, until time.Time) Content {
	return Content{
		Kind:   ContentJournalRange,
		Source: Source{Kind: KindJournal, Location: fmt.Sprintf("journal:%d-%d", since.UnixMilli(), until.UnixMilli())},
		Since:  since.UnixMilli(),
		Until:  until.UnixMilli(),
	}
}

// JobName returns the CI job name, or "" for plain contents. Per-job config
// overrides key off this value.
func (c Content) JobName() string {
	if c.Build != nil {
		return c.Build.Job
	}
	return ""
}

func (c Content) String() string {
	switch c.Kind {
	case ContentZuulBuild, ContentProwBuild:
		if c.Build != nil {
			return c.Build.URL
		}
	case ContentLocalZuul:
		if c.Build != nil {
			return fmt.Sprintf("%s (%s)", c.Source.Location, c.Build.Job)
		}
	}
	return c.Source.Location
}

// FromInput converts a user input string into a Content. HTTP(S) inputs with
// a trailing slash are directories; local inputs are classified by stat.
func FromInput(input string) (Content, error) {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		u, err := url.Parse(input)
		if err != nil || u.Host == "" {
			return Content{}, fmt.Errorf("bad url: %s", input)
		}
		prefix := len(strings.TrimSuffix(input, "/")) + 1
		if strings.HasSuffix(input, "/") {
			return Dir(Remote(input, prefix)), nil
		}
		base := input[:strings.LastIndex(input, "/")+1]
		return File(Remote(input, len(base))), nil
	}

	info, err := os.Stat(input)
	if err != nil {
		return Content{}, fmt.Errorf("unknown path %s: %w", input, err)
	}
	if info.IsDir() {
		src := Local(strings.TrimSuffix(input, "/"))
		src.PrefixLen = len(src.Location) + 1
		return Dir(src), nil
	}
	src := Local(input)
	if i := strings.LastIndex(input, "/"); i >= 0 {
		src.PrefixLen = i + 1
	}
	return File(src), nil
}
