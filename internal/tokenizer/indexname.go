package tokenizer

import (
	"path"
	"regexp"
	"strings"
)

// An IndexName groups file-path variants that play the same role: rotated
// copies, per-instance random suffixes, and compression artifacts of one
// logical file all map to the same name so baselines and target share a model.
type IndexName string

var (
	compressionExtRe = regexp.MustCompile(`\.(gz|xz|bz2|zst)$`)
	rotationRe       = regexp.MustCompile(`(\.\d+|[.-]\d{4}-\d{2}-\d{2})$`)
	longTokenRe      = regexp.MustCompile(`[0-9a-zA-Z]{63,128}|[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	hexSegmentRe     = regexp.MustCompile(`^[0-9a-f]{4,10}$`)
	nonNameRe        = regexp.MustCompile(`[^a-z.-]`)
)

// IndexNameFromPath derives the IndexName for a source path or URL. The
// function is total: every input maps to some name, unrecognizable ones
// collapse to "na".
func IndexNameFromPath(p string) IndexName {
	p = strings.TrimSuffix(p, "/")
	// Tar members are named outer!inner; group by the inner file role.
	if i := strings.LastIndex(p, "!"); i >= 0 {
		p = p[i+1:]
	}
	p = longTokenRe.ReplaceAllString(p, "uid")

	base := cleanName(path.Base(p))
	parent := relevantParent(path.Dir(p))
	if base == "" {
		base = "na"
	}
	if parent == "" {
		return IndexName(base)
	}
	return IndexName(parent + "/" + base)
}

// IndexNameFromSourcePath is a convenience for sources carrying a prefix to
// strip (the expansion root), so that grouping only sees the relative path.
func IndexNameFromSourcePath(p string, prefixLen int) IndexName {
	if prefixLen > 0 && prefixLen < len(p) {
		p = p[prefixLen:]
	}
	return IndexNameFromPath(p)
}

func (n IndexName) String() string { return string(n) }

// cleanName reduces a file name to its stable role: lowercase, compression
// and rotation suffixes dropped, random '-'/'_' segments removed.
func cleanName(name string) string {
	name = strings.ToLower(name)
	for {
		next := compressionExtRe.ReplaceAllString(name, "")
		next = rotationRe.ReplaceAllString(next, "")
		if next == name {
			break
		}
		name = next
	}
	name = strings.TrimSuffix(name, ".txt")

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	var kept []string
	for _, seg := range strings.FieldsFunc(stem, func(r rune) bool { return r == '-' || r == '_' }) {
		if hexSegmentRe.MatchString(seg) && strings.ContainsAny(seg, "0123456789") {
			continue
		}
		if !strings.ContainsAny(seg, "aeiouy") {
			continue
		}
		seg = nonNameRe.ReplaceAllString(seg, "")
		if seg != "" {
			kept = append(kept, seg)
		}
	}
	out := strings.Join(kept, "-")
	out = strings.Trim(out, ".-")
	if out == "" {
		return ""
	}
	if ext == ".log" || ext == ".json" || ext == ".yaml" {
		return out + ext
	}
	return out
}

// relevantParent returns the closest ancestor directory whose name carries
// meaning (skipping numeric build ids, hashes, and filler like "current").
func relevantParent(dir string) string {
	for dir != "." && dir != "/" && dir != "" {
		name := strings.ToLower(path.Base(dir))
		if !irrelevantDirName(name) {
			return nonNameRe.ReplaceAllString(name, "")
		}
		dir = path.Dir(dir)
	}
	return ""
}

func irrelevantDirName(name string) bool {
	switch name {
	case "util", "tasks", "manager", "current", "logs", "log":
		return true
	}
	if hexSegmentRe.MatchString(name) {
		return true
	}
	return !strings.ContainsAny(name, "aeiouy")
}
