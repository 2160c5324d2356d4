// Package tokenizer rewrites raw log lines into canonical, identifier-free
// token skeletons. Volatile content (timestamps, addresses, hashes, random
// identifiers) is replaced by fixed sentinels so that two renditions of the
// same event compare equal.
//
// The package is pure: Tokenize has no state and no side effects, and it is
// idempotent over its own output (Tokenize(Render(Tokenize(l))) == Tokenize(l)).
package tokenizer

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sentinels substituted for volatile content. Tokens starting with '%' pass
// through Tokenize unchanged, which is what makes the function idempotent.
const (
	TokenDate  = "%DATE"
	TokenURL   = "%URL"
	TokenEmail = "%EMAIL"
	TokenUUID  = "%UUID"
	TokenAddr  = "%ADDR"
	TokenMAC   = "%MAC"
	TokenPath  = "%PATH"
	TokenHex   = "%HEX"
	TokenB64   = "%B64"
	TokenNum   = "%NUM"
	TokenID    = "%ID"
)

// Line-level patterns, applied before splitting because their matches span
// the split characters (':', '/', ...).
var (
	ansiRe = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]|\x1b\][^\x07]*\x07`)

	// Leading timestamp shapes, stripped in a loop until none matches.
	leadingTimestampRes = []*regexp.Regexp{
		// ISO-8601 variants: 2022-01-25 14:09:24.422, 2006-01-02T15:04:05Z07:00
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}([.,]\d+)?(Z|[+-]\d{2}:?\d{2})?\s*`),
		// syslog: Jan  2 15:04:05
		regexp.MustCompile(`^(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}\s*`),
		// systemd boot clock: [    3.453289]
		regexp.MustCompile(`^\[\s*\d+\.\d+\]\s*`),
		// epoch seconds: 1643112564.422
		regexp.MustCompile(`^\d{10}\.\d+\s*`),
		// bare time with optional pipe separator: 14:09:24.422 |
		regexp.MustCompile(`^\d{2}:\d{2}:\d{2}([.,]\d+)?\s*(\|\s*)?`),
	}

	isoDateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}([.,]\d+)?(Z|[+-]\d{2}:?\d{2})?`)
	urlRe     = regexp.MustCompile(`(?i)(https?|ftp|ssh|git)://[^\s"'<>\[\]{}|]+`)
	emailRe   = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	uuidRe    = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	macRe     = regexp.MustCompile(`\b[0-9a-fA-F]{2}(:[0-9a-fA-F]{2}){5}\b`)
	ipv6Re    = regexp.MustCompile(`\[[0-9a-fA-F:]{3,}\](:\d+)?|\b([0-9a-fA-F]{1,4}:){3,7}[0-9a-fA-F]{1,4}\b`)
	ipv4Re    = regexp.MustCompile(`\b\d{1,3}(\.\d{1,3}){3}(:\d+)?\b`)
	// Absolute paths with at least two components, quoted or bare.
	pathRe = regexp.MustCompile(`"(/[^/\s"]+){2,}/?"|(/[^/\s"'=:,;()\[\]{}<>|]+){2,}/?`)
	hexRe  = regexp.MustCompile(`[0-9a-fA-F]{6,}`)
	// Base64 chunks need a character outside [a-z] to avoid eating plain words.
	b64Re = regexp.MustCompile(`[A-Za-z0-9+/]*[0-9+/][A-Za-z0-9+/]*={0,2}`)
)

// Token-level patterns.
var (
	splitRe    = regexp.MustCompile(`[\s=:,;()\[\]{}<>"'|]+`)
	digitRunRe = regexp.MustCompile(`\d{3,}`)
	numericRe  = regexp.MustCompile(`^[\d.:\-]*\d{3,}[\d.:\-]*$`)
	acronymRe  = regexp.MustCompile(`^[A-Z]{2,6}$`)
	// Random trailing segments, e.g. kubernetes pod suffixes: install-pb96q.
	randSegRe = regexp.MustCompile(`^[a-z0-9]{5,10}$`)

	errorWordRe = regexp.MustCompile(`(?i)^(error|err|fatal|failure|failed|fail|warning|warn|denied|assert|assertion|non-zero|exception|traceback|panic)$`)

	// Known-noisy nominal lines that carry no signal: yum mirror status,
	// dnsmasq chatter, chrony tracking, memcached ops, ssh key randomart,
	// shell echo debug.
	noiseRe = regexp.MustCompile(strings.Join([]string{
		`GET / HTTP/1\.1`,
		`\* [a-zA-Z]+: [a-zA-Z0-9.-]*$`,
		`Trying other mirror\.`,
		`dnsmasq(\[[0-9]+\])?: (query|forwarded|reply|cached|config)`,
		`^\^[+*-] [a-z0-9.>-]{5,} [0-9]`,
		`^[a-f0-9s/]+>[0-9]+ `,
		`^\+\+ echo [^ ]+$`,
		`^net\.ipv[46]\.(conf|neigh)\.tap`,
		`[ '",]*\|.{17}\|[ '",]*$`,
	}, "|"))
)

// Tokenize converts a raw log line into its canonical token sequence.
// It returns nil for lines that carry no usable signal (empty, single-word,
// or matching a known-noise shape); nil-token lines are neither trained nor
// reported as anomalies.
func Tokenize(line []byte) []string {
	text := strings.ToValidUTF8(string(line), "")
	text = ansiRe.ReplaceAllString(text, "")
	text = strings.Map(dropControl, text)
	text = strings.TrimSpace(text)

	if text == "" || noiseRe.MatchString(text) {
		return nil
	}
	if !strings.ContainsFunc(text, unicode.IsSpace) {
		// A single word is untrustworthy: it is either a fragment of a
		// split long line or progress noise.
		return nil
	}

	for stripped := true; stripped; {
		stripped = false
		for _, re := range leadingTimestampRes {
			if loc := re.FindStringIndex(text); loc != nil && loc[0] == 0 && loc[1] > 0 {
				text = text[loc[1]:]
				stripped = true
			}
		}
	}

	text = isoDateRe.ReplaceAllString(text, TokenDate)
	text = urlRe.ReplaceAllString(text, " "+TokenURL+" ")
	text = emailRe.ReplaceAllString(text, " "+TokenEmail+" ")
	text = uuidRe.ReplaceAllString(text, TokenUUID)
	text = macRe.ReplaceAllString(text, TokenMAC)
	text = ipv6Re.ReplaceAllString(text, TokenAddr)
	text = ipv4Re.ReplaceAllString(text, TokenAddr)
	text = pathRe.ReplaceAllString(text, " "+TokenPath+" ")

	var tokens []string
	for _, word := range splitRe.Split(text, -1) {
		tok := processWord(word)
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) < 2 {
		// A single surviving token is indistinguishable from noise.
		return nil
	}
	return tokens
}

// Render joins tokens back into a single line, the form consumed by the
// feature index.
func Render(tokens []string) string {
	return strings.Join(tokens, " ")
}

// IsErrorToken reports whether a token belongs to the error vocabulary
// (error, fail, traceback, ...). The feature index gives such tokens extra
// weight so that error lines separate strongly from their surroundings.
func IsErrorToken(tok string) bool {
	return errorWordRe.MatchString(tok)
}

// processWord reduces one whitespace/punctuation-delimited word to a token,
// or to "" when the word carries no signal.
func processWord(word string) string {
	word = strings.Trim(word, `\.!?*#&+~`+"`")
	if word == "" {
		return ""
	}
	if strings.HasPrefix(word, "%") {
		// Already a sentinel, pass through untouched.
		return word
	}
	if hexRe.MatchString(word) {
		return TokenHex
	}
	if numericRe.MatchString(word) {
		return TokenNum
	}
	if len(word) >= 12 && strings.HasSuffix(word, "==") {
		return TokenB64
	}
	if len(word) > 24 && b64Re.FindString(word) == word {
		return TokenB64
	}
	if acronymRe.MatchString(word) {
		return word
	}

	word = strings.ToLower(word)
	word = digitRunRe.ReplaceAllString(word, "n")
	word = stripRandomSegments(word)
	if len(word) < 2 {
		return ""
	}
	if len(word) >= 5 && !strings.ContainsAny(word, "aeiouyAEIOUY%") {
		// Vowel-less words of this length are almost always generated ids;
		// they are dropped.
		return ""
	}
	return word
}

// stripRandomSegments removes random '-'-separated segments such as
// kubernetes replica-set suffixes (logserver-6cc7669744-bf2b2 -> logserver).
func stripRandomSegments(word string) string {
	if !strings.Contains(word, "-") {
		return word
	}
	parts := strings.Split(word, "-")
	kept := parts[:1]
	replaced := false
	for _, part := range parts[1:] {
		if randSegRe.MatchString(part) && (strings.ContainsAny(part, "0123456789") || !strings.ContainsAny(part, "aeiouy")) {
			replaced = true
			continue
		}
		kept = append(kept, part)
	}
	if !replaced {
		return word
	}
	out := strings.Trim(strings.Join(kept, "-"), "-")
	if out == "" {
		return TokenID
	}
	return out
}

// dropControl removes control characters and the UTF-8 replacement rune left
// behind by lossy decoding of binary noise.
func dropControl(r rune) rune {
	if r == utf8.RuneError || (unicode.IsControl(r) && r != '\t') {
		return -1
	}
	return r
}
