// Package correct repairs image links in model output.
//
// A session can describe its image assets in the opening user message: a base URL on a
// static host, a list of short path keywords, and the file extensions in use. Models tend
// to garble such links (dropped slashes, kana variants, typos). The corrector finds lines
// that look like one of these links and rebuilds a clean markdown image from the closest
// keywords.
package correct

import (
	"math"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

// Corrector rewrites text. Implementations return the input unchanged when they cannot help.
type Corrector interface {
	Correct(text string) string
}

// Nop leaves text untouched.
type Nop struct{}

func (Nop) Correct(text string) string { return text }

const (
	MarkdownStart = "![alt text]("
	MarkdownEnd   = ` "image")`

	maxKeywordLength = 12
)

var (
	baseURLRe     = regexp.MustCompile(`https://[a-zA-Z0-9-]+\.(?:netlify\.app|vercel\.app|github\.io)/`)
	domainRe      = regexp.MustCompile(`[a-zA-Z0-9-]+\.(?:netlify\.app|vercel\.app|github\.io)`)
	hostRe        = regexp.MustCompile(`://([a-zA-Z0-9-.]+)/`)
	extensionRe   = regexp.MustCompile(`\.\b(avif|png|jpg|jpeg|webp|gif)\b`)
	segmentSplit  = regexp.MustCompile(`[/\\]+`)
	keywordReject = regexp.MustCompile(`[*:{}【】「」『』()（）]`)

	defaultExtensions = []string{".avif", ".png"}
)

// Rule describes where images live and which path segments are valid.
type Rule struct {
	BaseURL    string
	Keywords   []string
	Extensions []string
}

// ParseRule extracts a rule from free text. ok is false when the text names no supported
// base URL or no usable keywords.
func ParseRule(text string) (Rule, bool) {
	baseURL := baseURLRe.FindString(text)
	if baseURL == "" {
		return Rule{}, false
	}

	var extensions []string
	for _, ext := range extensionRe.FindAllString(text, -1) {
		if !slices.Contains(extensions, ext) {
			extensions = append(extensions, ext)
		}
	}
	if len(extensions) == 0 {
		extensions = slices.Clone(defaultExtensions)
	}

	var keywords []string
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == ',' }) {
		keyword := strings.TrimSpace(line)
		if keyword == "" ||
			utf8.RuneCountInString(keyword) > maxKeywordLength ||
			strings.HasPrefix(keyword, "http") ||
			strings.HasPrefix(keyword, "![") {
			continue
		}
		if dot := strings.LastIndex(keyword, "."); dot > 0 && slices.Contains(extensions, keyword[dot:]) {
			keyword = keyword[:dot]
		}
		if keyword == "" || keywordReject.MatchString(keyword) || slices.Contains(keywords, keyword) {
			continue
		}
		keywords = append(keywords, keyword)
	}
	if len(keywords) == 0 {
		return Rule{}, false
	}

	return Rule{BaseURL: baseURL, Keywords: keywords, Extensions: extensions}, true
}

// ImageURLCorrector applies a Rule to model output.
type ImageURLCorrector struct {
	rule Rule
}

var _ Corrector = (*ImageURLCorrector)(nil)

func NewImageURLCorrector(rule Rule) *ImageURLCorrector {
	return &ImageURLCorrector{rule: rule}
}

// ForOpeningMessage builds a corrector from the text of a session's first user message.
// It returns Nop when the text defines no rule.
func ForOpeningMessage(text string) Corrector {
	if strings.TrimSpace(text) == "" {
		return Nop{}
	}
	rule, ok := ParseRule(text)
	if !ok {
		return Nop{}
	}
	log.Debug().Str("baseURL", rule.BaseURL).Strs("keywords", rule.Keywords).Strs("extensions", rule.Extensions).Msg("image url rule parsed")
	return NewImageURLCorrector(rule)
}

// Correct replaces every candidate line that can be rebuilt with a markdown image link.
func (c *ImageURLCorrector) Correct(text string) string {
	candidates := c.candidateLines(text)
	if len(candidates) == 0 {
		return text
	}
	ret := text
	for _, line := range candidates {
		if rebuilt, ok := c.rebuild(line); ok {
			ret = strings.Replace(ret, line, rebuilt, 1)
		}
	}
	return ret
}

func (c *ImageURLCorrector) candidateLines(text string) []string {
	bareExtensions := make([]string, 0, len(c.rule.Extensions))
	for _, ext := range c.rule.Extensions {
		bareExtensions = append(bareExtensions, strings.Replace(ext, ".", "", 1))
	}
	anchors := slices.Clone(c.rule.Keywords)
	if m := hostRe.FindStringSubmatch(c.rule.BaseURL); m != nil {
		anchors = append(anchors, m[1])
	}

	var ret []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		hasHTTP := strings.Contains(line, "http")
		hasExtension := containsAny(line, bareExtensions)
		if !hasHTTP && !hasExtension {
			continue
		}
		hasAnchor := containsAny(line, anchors)
		if (hasHTTP && (hasExtension || hasAnchor)) || (!hasHTTP && hasAnchor) {
			ret = append(ret, line)
		}
	}
	return ret
}

func (c *ImageURLCorrector) rebuild(line string) (string, bool) {
	loc := domainRe.FindStringIndex(line)
	if loc == nil {
		return "", false
	}
	pathStart := loc[1]
	afterDomain := line[pathStart:]

	pathEnd := len(line)
	for _, pattern := range c.terminatorPatterns() {
		if idx := strings.Index(afterDomain, pattern); idx != -1 && pathStart+idx < pathEnd {
			pathEnd = pathStart + idx
		}
	}
	if pathStart >= pathEnd {
		return "", false
	}

	var decoded []string
	for _, segment := range segmentSplit.Split(line[pathStart:pathEnd], -1) {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		if keyword, ok := c.closestKeyword(segment); ok {
			decoded = append(decoded, keyword)
		} else {
			log.Debug().Str("segment", segment).Msg("image path segment not decoded")
		}
	}
	if len(decoded) == 0 {
		return "", false
	}

	extension := c.rule.Extensions[0]
	for _, ext := range c.rule.Extensions {
		if strings.Contains(line, strings.Replace(ext, ".", "", 1)) {
			extension = ext
			break
		}
	}
	url := c.rule.BaseURL + strings.Join(decoded, "/") + extension
	return MarkdownStart + url + MarkdownEnd, true
}

// terminatorPatterns lists fragments that mark the end of a garbled path: the extensions,
// damaged forms of them, and the closing parenthesis of a markdown link.
func (c *ImageURLCorrector) terminatorPatterns() []string {
	var ret []string
	add := func(p string) {
		if p != "" && !slices.Contains(ret, p) {
			ret = append(ret, p)
		}
	}
	for _, withDot := range c.rule.Extensions {
		add(withDot)
		ext := []rune(strings.Replace(withDot, ".", "", 1))
		add(string(ext))
		for _, r := range ext {
			add("." + string(r))
		}
		for i := 0; i < len(ext); i++ {
			for j := i + 1; j < len(ext); j++ {
				add(string(ext[i]) + string(ext[j]))
			}
		}
	}
	add(")")
	return ret
}

func (c *ImageURLCorrector) closestKeyword(segment string) (string, bool) {
	normalized := normalize(segment)
	best, bestDistance := "", math.MaxInt
	for _, keyword := range c.rule.Keywords {
		d := levenshtein.ComputeDistance(normalized, normalize(keyword))
		if d < bestDistance {
			best, bestDistance = keyword, d
		}
	}
	if best == "" {
		return "", false
	}
	threshold := (utf8.RuneCountInString(normalize(best)) + 3) / 4
	return best, bestDistance <= threshold
}

// normalize folds hiragana to katakana, applies NFKC and drops '-' and '_'.
func normalize(s string) string {
	folded := strings.Map(func(r rune) rune {
		if r >= 0x3041 && r <= 0x3096 {
			return r + 0x60
		}
		return r
	}, s)
	folded = norm.NFKC.String(folded)
	return strings.NewReplacer("-", "", "_", "").Replace(folded)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
