// Package extract mines a reel caption for candidate street addresses and a
// candidate place name. Captions follow informal Korean authoring
// conventions, so extraction is an ordered list of narrow rules rather than
// one general pattern; earlier rules take precedence over later ones.
package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// minAddressLen is the minimum number of characters an accepted
	// address candidate must have after cleaning.
	minAddressLen = 5
	// minNameLen is the minimum number of characters of a place name.
	minNameLen = 2
	// proximityWindow is how many characters before an address are
	// inspected when looking for a nearby place name.
	proximityWindow = 15
)

// Rule is one entry of an extraction waterfall: a pattern whose first
// capture group is the candidate, a cleaner applied to each capture and an
// acceptance check applied to the cleaned value.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Clean   func(string) string
	Accept  func(string) bool
}

var (
	markerRe     = regexp.MustCompile(`[#@]`)
	spaceRe      = regexp.MustCompile(`\s+`)
	namePrefixRe = regexp.MustCompile(`^(카페|맛집|식당|바)\s*`)
)

// defaultBlacklist holds generic words that show up where a name is expected
// but never identify a place. The label words keep "주소:" style prefixes
// from being picked up by proximity extraction.
var defaultBlacklist = []string{
	"오늘", "여기", "진짜", "추천", "데이트",
	"맛집", "카페", "식당", "술집", "분위기",
	"핫플", "코스",
	"주소", "위치", "매장", "매장명",
	"cafe", "restaurant", "bar", "today", "here",
}

// Extractor runs the address and place-name waterfalls. The zero value is
// not usable; construct one with New.
type Extractor struct {
	addressRules []Rule
	nameRules    []Rule
	blacklist    map[string]struct{}
}

// New returns an Extractor configured with the Korean caption conventions.
func New() *Extractor {
	x := &Extractor{blacklist: make(map[string]struct{}, len(defaultBlacklist))}
	for _, w := range defaultBlacklist {
		x.blacklist[strings.ToLower(w)] = struct{}{}
	}

	acceptAddress := func(s string) bool { return utf8.RuneCountInString(s) >= minAddressLen }
	x.addressRules = []Rule{
		{Name: "address_label", Pattern: regexp.MustCompile(`주소\s*[:：]\s*([^\n]+)`)},
		{Name: "location_label", Pattern: regexp.MustCompile(`위치\s*[:：]\s*([^\n]+)`)},
		{Name: "pin", Pattern: regexp.MustCompile(`📍\s*([^\n]+)`)},
		{Name: "at_tag", Pattern: regexp.MustCompile(`@([가-힣\s]+(?:구|동|로|길)\s*[0-9-]+[^\n]*)`)},
		{Name: "structural", Pattern: regexp.MustCompile(`([가-힣]+(?:특별시|광역시|시|도)\s+[가-힣]+(?:구|군)\s+[가-힣]+(?:동|읍|면|로|길)\s*[0-9-]*)`)},
	}
	for i := range x.addressRules {
		x.addressRules[i].Clean = CleanAddress
		x.addressRules[i].Accept = acceptAddress
	}

	x.nameRules = []Rule{
		{Name: "store_label", Pattern: regexp.MustCompile(`매장(?:명)?\s*[:：]\s*([^,\n]+)`)},
		// Name captures stay on one line so a name never runs into the next
		// paragraph.
		{Name: "category_prefix", Pattern: regexp.MustCompile(`(?:카페|맛집|식당|바|술집)[ \t]+([가-힣A-Za-z0-9 \t]+)`)},
		{Name: "quoted", Pattern: regexp.MustCompile(`["“”‘’']\s*([^"“”‘’']{2,30})\s*["“”‘’']`)},
		{Name: "pin", Pattern: regexp.MustCompile(`📍[ \t]*([가-힣A-Za-z0-9 \t]{2,30})`)},
		{Name: "parenthesis", Pattern: regexp.MustCompile(`[(（]\s*([가-힣A-Za-z0-9&' ]{2,30})`)},
	}
	for i := range x.nameRules {
		x.nameRules[i].Clean = CleanName
		x.nameRules[i].Accept = x.acceptName
	}
	return x
}

// Normalize folds compatibility characters (fullwidth punctuation, half
// width forms) so that rules see one spelling of each separator.
func Normalize(caption string) string {
	return norm.NFKC.String(caption)
}

// CleanAddress strips hashtag and mention markers, collapses whitespace
// runs and trims. Applying it twice yields the same string.
func CleanAddress(s string) string {
	s = markerRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CleanName is CleanAddress plus removal of a leading category word.
func CleanName(s string) string {
	s = markerRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	s = namePrefixRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Addresses returns every accepted address candidate in rule order, then in
// order of appearance. Duplicates are dropped by exact string comparison.
func (x *Extractor) Addresses(caption string) []string {
	out := []string{}
	if strings.TrimSpace(caption) == "" {
		return out
	}
	caption = Normalize(caption)
	seen := make(map[string]struct{})
	for _, r := range x.addressRules {
		for _, m := range r.Pattern.FindAllStringSubmatch(caption, -1) {
			cand := r.Clean(m[1])
			if !r.Accept(cand) {
				continue
			}
			if _, dup := seen[cand]; dup {
				continue
			}
			seen[cand] = struct{}{}
			out = append(out, cand)
		}
	}
	return out
}

// PlaceName returns the first rule's first match that survives cleaning and
// the acceptance check. The boolean is false when no rule produced a name.
func (x *Extractor) PlaceName(caption string) (string, bool) {
	if strings.TrimSpace(caption) == "" {
		return "", false
	}
	caption = Normalize(caption)
	for _, r := range x.nameRules {
		m := r.Pattern.FindStringSubmatch(caption)
		if m == nil {
			continue
		}
		if name := r.Clean(m[1]); r.Accept(name) {
			return name, true
		}
	}
	return "", false
}

// NameNear looks at the last word in the few characters preceding the first
// occurrence of address and returns it when it passes the name check.
func (x *Extractor) NameNear(caption, address string) (string, bool) {
	if address == "" {
		return "", false
	}
	caption = Normalize(caption)
	idx := strings.Index(caption, address)
	if idx <= 0 {
		return "", false
	}
	before := []rune(caption[:idx])
	if len(before) > proximityWindow {
		before = before[len(before)-proximityWindow:]
	}
	fields := strings.Fields(string(before))
	if len(fields) == 0 {
		return "", false
	}
	tok := CleanName(fields[len(fields)-1])
	tok = strings.TrimFunc(tok, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
	if !x.acceptName(tok) {
		return "", false
	}
	return tok, true
}

// NameHint is the single name used for every address of a caption: an
// explicit name when one exists, otherwise the word right before the first
// address.
func (x *Extractor) NameHint(caption string, addresses []string) (string, bool) {
	if name, ok := x.PlaceName(caption); ok {
		return name, true
	}
	if len(addresses) == 0 {
		return "", false
	}
	return x.NameNear(caption, addresses[0])
}

// IsBlacklisted reports whether name is a generic word, ignoring case.
func (x *Extractor) IsBlacklisted(name string) bool {
	_, ok := x.blacklist[strings.ToLower(name)]
	return ok
}

func (x *Extractor) acceptName(name string) bool {
	return utf8.RuneCountInString(name) >= minNameLen && !x.IsBlacklisted(name)
}
