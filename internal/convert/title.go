package convert

import (
	"regexp"
	"strings"
)

// MaxTitleLength is the eBay listing title limit.
const MaxTitleLength = 80

type abbreviation struct {
	pattern     *regexp.Regexp
	replacement string
}

// Space-saving abbreviations, applied most-savings first. Replacements keep
// search keywords recognizable to buyers.
var abbreviations = []abbreviation{
	{regexp.MustCompile(`(?i)\bStainless\s+Steel\b`), "SS"},
	{regexp.MustCompile(`(?i)\bCarbon\s+Fiber\b`), "CF"},
	{regexp.MustCompile(`(?i)\bBluetooth\b`), "BT"},
	{regexp.MustCompile(`(?i)\bWi-?Fi\b`), "WiFi"},
	{regexp.MustCompile(`(?i)\bPack\s+of\s+(\d+)\b`), "$1-Pack"},
	{regexp.MustCompile(`(?i)\b(\d+)\s*(?:Piece|Pcs|pcs)\b`), "${1}pc"},
	{regexp.MustCompile(`(?i)\b(\d+)\s*(?:Count|Ct)\b`), "${1}ct"},
	{regexp.MustCompile(`(?i)\b(\d+)\s*Inch(?:es)?\b`), `$1"`},
	{regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*Ounce(?:s)?\b`), "${1}oz"},
	{regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*Pound(?:s)?\b`), "${1}lb"},
	{regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*Milliliter(?:s)?\b`), "${1}ml"},
	{regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*Liter(?:s)?\b`), "${1}L"},
	{regexp.MustCompile(`(?i)\bGeneration\b`), "Gen"},
	{regexp.MustCompile(`(?i)\bProfessional\b`), "Pro"},
	{regexp.MustCompile(`(?i)\bAutomatic\b`), "Auto"},
	{regexp.MustCompile(`(?i)\bRechargeable\b`), "Rchg"},
	{regexp.MustCompile(`(?i)\bWaterproof\b`), "WP"},
	{regexp.MustCompile(`(?i)\bAdjustable\b`), "Adj"},
	{regexp.MustCompile(`(?i)\bReplacement\b`), "Repl"},
	{regexp.MustCompile(`(?i)\bCompatible\b`), "Compat"},
	{regexp.MustCompile(`(?i)\bAccessories\b`), "Accs"},
	{regexp.MustCompile(`(?i)\bUniversal\b`), "Univ"},
}

// Source-marketplace title junk: badges, promos, trailing model codes.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:Amazon'?s?\s+Choice|Best\s+Seller|#1\s+Best\s+Seller)\b`),
	regexp.MustCompile(`(?i)\b(?:Limited\s+Time\s+(?:Offer|Deal)|Free\s+Shipping)\b`),
	regexp.MustCompile(`(?i)\bAs\s+Seen\s+On\s+TV\b`),
	regexp.MustCompile(`(?i)\b(?:Great|Perfect|Ideal)\s+(?:Gift|Present)\s*(?:for\s+\w+)?\b`),
	regexp.MustCompile(`\s*\([A-Z0-9]{5,}\)\s*$`),
	regexp.MustCompile(`(?i)\bby\s+\w+\s*$`),
	regexp.MustCompile(`[™®©]+`),
	regexp.MustCompile(`(?i)\[(?:Updated|Latest|New)\s*\d*\s*(?:Version|Model|Edition)?\]`),
}

var fillerWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"in": true, "on": true, "at": true, "to": true, "of": true,
	"by": true, "from": true, "that": true, "this": true,
	"is": true, "are": true, "it": true, "its": true, "your": true,
	"our": true, "very": true, "most": true, "more": true,
	"also": true, "just": true, "only": true, "even": true,
}

// Fillers that still carry search value on eBay ("case for iPhone").
var fillerExceptions = map[string]bool{
	"for":  true,
	"with": true,
}

var (
	multiSpace   = regexp.MustCompile(`\s+`)
	trailingJunk = regexp.MustCompile(`[,\-–—|\s]+$`)
	leadingJunk  = regexp.MustCompile(`^\s*[|\-–—]\s*`)
)

// OptimizeTitle rewrites a verbose source title into one that fits the
// listing limit. Transformations are applied incrementally and stop as soon
// as the title fits: clean, remove noise, abbreviate, deduplicate, drop
// fillers, truncate at a word boundary.
func OptimizeTitle(title string) string {
	result := cleanTitle(title)
	if len(result) <= MaxTitleLength {
		return result
	}

	result = removeNoise(result)
	if len(result) <= MaxTitleLength {
		return result
	}

	for _, abbr := range abbreviations {
		result = abbr.pattern.ReplaceAllString(result, abbr.replacement)
	}
	result = strings.TrimSpace(multiSpace.ReplaceAllString(result, " "))
	if len(result) <= MaxTitleLength {
		return result
	}

	result = deduplicateWords(result)
	if len(result) <= MaxTitleLength {
		return result
	}

	result = removeFillerWords(result)
	if len(result) <= MaxTitleLength {
		return result
	}

	return truncateAtWord(result, MaxTitleLength)
}

func cleanTitle(title string) string {
	title = trailingJunk.ReplaceAllString(title, "")
	title = leadingJunk.ReplaceAllString(title, "")
	return strings.TrimSpace(multiSpace.ReplaceAllString(title, " "))
}

func removeNoise(title string) string {
	for _, pattern := range noisePatterns {
		title = pattern.ReplaceAllString(title, "")
	}
	title = strings.TrimSpace(multiSpace.ReplaceAllString(title, " "))
	return strings.TrimSpace(trailingJunk.ReplaceAllString(title, ""))
}

// deduplicateWords drops repeated words longer than two characters, keeping
// the first occurrence.
func deduplicateWords(title string) string {
	words := strings.Fields(title)
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))

	for _, word := range words {
		key := strings.ToLower(strings.Trim(word, ",.;:-"))
		if seen[key] && len(key) > 2 {
			continue
		}
		seen[key] = true
		out = append(out, word)
	}
	return strings.Join(out, " ")
}

// removeFillerWords drops low-value stop words. The first word is always
// kept since it is usually the brand.
func removeFillerWords(title string) string {
	words := strings.Fields(title)
	if len(words) == 0 {
		return ""
	}

	out := words[:1]
	for _, word := range words[1:] {
		lower := strings.ToLower(word)
		if fillerWords[lower] && !fillerExceptions[lower] {
			continue
		}
		out = append(out, word)
	}
	return strings.Join(out, " ")
}

// truncateAtWord cuts at the last complete word within the limit.
func truncateAtWord(title string, maxLen int) string {
	if len(title) <= maxLen {
		return title
	}
	truncated := title[:maxLen]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > maxLen/2 {
		truncated = truncated[:lastSpace]
	}
	return strings.TrimRight(truncated, " ,.-")
}
