package scraper

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/crosslist/internal/models"
)

var (
	asinPattern    = regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})`)
	asinToken      = regexp.MustCompile(`^[A-Z0-9]{10}$`)
	pricePattern   = regexp.MustCompile(`\$?([\d,]+\.?\d*)`)
	imageSizeToken = regexp.MustCompile(`\._[A-Z]{2}\d+_\.`)
)

// amazonSelectors are tried in priority order per field; the first non-empty
// match wins.
var amazonSelectors = map[string][]string{
	"title": {
		"#productTitle",
		"span#title",
		"#title_feature_div span",
		"h1#title span",
	},
	"price": {
		".a-price .a-offscreen",
		"#priceblock_ourprice",
		"#priceblock_dealprice",
		".a-price-whole",
		"#corePrice_feature_div .a-offscreen",
		"#corePriceDisplay_desktop_feature_div .a-offscreen",
		"span.a-color-price",
	},
	"brand": {
		"#bylineInfo",
		"a#brand",
		"#brand",
		"tr.po-brand td.a-span9 span",
	},
	"images": {
		"#imgTagWrapperId img",
		"#landingImage",
		"#imgBlkFront",
		".imgTagWrapper img",
	},
	"description": {
		"#feature-bullets",
		"#productDescription",
		"#aplus_feature_div",
	},
	"category": {
		"#wayfinding-breadcrumbs_feature_div",
		".a-breadcrumb",
	},
	"availability": {
		"#availability span",
		"#availability",
	},
}

// Block page markers served by Amazon instead of product content.
var amazonDogPageMarkers = []string{
	"sorry, we just need to make sure you're not a robot",
	"to discuss automated access",
	"api-services-support@amazon.com",
}

// Amazon scrapes amazon.com product pages. Pages under 10KB are treated as
// blocked since real product pages are never that small.
type Amazon struct{}

func NewAmazon() *Amazon {
	return &Amazon{}
}

func (a *Amazon) Source() models.SourceMarketplace {
	return models.SourceAmazon
}

// CleanURL reduces a product URL to https://{host}/dp/{ASIN}, stripping
// tracking parameters. URLs without a recognizable ASIN pass through
// unchanged.
func (a *Amazon) CleanURL(rawURL string) (string, string, error) {
	asin := a.extractASIN(rawURL)
	if asin == "" {
		return rawURL, "", nil
	}

	host := "www.amazon.com"
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Host != "" {
		host = parsed.Host
	}
	return "https://" + host + "/dp/" + asin, asin, nil
}

func (a *Amazon) extractASIN(rawURL string) string {
	if m := asinPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	for _, part := range strings.Split(rawURL, "/") {
		if asinToken.MatchString(part) {
			return part
		}
	}
	return ""
}

func (a *Amazon) DetectBotBlock(html string) error {
	lower := strings.ToLower(html)

	if strings.Contains(lower, "captcha") || strings.Contains(lower, "enter the characters") {
		return newError(KindCaptcha, string(models.SourceAmazon),
			"CAPTCHA challenge served (%d bytes)", len(html))
	}
	for _, marker := range amazonDogPageMarkers {
		if strings.Contains(lower, marker) {
			return newError(KindBlockPage, string(models.SourceAmazon),
				"dog page served (%d bytes)", len(html))
		}
	}
	return nil
}

func (a *Amazon) ShortPageThreshold() int {
	return 10000
}

func (a *Amazon) Extract(html string) map[string]any {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return map[string]any{"page_length": len(html)}
	}

	return map[string]any{
		"title":        firstText(doc, amazonSelectors["title"]),
		"price":        a.extractPrice(doc),
		"brand":        a.extractBrand(doc),
		"images":       a.extractImages(doc),
		"description":  a.extractDescription(doc),
		"category":     extractBreadcrumb(doc, amazonSelectors["category"]),
		"availability": firstText(doc, amazonSelectors["availability"]),
		"page_length":  len(html),
	}
}

// extractPrice handles the several price block structures Amazon serves
// (whole, deal, range). The first positive parse wins.
func (a *Amazon) extractPrice(doc *goquery.Document) float64 {
	for _, selector := range amazonSelectors["price"] {
		var price float64
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if p, ok := parsePrice(sel.Text()); ok {
				price = p
				return false
			}
			return true
		})
		if price > 0 {
			return price
		}
	}
	return 0
}

func (a *Amazon) extractBrand(doc *goquery.Document) string {
	for _, selector := range amazonSelectors["brand"] {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text == "" {
			continue
		}
		for _, prefix := range []string{"Visit the ", "Brand: ", "by "} {
			text = strings.TrimPrefix(text, prefix)
		}
		text = strings.TrimSuffix(text, " Store")
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return ""
}

// extractImages collects image URLs rewritten to the high-resolution size
// token, deduplicated, capped at the listing image limit.
func (a *Amazon) extractImages(doc *goquery.Document) []string {
	images := make([]string, 0, models.MaxListingImages)
	seen := make(map[string]bool)

	add := func(raw string) {
		clean := amazonHighRes(raw)
		if clean != "" && !seen[clean] {
			images = append(images, clean)
			seen[clean] = true
		}
	}

	for _, selector := range amazonSelectors["images"] {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			src := sel.AttrOr("data-old-hires", "")
			if src == "" {
				src = sel.AttrOr("data-a-dynamic-image", "")
			}
			if src == "" {
				src = sel.AttrOr("src", "")
			}
			if src == "" {
				return
			}

			// data-a-dynamic-image is a JSON object keyed by URL.
			if strings.HasPrefix(src, "{") {
				var byURL map[string]any
				if err := json.Unmarshal([]byte(src), &byURL); err == nil {
					for imgURL := range byURL {
						add(imgURL)
					}
				}
				return
			}

			// 1x1 pixels are tracking beacons, not product images.
			if strings.Contains(src, "1x1") || strings.Contains(src, "pixel") {
				return
			}
			add(src)
		})
	}

	if len(images) > models.MaxListingImages {
		images = images[:models.MaxListingImages]
	}
	return images
}

func (a *Amazon) extractDescription(doc *goquery.Document) string {
	for _, selector := range amazonSelectors["description"] {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}

		var points []string
		sel.Find("li span.a-list-item").Each(func(_ int, b *goquery.Selection) {
			if text := strings.TrimSpace(b.Text()); text != "" {
				points = append(points, text)
			}
		})
		if len(points) > 0 {
			return strings.Join(points, " | ")
		}

		if text := strings.TrimSpace(sel.Text()); len(text) > 10 {
			return text
		}
	}
	return ""
}

func (a *Amazon) Transform(raw map[string]any, url, productID string) (*models.ScrapedProduct, error) {
	return productFromRaw(raw, models.SourceAmazon, url, productID), nil
}

// amazonHighRes rewrites the size token in an Amazon image URL to the
// full-resolution variant.
func amazonHighRes(imgURL string) string {
	if !strings.HasPrefix(imgURL, "http") {
		return ""
	}
	return imageSizeToken.ReplaceAllString(imgURL, "._SL1500_.")
}

// firstText returns the first non-empty trimmed text among the selectors.
func firstText(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func extractBreadcrumb(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		var crumbs []string
		doc.Find(selector).First().Find("a").Each(func(_ int, link *goquery.Selection) {
			if text := strings.TrimSpace(link.Text()); text != "" {
				crumbs = append(crumbs, text)
			}
		})
		if len(crumbs) > 0 {
			return strings.Join(crumbs, " > ")
		}
	}
	return ""
}

// parsePrice extracts the first positive numeric token from price text.
func parsePrice(text string) (float64, bool) {
	m := pricePattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, false
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}

// productFromRaw maps an extracted field map onto a ScrapedProduct, keeping
// the raw map for diagnostics.
func productFromRaw(raw map[string]any, source models.SourceMarketplace, url, productID string) *models.ScrapedProduct {
	p := models.NewScrapedProduct(source, url, productID)
	p.Title, _ = raw["title"].(string)
	p.Price, _ = raw["price"].(float64)
	p.Brand, _ = raw["brand"].(string)
	p.Images, _ = raw["images"].([]string)
	p.Description, _ = raw["description"].(string)
	p.Category, _ = raw["category"].(string)
	p.Availability, _ = raw["availability"].(string)
	p.RawData = raw
	return p
}
