package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/crosslist/internal/models"
)

var (
	walmartIDPattern  = regexp.MustCompile(`/ip/(?:[^/]+/)?(\d+)`)
	walmartIDFallback = regexp.MustCompile(`/(\d{8,13})(?:\?|$)`)
	walmartSizeToken  = regexp.MustCompile(`_\d+x\d+`)
)

// deepFindMaxDepth bounds the recursive product search through irregular
// JSON shapes.
const deepFindMaxDepth = 8

var walmartSelectors = map[string][]string{
	"title": {
		"h1[itemprop='name']",
		"#main-title",
		"h1.prod-ProductTitle",
		"[data-testid='product-title']",
		"h1",
	},
	"price": {
		"[itemprop='price']",
		"[data-testid='price-wrap'] .f2",
		"span.price-group",
		".price-characteristic",
		"[data-automation-id='product-price'] .f2",
	},
	"brand": {
		"a[itemprop='brand']",
		"[data-testid='product-brand']",
		".prod-brandName a",
		"span.brand",
	},
	"images": {
		"[data-testid='hero-image'] img",
		".prod-HeroImage img",
		"img.prod-hero-image",
		"[data-testid='media-thumbnail'] img",
	},
	"description": {
		"[data-testid='product-description']",
		".about-desc .about-product-description",
		".prod-ProductDescription",
		"#product-description-section",
	},
	"category": {
		"[data-testid='breadcrumb'] a",
		".breadcrumb a",
		"nav.breadcrumb a",
	},
}

// PerimeterX challenge markers.
var walmartCaptchaMarkers = []string{
	"captcha",
	"perimeterx",
	"px-captcha",
	"press & hold",
	"human verification",
}

var walmartBlockMarkers = []string{
	"access denied",
	"robot or automated",
	"unusual traffic",
}

// Walmart scrapes walmart.com product pages. Pages embed product data as
// Next.js __NEXT_DATA__ JSON, which is preferred over selector parsing.
// When a structured gateway endpoint is configured, product lookups bypass
// the browser entirely.
type Walmart struct {
	gatewayURL string
	client     *http.Client
}

// NewWalmart builds a Walmart scraper. gatewayURL is the optional structured
// product endpoint; empty disables the bypass.
func NewWalmart(gatewayURL string) *Walmart {
	return &Walmart{
		gatewayURL: gatewayURL,
		client:     &http.Client{Timeout: 90 * time.Second},
	}
}

func (w *Walmart) Source() models.SourceMarketplace {
	return models.SourceWalmart
}

// CleanURL reduces a product URL to https://www.walmart.com/ip/{id}. URLs
// without a recognizable product id pass through unchanged.
func (w *Walmart) CleanURL(rawURL string) (string, string, error) {
	id := w.extractProductID(rawURL)
	if id == "" {
		return rawURL, "", nil
	}
	return "https://www.walmart.com/ip/" + id, id, nil
}

func (w *Walmart) extractProductID(rawURL string) string {
	if m := walmartIDPattern.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	if m := walmartIDFallback.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	parts := strings.Split(strings.TrimRight(rawURL, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		part, _, _ := strings.Cut(parts[i], "?")
		if len(part) >= 8 && isDigits(part) {
			return part
		}
	}
	return ""
}

func (w *Walmart) DetectBotBlock(html string) error {
	lower := strings.ToLower(html)

	for _, marker := range walmartCaptchaMarkers {
		if strings.Contains(lower, marker) {
			return newError(KindCaptcha, string(models.SourceWalmart),
				"PerimeterX challenge served (%d bytes)", len(html))
		}
	}
	for _, marker := range walmartBlockMarkers {
		if strings.Contains(lower, marker) {
			return newError(KindBlockPage, string(models.SourceWalmart),
				"access denied page served (%d bytes)", len(html))
		}
	}
	return nil
}

func (w *Walmart) ShortPageThreshold() int {
	return 5000
}

// FetchStructured serves a product from the gateway's JSON endpoint,
// skipping browser navigation. Returns served=false when no gateway is
// configured or the URL carried no product id, which falls the template
// back to the HTML path.
func (w *Walmart) FetchStructured(ctx context.Context, productID string) (*models.ScrapedProduct, bool, error) {
	if w.gatewayURL == "" || productID == "" {
		return nil, false, nil
	}
	source := string(models.SourceWalmart)

	endpoint := fmt.Sprintf("%s?product_id=%s", w.gatewayURL, url.QueryEscape(productID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, true, wrapError(KindScraping, source, err, "failed to build gateway request")
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, true, wrapError(KindScraping, source, err, "gateway request failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, true, newError(KindNotFound, source, "product %s not found via gateway", productID)
	case http.StatusTooManyRequests:
		return nil, true, newError(KindRateLimit, source, "gateway rate limit exceeded")
	default:
		return nil, true, newError(KindScraping, source, "gateway returned status %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, true, wrapError(KindScraping, source, err, "failed to decode gateway response")
	}

	productObj := deepFindProduct(payload, 0)
	if productObj == nil {
		return nil, true, newError(KindScraping, source, "no product object in gateway response")
	}

	raw := parseProductObject(productObj)
	raw["source"] = "gateway"

	clean := "https://www.walmart.com/ip/" + productID
	product, err := w.Transform(raw, clean, productID)
	if err != nil {
		return nil, true, err
	}
	if !product.IsComplete() {
		return nil, true, newError(KindScraping, source,
			"incomplete product from gateway: title=%q price=%.2f images=%d",
			product.Title, product.Price, len(product.Images))
	}
	return product, true, nil
}

// Extract prefers the embedded __NEXT_DATA__ JSON and falls back to
// selector parsing when it is absent or malformed.
func (w *Walmart) Extract(html string) map[string]any {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return map[string]any{"page_length": len(html)}
	}

	if raw := w.extractNextData(doc); raw != nil {
		raw["page_length"] = len(html)
		return raw
	}

	raw := map[string]any{
		"title":        firstText(doc, walmartSelectors["title"]),
		"price":        w.extractPriceHTML(doc),
		"brand":        firstText(doc, walmartSelectors["brand"]),
		"images":       w.extractImagesHTML(doc),
		"description":  firstText(doc, walmartSelectors["description"]),
		"category":     w.extractCategoryHTML(doc),
		"availability": "",
		"source":       "html",
		"page_length":  len(html),
	}
	return raw
}

func (w *Walmart) extractNextData(doc *goquery.Document) map[string]any {
	blob := doc.Find("script#__NEXT_DATA__").First().Text()
	if blob == "" {
		return nil
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return nil
	}

	productObj := deepFindProduct(data, 0)
	if productObj == nil {
		return nil
	}

	raw := parseProductObject(productObj)
	if raw["title"] == "" {
		return nil
	}
	raw["source"] = "next_data"
	return raw
}

func (w *Walmart) extractPriceHTML(doc *goquery.Document) float64 {
	for _, selector := range walmartSelectors["price"] {
		var price float64
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			// itemprop/meta nodes carry the price in a content attribute.
			if content := sel.AttrOr("content", ""); content != "" {
				if p, err := strconv.ParseFloat(content, 64); err == nil && p > 0 {
					price = p
					return false
				}
			}
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

func (w *Walmart) extractImagesHTML(doc *goquery.Document) []string {
	images := make([]string, 0, models.MaxListingImages)
	seen := make(map[string]bool)

	for _, selector := range walmartSelectors["images"] {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			src := sel.AttrOr("src", sel.AttrOr("data-src", ""))
			if src == "" || !strings.HasPrefix(src, "http") || seen[src] {
				return
			}
			seen[src] = true
			images = append(images, walmartLargeImage(src))
		})
	}

	if len(images) > models.MaxListingImages {
		images = images[:models.MaxListingImages]
	}
	return images
}

func (w *Walmart) extractCategoryHTML(doc *goquery.Document) string {
	for _, selector := range walmartSelectors["category"] {
		var crumbs []string
		doc.Find(selector).Each(func(_ int, link *goquery.Selection) {
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

func (w *Walmart) Transform(raw map[string]any, url, productID string) (*models.ScrapedProduct, error) {
	return productFromRaw(raw, models.SourceWalmart, url, productID), nil
}

// deepFindProduct searches nested JSON for a product-shaped object, one
// carrying a name plus some price field. Depth and list traversal are
// bounded since gateway payloads can be arbitrarily nested.
func deepFindProduct(obj any, depth int) map[string]any {
	if depth > deepFindMaxDepth {
		return nil
	}

	switch v := obj.(type) {
	case map[string]any:
		if _, hasName := v["name"]; hasName {
			if _, ok := v["priceInfo"]; ok {
				return v
			}
			if _, ok := v["price"]; ok {
				return v
			}
			if _, ok := v["offerPrice"]; ok {
				return v
			}
		}
		for _, value := range v {
			if found := deepFindProduct(value, depth+1); found != nil {
				return found
			}
		}
	case []any:
		limit := len(v)
		if limit > 10 {
			limit = 10
		}
		for _, item := range v[:limit] {
			if found := deepFindProduct(item, depth+1); found != nil {
				return found
			}
		}
	}
	return nil
}

// parseProductObject normalizes a structured product object into the same
// field map the HTML path produces.
func parseProductObject(product map[string]any) map[string]any {
	description, _ := product["shortDescription"].(string)
	if description == "" {
		description, _ = product["detailedDescription"].(string)
	}
	if strings.Contains(description, "<") {
		description = stripHTML(description)
	}

	title, _ := product["name"].(string)
	brand, _ := product["brand"].(string)

	return map[string]any{
		"title":        title,
		"price":        structuredPrice(product),
		"brand":        brand,
		"images":       structuredImages(product),
		"description":  description,
		"category":     structuredCategory(product),
		"availability": structuredAvailability(product),
	}
}

func structuredPrice(product map[string]any) float64 {
	if priceInfo, ok := product["priceInfo"].(map[string]any); ok {
		if current, ok := priceInfo["currentPrice"].(map[string]any); ok {
			if p := asFloat(current["price"]); p > 0 {
				return p
			}
		}
		if priceRange, ok := priceInfo["priceRange"].(map[string]any); ok {
			if p := asFloat(priceRange["minPrice"]); p > 0 {
				return p
			}
		}
	}

	if p := asFloat(product["price"]); p > 0 {
		return p
	}
	if p := asFloat(product["offerPrice"]); p > 0 {
		return p
	}

	for _, key := range []string{"buyBoxPrice", "selectedVariantPrice", "wasPrice"} {
		switch val := product[key].(type) {
		case map[string]any:
			if p := asFloat(val["price"]); p > 0 {
				return p
			}
			if p := asFloat(val["amount"]); p > 0 {
				return p
			}
		default:
			if p := asFloat(val); p > 0 {
				return p
			}
		}
	}
	return 0
}

func structuredImages(product map[string]any) []string {
	images := make([]string, 0, models.MaxListingImages)
	seen := make(map[string]bool)

	add := func(raw string) {
		if raw == "" || seen[raw] {
			return
		}
		seen[raw] = true
		images = append(images, walmartLargeImage(raw))
	}

	if imageInfo, ok := product["imageInfo"].(map[string]any); ok {
		if all, ok := imageInfo["allImages"].([]any); ok {
			for _, img := range all {
				switch v := img.(type) {
				case map[string]any:
					u, _ := v["url"].(string)
					add(u)
				case string:
					add(v)
				}
			}
		}
	}

	if len(images) == 0 {
		list, ok := product["images"].([]any)
		if !ok {
			list, _ = product["imageUrls"].([]any)
		}
		for _, img := range list {
			switch v := img.(type) {
			case map[string]any:
				u, _ := v["url"].(string)
				add(u)
			case string:
				add(v)
			}
		}
	}

	if len(images) == 0 {
		primary, _ := product["primaryImage"].(string)
		if primary == "" {
			primary, _ = product["thumbnailUrl"].(string)
		}
		add(primary)
	}

	if len(images) > models.MaxListingImages {
		images = images[:models.MaxListingImages]
	}
	return images
}

func structuredCategory(product map[string]any) string {
	if category, ok := product["category"].(map[string]any); ok {
		if path, ok := category["path"].([]any); ok {
			var names []string
			for _, entry := range path {
				if m, ok := entry.(map[string]any); ok {
					if name, _ := m["name"].(string); name != "" {
						names = append(names, name)
					}
				}
			}
			if len(names) > 0 {
				return strings.Join(names, " > ")
			}
		}
	}

	breadcrumb, ok := product["breadcrumb"].([]any)
	if !ok {
		breadcrumb, _ = product["taxonomyPath"].([]any)
	}
	if len(breadcrumb) > 0 {
		var names []string
		for _, entry := range breadcrumb {
			switch v := entry.(type) {
			case map[string]any:
				name, _ := v["name"].(string)
				if name == "" {
					name, _ = v["text"].(string)
				}
				if name != "" {
					names = append(names, name)
				}
			case string:
				if v != "" {
					names = append(names, v)
				}
			}
		}
		if len(names) > 0 {
			return strings.Join(names, " > ")
		}
	}

	path, _ := product["categoryPath"].(string)
	return path
}

func structuredAvailability(product map[string]any) string {
	if avail, _ := product["availabilityStatus"].(string); avail != "" {
		return avail
	}
	if offer, _ := product["offerType"].(string); offer != "" {
		return "Available (" + offer + ")"
	}

	inStock, ok := product["inStock"].(bool)
	if !ok {
		inStock, ok = product["isInStock"].(bool)
	}
	if ok {
		if inStock {
			return "In Stock"
		}
		return "Out of Stock"
	}
	return ""
}

// walmartLargeImage strips query params and the thumbnail size token so the
// CDN serves the original resolution.
func walmartLargeImage(imgURL string) string {
	if !strings.HasPrefix(imgURL, "http") {
		return imgURL
	}
	imgURL, _, _ = strings.Cut(imgURL, "?")
	if strings.Contains(imgURL, "walmartimages.com") {
		imgURL = walmartSizeToken.ReplaceAllString(imgURL, "")
	}
	return imgURL
}

// stripHTML flattens an HTML fragment to its whitespace-normalized text.
func stripHTML(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// asFloat coerces the numeric shapes JSON decoding can produce.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
