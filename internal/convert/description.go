package convert

import (
	"fmt"
	"html"
	"strings"

	"github.com/maltedev/crosslist/internal/models"
)

// maxGalleryImages bounds the thumbnail row under the hero image.
const maxGalleryImages = 4

// BuildDescription renders a mobile-friendly HTML description for a
// listing. All CSS is inline because eBay strips style tags. User-sourced
// text is escaped.
func BuildDescription(product *models.ScrapedProduct) string {
	var b strings.Builder

	b.WriteString(`<div style="max-width:800px;margin:0 auto;font-family:Arial,Helvetica,sans-serif;color:#1E293B;">`)

	// Header banner.
	fmt.Fprintf(&b,
		`<div style="background:#2563EB;color:#FFF;padding:16px 24px;border-radius:8px 8px 0 0;">`+
			`<h2 style="margin:0;font-size:20px;font-weight:700;line-height:1.3;">%s</h2></div>`,
		html.EscapeString(product.Title))

	// Hero image plus feature bullets.
	b.WriteString(`<div style="display:flex;gap:24px;padding:20px;flex-wrap:wrap;align-items:flex-start;">`)
	if product.HasImages() {
		fmt.Fprintf(&b,
			`<div style="flex:0 0 280px;text-align:center;">`+
				`<img src="%s" alt="%s" style="max-width:280px;max-height:280px;border-radius:6px;object-fit:contain;" /></div>`,
			html.EscapeString(product.Images[0]), html.EscapeString(product.Title))
	}
	if product.Description != "" {
		b.WriteString(`<div style="flex:1;min-width:200px;">`)
		if features := extractFeatures(product.Description); len(features) > 0 {
			b.WriteString(`<ul style="padding-left:20px;margin:0;">`)
			for _, f := range features {
				fmt.Fprintf(&b, `<li style="margin-bottom:6px;line-height:1.5;">%s</li>`, html.EscapeString(f))
			}
			b.WriteString(`</ul>`)
		} else {
			fmt.Fprintf(&b, `<p style="line-height:1.6;margin:0;">%s</p>`, html.EscapeString(product.Description))
		}
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div>`)

	// Specs table.
	specs := [][2]string{}
	if product.Brand != "" {
		specs = append(specs, [2]string{"Brand", product.Brand})
	}
	if product.Category != "" {
		specs = append(specs, [2]string{"Category", product.Category})
	}
	specs = append(specs, [2]string{"Condition", "New"})
	b.WriteString(`<table style="width:100%;border-collapse:collapse;margin:0 0 20px;">`)
	for i, spec := range specs {
		bg := "#FFFFFF"
		if i%2 == 0 {
			bg = "#F8FAFC"
		}
		fmt.Fprintf(&b,
			`<tr style="background:%s;"><td style="padding:8px 16px;font-weight:700;width:30%%;border:1px solid #E2E8F0;">%s</td>`+
				`<td style="padding:8px 16px;border:1px solid #E2E8F0;">%s</td></tr>`,
			bg, html.EscapeString(spec[0]), html.EscapeString(spec[1]))
	}
	b.WriteString(`</table>`)

	// Thumbnail gallery.
	if len(product.Images) > 1 {
		b.WriteString(`<div style="display:flex;gap:8px;padding:0 20px 20px;flex-wrap:wrap;">`)
		gallery := product.Images[1:]
		if len(gallery) > maxGalleryImages {
			gallery = gallery[:maxGalleryImages]
		}
		for _, img := range gallery {
			fmt.Fprintf(&b,
				`<img src="%s" style="width:120px;height:120px;object-fit:contain;border:1px solid #E2E8F0;border-radius:6px;" />`,
				html.EscapeString(img))
		}
		b.WriteString(`</div>`)
	}

	b.WriteString(`</div>`)
	return b.String()
}

// extractFeatures splits a pipe-delimited or sentence-formed description
// into short bullet points.
func extractFeatures(description string) []string {
	var parts []string
	if strings.Contains(description, " | ") {
		parts = strings.Split(description, " | ")
	} else if strings.Contains(description, ". ") && len(description) > 120 {
		parts = strings.Split(description, ". ")
	} else {
		return nil
	}

	features := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(strings.TrimSuffix(part, "."))
		if part != "" {
			features = append(features, part)
		}
	}
	if len(features) > 8 {
		features = features[:8]
	}
	return features
}
