package scan

import (
	"net/url"
	"strings"
)

// Disposition is the classification outcome for one decoded payload.
type Disposition string

const (
	// DispositionRawContent marks text that does not parse as an absolute URL.
	DispositionRawContent Disposition = "raw-content"
	// DispositionInternalProduct marks a product link carrying a product id.
	DispositionInternalProduct Disposition = "internal-product-link"
	// DispositionInvalidProduct marks a recognized product link with a
	// missing or empty id segment.
	DispositionInvalidProduct Disposition = "invalid-product-link"
	// DispositionExternalLink marks any other absolute URL.
	DispositionExternalLink Disposition = "external-link"
)

// Scan is the routed form of a decoded payload.
type Scan struct {
	Disposition Disposition `json:"disposition"`
	Raw         string      `json:"raw"`
	ProductID   string      `json:"productId,omitempty"`
	URL         string      `json:"url,omitempty"`
}

// Classify routes decoded text without side effects. Ordering: absolute-URL
// parse first, then the /p/ product path, everything else is external. Safe
// to call repeatedly with the same input.
func Classify(text string) Scan {
	// url.Parse accepts relative text, so a scheme is required to count as
	// an absolute URL. Scheme-only payloads (mailto:, tel:) stay external.
	u, err := url.Parse(strings.TrimSpace(text))
	if err != nil || u.Scheme == "" {
		return Scan{Disposition: DispositionRawContent, Raw: text}
	}

	if strings.HasPrefix(u.Path, "/p/") {
		// The id is the segment immediately after /p/, extra segments are
		// ignored.
		segments := strings.Split(u.Path, "/")
		if len(segments) > 2 && segments[2] != "" {
			return Scan{
				Disposition: DispositionInternalProduct,
				Raw:         text,
				ProductID:   segments[2],
				URL:         u.String(),
			}
		}
		return Scan{Disposition: DispositionInvalidProduct, Raw: text, URL: u.String()}
	}

	return Scan{Disposition: DispositionExternalLink, Raw: text, URL: u.String()}
}
