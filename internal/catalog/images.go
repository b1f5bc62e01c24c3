package catalog

import "strings"

// placeholderPatterns mark image URLs that point at stock placeholders rather than product photos.
var placeholderPatterns = []string{"transparent-pixel", "placeholder", "no-image"}

// IsPlaceholderImage reports whether url is a known placeholder image.
func IsPlaceholderImage(url string) bool {
	lower := strings.ToLower(url)
	for _, p := range placeholderPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// NormalizeImageURL repairs a scheme that lost one of its slashes.
func NormalizeImageURL(url string) string {
	url = strings.TrimSpace(url)
	switch {
	case strings.HasPrefix(url, "https:/") && !strings.HasPrefix(url, "https://"):
		return "https://" + strings.TrimPrefix(url, "https:/")
	case strings.HasPrefix(url, "http:/") && !strings.HasPrefix(url, "http://"):
		return "http://" + strings.TrimPrefix(url, "http:/")
	default:
		return url
	}
}

// ImageURLs returns the usable image URLs of p in field order, along with the count of placeholders dropped.
func (p Product) ImageURLs() (urls []string, placeholders int) {
	for _, raw := range p.RawImageURLs() {
		if IsPlaceholderImage(raw) {
			placeholders++
			continue
		}
		urls = append(urls, NormalizeImageURL(raw))
	}
	return urls, placeholders
}

// DisplayImageURL is the first usable image URL of p, or "".
func (p Product) DisplayImageURL() string {
	urls, _ := p.ImageURLs()
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}
