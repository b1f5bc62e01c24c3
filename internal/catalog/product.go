// Package catalog holds the product and embedding record types shared by the build, load and
// serving paths, plus readers and writers for their on-disk formats.
package catalog

import (
	"fmt"
	"strings"
)

// ImageURLSeparator separates candidate image URLs in a product's image field.
const ImageURLSeparator = "|"

// Product is one catalog row.
type Product struct {
	ID            string
	Name          string
	Category      string
	Price         string
	About         string
	Specification string
	// ImageField is the raw, separator-delimited list of candidate image URLs.
	ImageField string
}

// EnhancedText is the labelled text representation that gets embedded for a product.
func (p Product) EnhancedText() string {
	return fmt.Sprintf("Product: %s. Category: %s. Price: %s. Description: %s. Specs: %s",
		p.Name, p.Category, p.Price, p.About, p.Specification)
}

// Description is what the metadata table stores as the product description.
func (p Product) Description() string {
	parts := make([]string, 0, 2)
	for _, s := range []string{p.About, p.Specification} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// RawImageURLs splits the image field without filtering.
func (p Product) RawImageURLs() []string {
	if strings.TrimSpace(p.ImageField) == "" {
		return nil
	}
	var urls []string
	for _, u := range strings.Split(p.ImageField, ImageURLSeparator) {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// Metadata is the denormalized product copy stored next to each vector.
type Metadata struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    string `json:"price"`
}

// MetadataOf returns the denormalized metadata for p.
func MetadataOf(p Product) Metadata {
	return Metadata{Name: p.Name, Category: p.Category, Price: p.Price}
}
