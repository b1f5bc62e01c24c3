package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// columnAliases maps accepted CSV header names to Product fields.
var columnAliases = map[string]string{
	"uniq id":               "id",
	"product_id":            "id",
	"id":                    "id",
	"product name":          "name",
	"name":                  "name",
	"category":              "category",
	"selling price":         "price",
	"price":                 "price",
	"about product":         "about",
	"about":                 "about",
	"product specification": "specification",
	"specification":         "specification",
	"image":                 "image",
	"images":                "image",
}

// ReadProductsCSV parses product rows from a CSV stream with a header line.
// Rows without an id are skipped and counted in the returned skip total.
func ReadProductsCSV(r io.Reader) ([]Product, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, fmt.Errorf("empty csv: missing header")
		}
		return nil, 0, fmt.Errorf("failed to read csv header: %w", err)
	}

	columns := make(map[string]int)
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if field, ok := columnAliases[key]; ok {
			if _, dup := columns[field]; !dup {
				columns[field] = i
			}
		}
	}
	if _, ok := columns["id"]; !ok {
		return nil, 0, fmt.Errorf("csv header has no product id column")
	}

	var (
		products []Product
		skipped  int
		seen     = make(map[string]struct{})
	)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		get := func(field string) string {
			i, ok := columns[field]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		p := Product{
			ID:            get("id"),
			Name:          get("name"),
			Category:      get("category"),
			Price:         get("price"),
			About:         get("about"),
			Specification: get("specification"),
			ImageField:    get("image"),
		}
		if p.ID == "" {
			skipped++
			continue
		}
		if _, dup := seen[p.ID]; dup {
			skipped++
			continue
		}
		seen[p.ID] = struct{}{}
		products = append(products, p)
	}

	return products, skipped, nil
}
