package storage

import (
	"time"

	"productsearch/internal/catalog"
)

// ProductRecord is a row of the products table.
type ProductRecord struct {
	catalog.Product
	UpdatedAt time.Time
}

// LoadLock is a row of the load_locks table.
type LoadLock struct {
	Collection string
	Owner      string
	AcquiredAt time.Time
}
