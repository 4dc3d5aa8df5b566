package coins

import "fmt"

// =============================================================================
// REWARD CATALOG - Static, read-only registry of coupon types
// =============================================================================

// Catalog is an ordered, immutable set of coupon types.
// It is safe for concurrent use since nothing mutates it after NewCatalog.
type Catalog struct {
	entries []CatalogEntry
	index   map[string]int
}

// NewCatalog builds a catalog in the given order.
// Identifiers must be non-empty and unique; costs must be positive.
func NewCatalog(entries ...CatalogEntry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]CatalogEntry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("%w: empty identifier", ErrInvalidCatalog)
		}
		if e.Cost <= 0 {
			return nil, fmt.Errorf("%w: %s has non-positive cost %d", ErrInvalidCatalog, e.ID, e.Cost)
		}
		if _, dup := c.index[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate identifier %s", ErrInvalidCatalog, e.ID)
		}
		c.index[e.ID] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// DefaultCatalog returns the built-in partner coupons.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultEntries...)
	if err != nil {
		// Static table; only reachable if someone breaks defaultEntries.
		panic(err)
	}
	return c
}

var defaultEntries = []CatalogEntry{
	{ID: "SWIGGY50", Cost: 10, Description: "Flat 20% off on your first order on Swiggy"},
	{ID: "ZOMATOFREEDEL", Cost: 15, Description: "Free delivery on Zomato orders above 150"},
	{ID: "OLA50", Cost: 100, Description: "Get 50% off on your first Ola ride"},
	{ID: "UBER20", Cost: 200, Description: "20% off on your next 3 Uber rides"},
	{ID: "KFCMEAL", Cost: 300, Description: "Buy 1 Get 1 Free on KFC Zinger Meal"},
	{ID: "BLINKIT10", Cost: 100, Description: "10% off on groceries from Blinkit"},
	{ID: "ZEPTOSAVE", Cost: 100, Description: "Save 50 on your first Zepto order"},
	{ID: "LENSKARTBOGO", Cost: 150, Description: "Buy one get one free on Lenskart eyewear"},
	{ID: "INSTAMART5", Cost: 150, Description: "Extra 5% off on Instamart orders"},
	{ID: "BIRTHDAYUBER", Cost: 200, Description: "Special birthday discount on Uber rides"},
}

// All returns every entry in catalog order. The slice is a copy.
func (c *Catalog) All() []CatalogEntry {
	out := make([]CatalogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Get looks up an entry by identifier.
func (c *Catalog) Get(id string) (CatalogEntry, error) {
	i, ok := c.index[id]
	if !ok {
		return CatalogEntry{}, &UnknownCouponError{ID: id}
	}
	return c.entries[i], nil
}

// Affordable returns the entries whose cost is covered by balance, in
// catalog order.
func (c *Catalog) Affordable(balance int64) []CatalogEntry {
	var out []CatalogEntry
	for _, e := range c.entries {
		if e.Cost <= balance {
			out = append(out, e)
		}
	}
	return out
}

func (c *Catalog) Len() int { return len(c.entries) }
