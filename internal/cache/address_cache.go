package cache

import (
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// Address data is effectively static; a long TTL just bounds memory.
const defaultAddressTTL = 24 * time.Hour

// AddressRecord is a resolved geocode lookup.
type AddressRecord struct {
	UPRN *int64
	City string
}

// AddressCache stores geocode resolutions so repeated listings at the same
// address do not burn provider quota.
type AddressCache interface {
	GetAddress(postcode, address string) (AddressRecord, bool)
	SetAddress(postcode, address string, rec AddressRecord)
}

type addressCache struct {
	records Cache[string, AddressRecord]
	ttl     time.Duration
}

// NewAddressCache returns an in-memory cache tuned for geocode lookups.
func NewAddressCache() AddressCache {
	return &addressCache{
		records: NewTTLCache[string, AddressRecord](),
		ttl:     defaultAddressTTL,
	}
}

func (c *addressCache) GetAddress(postcode, address string) (AddressRecord, bool) {
	return c.records.Get(cacheKey(postcode, address))
}

func (c *addressCache) SetAddress(postcode, address string, rec AddressRecord) {
	if rec.UPRN == nil && rec.City == "" {
		return
	}
	c.records.Set(cacheKey(postcode, address), rec, c.ttl)
}

// cacheKey slugifies each part so punctuation and spacing differences in
// free-text address lines collapse to one key.
func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, slug.Make(trimmed))
	}
	return strings.Join(values, "|")
}
