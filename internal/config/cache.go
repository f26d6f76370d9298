package config

// CacheConfig controls the Redis-backed snapshots kept by the service layer.
// Prefix namespaces every key so several deployments can share one Redis
// database.  CatalogEnabled turns the course read-through cache off, in which
// case every catalog read goes to MongoDB.
type CacheConfig struct {
    Prefix         string
    CatalogEnabled bool
}

// LoadCacheConfig reads CACHE_PREFIX and CACHE_CATALOG_ENABLED.  Catalog
// entries carry no TTL; they are invalidated by every course mutation.
func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Prefix:         envStr("CACHE_PREFIX", "elearn"),
        CatalogEnabled: envBool("CACHE_CATALOG_ENABLED", true),
    }
}
