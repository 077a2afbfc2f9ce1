// Package cache provides a Redis-backed response cache for ISS GET requests.
//
// ISS answers the same listing query identically for minutes at a time, so
// repeated sweeps and API requests are served from Redis instead of hitting
// iss.moex.com again. Payloads are stored zstd-compressed; listing pages
// compress well because most cells repeat.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Path:  "/securities.json",
//		Query: url.Values{"engine": []string{"stock"}, "start": []string{"100"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from ISS
//	}
//
// # Response Caching
//
//	entry := cache.NewEntry(resp, body, cache.DefaultTTL)
//	if err := manager.Set(ctx, key, entry); err != nil {
//		return err
//	}
//
// The TTL comes from the Expires header when ISS sends one and from the
// configured default otherwise.
//
// # Metrics
//
//   - iss_cache_hits_total{layer="redis"} - Cache hits
//   - iss_cache_misses_total - Cache misses
//   - iss_cache_size_bytes{layer="redis"} - Bytes written to the cache
//   - iss_cache_compression_ratio - Raw size divided by stored size
//   - iss_cache_errors_total{operation} - Cache operation errors
package cache
