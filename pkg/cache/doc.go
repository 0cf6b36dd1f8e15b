// Package cache stores successful UTS page bodies in Redis.
//
// UTS content is versioned (e.g. "2023AA" or "current"), so a page fetched
// once can be served again for a long time without spending a service ticket
// or a rate-limit slot. Only pages without a structured error are cached.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.CacheKey{
//		URL:      "https://uts-ws.nlm.nih.gov/rest/content/current/CUI/C0009044/atoms",
//		Query:    url.Values{"language": []string{"ENG"}},
//		Page:     1,
//		PageSize: 25,
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if err == cache.ErrCacheMiss {
//		// fetch from UTS, then manager.Set(ctx, key, cache.NewEntry(body, 200, page, ttl))
//	}
//
// # Keys
//
// The ticket query parameter is never part of a key: tickets are single-use,
// the content they unlock is not.
//
// # Metrics
//
//   - uts_cache_hits_total{layer="redis"} - Cache hits
//   - uts_cache_misses_total - Cache misses
//   - uts_cache_size_bytes{layer="redis"} - Bytes written
//   - uts_cache_errors_total{operation} - Cache operation errors
package cache
