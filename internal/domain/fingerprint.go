package domain

import "hash/fnv"

// Fingerprint returns a cheap order-dependent hash of content, used to
// detect growth between polls. Not cryptographic; collisions only cost a
// skipped stream update.
func Fingerprint(content string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(content))
	return h.Sum64()
}
