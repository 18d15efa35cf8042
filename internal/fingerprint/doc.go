// Package fingerprint decides whether an object needs to be indexed again.
//
// A fingerprint binds two things: the SHA-256 of the object's bytes and a
// digest of the indexing logic version. Changing either one produces a new
// fingerprint, so upgrading the indexer invalidates every archive it wrote
// before without any bookkeeping.
//
//	version, err := indexer.LogicVersion(engine)
//	h, err := fingerprint.NewHasher(version, fingerprint.DefaultCacheSize)
//	fp, err := h.Fingerprint("/data/objects/proj1/a.bin")
//
// Every archive carries the fingerprint it was built from as the zip member
// FINGERPRINT. The Oracle recomputes the fingerprint and compares:
//
//	oracle := fingerprint.NewOracle(logger)
//	if oracle.IsIndexed(objectPath, indexedPath, h.Fingerprint) {
//	    // skip
//	}
//
// The oracle never fails. A missing archive, a truncated or corrupt zip, a
// missing member and a stale logic version all mean "index again".
//
// Content digests are cached by (path, size, mtime) so an object hashed while
// planning is not hashed again when the indexer embeds its fingerprint.
package fingerprint
