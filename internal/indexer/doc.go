// Package indexer turns one object into one index archive.
//
// The pipeline treats the indexer as an external collaborator: it hands over
// a Job and expects, on success, a well formed zip at job.IndexedPath that
// embeds the object's fingerprint. On failure nothing may be left at
// IndexedPath. Both implementations here write to a temporary file in the
// target directory and rename it into place, so a crash mid-write leaves at
// most a hidden *.partial file that no later run will mistake for output.
//
// # Implementations
//
// ArchiveIndexer needs no external tooling. It reads the object with the
// standard library's debug/elf, debug/pe and debug/macho readers and stores
// the format, architecture, section table, symbol names and imported
// libraries:
//
//	idx := indexer.NewArchiveIndexer(hasher.Fingerprint, logger)
//	err := idx.IndexObject(ctx, job)
//
// Archive layout:
//
//	index.json    ObjectIndex as JSON
//	symbols.txt   one symbol name per line (omitted when there are none)
//	FINGERPRINT   content + logic version digest, written last
//
// CommandIndexer drives an external analysis engine. The engine runs inside
// a fresh directory under the run's scratch space and every file it writes
// there is archived:
//
//	engine := []string{"analyze", "--batch", "--out", "{workdir}", "{object}"}
//	idx := indexer.NewCommandIndexer(engine, hasher.Fingerprint, logger)
//
// # Logic Versions
//
// The fingerprint embedded in each archive includes a digest of the logic
// version, see LogicVersion. For the command engine the version also covers
// the engine's argv and the bytes of its executable, so upgrading the engine
// re-plans every object on the next run.
package indexer
