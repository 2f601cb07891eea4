// Package prof wires runtime/pprof into long-running commands.
//
// Profiling is compiled in only with the "profile" build tag:
//
//	go build -tags profile ./cmd/eeprom24
//
// Without the tag, [Start] accepts an empty [Config] and rejects any other
// with [pkg.ErrNotSupported], so a command never silently drops a requested
// profile.
//
// A session records a CPU profile for its whole lifetime and writes snapshot
// profiles (heap, mutex, block, goroutine) when stopped. Mutex profiles are
// the useful ones for this module: every EEPROM transfer holds its device
// lock across all chunks and settle pauses, and contention on that lock
// shows up there.
//
//	s, err := prof.Start(prof.Config{CPU: "cpu.prof", Mutex: "mutex.prof"})
//	if err != nil { ... }
//	defer s.Stop()
package prof
