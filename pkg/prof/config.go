package prof

// Profile names a runtime/pprof snapshot profile.
type Profile string

// Snapshot profiles.
const (
	ProfileHeap      Profile = "heap"
	ProfileAllocs    Profile = "allocs"
	ProfileGoroutine Profile = "goroutine"
	ProfileBlock     Profile = "block"
	ProfileMutex     Profile = "mutex"
)

// Config selects the profiles a session records. Empty paths are skipped.
type Config struct {
	CPU       string // CPU profile, recorded from Start to Stop
	Heap      string
	Mutex     string
	Block     string
	Goroutine string
	HTTP      string // Address for net/http/pprof handlers, e.g. localhost:6060
}

// Empty returns true if no profile is requested.
func (c Config) Empty() bool {
	return c == Config{}
}

// snapshots returns the snapshot profiles requested, in write order.
func (c Config) snapshots() []snapshot {
	var out []snapshot
	for _, s := range []snapshot{
		{ProfileHeap, c.Heap},
		{ProfileMutex, c.Mutex},
		{ProfileBlock, c.Block},
		{ProfileGoroutine, c.Goroutine},
	} {
		if s.path != "" {
			out = append(out, s)
		}
	}
	return out
}

type snapshot struct {
	profile Profile
	path    string
}
