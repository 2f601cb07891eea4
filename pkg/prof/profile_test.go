//go:build profile

package prof

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestSessionWritesProfiles(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Mutex: filepath.Join(dir, "mutex.prof"),
		Heap:  filepath.Join(dir, "heap.prof"),
	}

	s, err := Start(cfg)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				mu.Lock()
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if _, err := Start(Config{CPU: filepath.Join(dir, "again.prof")}); err == nil {
		t.Error("second CPU profile started, want error")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	for _, path := range []string{cfg.CPU, cfg.Mutex, cfg.Heap} {
		if st, err := os.Stat(path); err != nil || st.Size() == 0 {
			t.Errorf("profile %s missing or empty: %v", path, err)
		}
	}
}
