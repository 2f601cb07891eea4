package sim

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ardnew/softeeprom/pkg"
)

// ErasedByte is the value of every cell in a factory-fresh EEPROM.
const ErasedByte = 0xFF

// Store is the backing memory array of an emulated chip.
type Store interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the array size in bytes.
	Size() int

	// Sync flushes any cached writes.
	Sync() error

	// Close releases the store.
	Close() error
}

// MemoryStore implements Store using an in-memory buffer.
type MemoryStore struct {
	data  []byte
	mutex sync.RWMutex
}

// NewMemoryStore creates an erased in-memory store of the given size.
func NewMemoryStore(size int) *MemoryStore {
	data := make([]byte, size)
	for i := range data {
		data[i] = ErasedByte
	}
	return &MemoryStore{data: data}
}

// NewMemoryStoreFrom creates an in-memory store holding a copy of data.
func NewMemoryStoreFrom(data []byte) *MemoryStore {
	return &MemoryStore{data: append([]byte(nil), data...)}
}

// Size returns the store size.
func (m *MemoryStore) Size() int {
	return len(m.data)
}

// ReadAt reads len(p) bytes at off.
func (m *MemoryStore) ReadAt(p []byte, off int64) (int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, io.EOF
	}
	return copy(p, m.data[off:]), nil
}

// WriteAt writes p at off.
func (m *MemoryStore) WriteAt(p []byte, off int64) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, io.EOF
	}
	return copy(m.data[off:], p), nil
}

// Bytes returns a copy of the store contents.
func (m *MemoryStore) Bytes() []byte {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return append([]byte(nil), m.data...)
}

// Sync is a no-op for memory storage.
func (m *MemoryStore) Sync() error {
	return nil
}

// Close is a no-op for memory storage.
func (m *MemoryStore) Close() error {
	return nil
}

// FileStore implements Store using a file, so emulated contents survive
// process restarts.
type FileStore struct {
	file  *os.File
	size  int
	mutex sync.RWMutex
}

// NewFileStore opens or creates the file at path. A file shorter than size
// is extended with erased bytes; a longer file is rejected.
func NewFileStore(path string, size int) (*FileStore, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	have := stat.Size()
	if have > int64(size) {
		file.Close()
		return nil, fmt.Errorf("%w: %s holds %d bytes, chip holds %d",
			pkg.ErrInvalidParameter, path, have, size)
	}
	if have < int64(size) {
		fill := make([]byte, int64(size)-have)
		for i := range fill {
			fill[i] = ErasedByte
		}
		if _, err := file.WriteAt(fill, have); err != nil {
			file.Close()
			return nil, err
		}
	}

	return &FileStore{file: file, size: size}, nil
}

// Size returns the store size.
func (f *FileStore) Size() int {
	return f.size
}

// ReadAt reads len(p) bytes at off.
func (f *FileStore) ReadAt(p []byte, off int64) (int, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	if f.file == nil {
		return 0, os.ErrClosed
	}
	if off < 0 || off+int64(len(p)) > int64(f.size) {
		return 0, io.EOF
	}
	return f.file.ReadAt(p, off)
}

// WriteAt writes p at off.
func (f *FileStore) WriteAt(p []byte, off int64) (int, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.file == nil {
		return 0, os.ErrClosed
	}
	if off < 0 || off+int64(len(p)) > int64(f.size) {
		return 0, io.EOF
	}
	return f.file.WriteAt(p, off)
}

// Sync flushes file writes to disk.
func (f *FileStore) Sync() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.file == nil {
		return os.ErrClosed
	}
	return f.file.Sync()
}

// Close closes the underlying file.
func (f *FileStore) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.file != nil {
		err := f.file.Close()
		f.file = nil
		return err
	}
	return nil
}
