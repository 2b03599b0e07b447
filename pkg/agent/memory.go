package agent

import (
	"os"
	"path/filepath"
)

// MemoryStore reads the workspace's freeform long-term memory file. Writing
// to it is left to the model via its file tools; this only surfaces the
// current content into the system prompt.
type MemoryStore struct {
	path string
}

// NewMemoryStore points a memory store at <workspace>/memory/MEMORY.md.
func NewMemoryStore(workspace string) *MemoryStore {
	return &MemoryStore{path: filepath.Join(workspace, "memory", "MEMORY.md")}
}

// GetMemoryContext returns the file's contents, or "" if it doesn't exist.
func (m *MemoryStore) GetMemoryContext() string {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return ""
	}
	return string(data)
}
