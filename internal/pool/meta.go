package pool

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// contextMeta is the sidecar spec.md §6 requires next to each
// persistent context's state.json: enough to reconstruct the Context
// (id, proxy, tags, created_at) after a process restart, since
// state.json itself only carries CDP-level cookies/localStorage.
// Grounded on internal/models/checkpoint.go's ToJSON/SaveToFile/
// LoadFromFile round-trip shape.
type contextMeta struct {
	ID        string    `json:"id"`
	Proxy     string    `json:"proxy"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
}

func metaPath(storagePath string) string {
	return filepath.Join(storagePath, "meta.json")
}

func saveContextMeta(c *Context) error {
	if c.StoragePath == "" {
		return nil
	}
	if err := os.MkdirAll(c.StoragePath, 0o755); err != nil {
		return err
	}
	m := contextMeta{
		ID:        c.ID,
		Proxy:     c.Proxy,
		Tags:      c.tagList(),
		CreatedAt: c.CreatedAt,
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(metaPath(c.StoragePath), data, 0o644)
}

func loadContextMeta(storagePath string) (contextMeta, error) {
	data, err := os.ReadFile(metaPath(storagePath))
	if err != nil {
		return contextMeta{}, err
	}
	var m contextMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return contextMeta{}, err
	}
	return m, nil
}

// discoverPersistedContexts scans dir for <id>/meta.json sidecars left
// by a prior run, for Start to reconstruct persistent contexts on
// process restart.
func discoverPersistedContexts(dir string) []contextMeta {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	out := make([]contextMeta, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		storagePath := filepath.Join(dir, e.Name())
		m, err := loadContextMeta(storagePath)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

