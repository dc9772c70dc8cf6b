package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vivekhaldar/mcpboot/internal/fetcher"
	"github.com/vivekhaldar/mcpboot/internal/tool"
)

// contentSeparator joins document bodies in the content fingerprint
// input. Changing it invalidates every existing cache entry.
const contentSeparator = "\n---\n"

// Entry is one persisted generation: everything needed to serve the
// tool set without refetching or calling the LLM.
type Entry struct {
	PromptFingerprint  string               `json:"promptFingerprint"`
	ContentFingerprint string               `json:"contentFingerprint"`
	Plan               *tool.GenerationPlan `json:"plan"`
	CompiledTools      []*tool.CompiledTool `json:"compiledTools"`
	WhitelistDomains   []string             `json:"whitelistDomains"`
	CreatedAt          time.Time            `json:"createdAt"`
}

// Cache stores one JSON file per (prompt, content) pair under a
// directory. A disabled cache misses on every lookup and drops writes.
type Cache struct {
	dir      string
	disabled bool
	logger   *zap.Logger
}

// New creates a Cache over the given directory. The directory itself is
// created lazily on first write.
func New(dir string, disabled bool, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{dir: dir, disabled: disabled, logger: logger}
}

// Fingerprint is a 16-hex-character prefix of SHA-256 over the UTF-8
// string.
func Fingerprint(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}

// ContentFingerprint hashes the fetched bodies sorted by URL ascending.
// Sorting is load-bearing: fetches complete in arbitrary order and must
// not produce different keys.
func ContentFingerprint(contents []*fetcher.FetchedContent) string {
	sorted := make([]*fetcher.FetchedContent, len(contents))
	copy(sorted, contents)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].URL < sorted[j].URL })

	bodies := make([]string, 0, len(sorted))
	for _, c := range sorted {
		bodies = append(bodies, c.Text)
	}
	return Fingerprint(strings.Join(bodies, contentSeparator))
}

func (c *Cache) path(promptFp, contentFp string) string {
	return filepath.Join(c.dir, fmt.Sprintf("%s-%s.json", promptFp, contentFp))
}

// Get returns the entry for the fingerprint pair, or nil on miss. A
// file that does not parse or lacks required fields is deleted and
// treated as a miss.
func (c *Cache) Get(promptFp, contentFp string) *Entry {
	if c.disabled {
		return nil
	}
	path := c.path(promptFp, contentFp)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.Warn("corrupt cache entry, deleting", zap.String("path", path), zap.Error(err))
		os.Remove(path)
		return nil
	}
	if entry.PromptFingerprint == "" || entry.ContentFingerprint == "" ||
		entry.Plan == nil || len(entry.CompiledTools) == 0 {
		c.logger.Warn("incomplete cache entry, deleting", zap.String("path", path))
		os.Remove(path)
		return nil
	}
	return &entry
}

// Set writes (or overwrites) an entry. There is no eviction: cleanup is
// the caller's business.
func (c *Cache) Set(entry *Entry) error {
	if c.disabled {
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing cache entry: %w", err)
	}
	path := c.path(entry.PromptFingerprint, entry.ContentFingerprint)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	c.logger.Info("cache entry written", zap.String("path", path), zap.Int("tools", len(entry.CompiledTools)))
	return nil
}

// NewEntry captures a finished generation for persistence.
func NewEntry(promptFp, contentFp string, plan *tool.GenerationPlan, table *tool.Table) *Entry {
	return &Entry{
		PromptFingerprint:  promptFp,
		ContentFingerprint: contentFp,
		Plan:               plan,
		CompiledTools:      table.All(),
		WhitelistDomains:   table.WhitelistDomains,
		CreatedAt:          time.Now().UTC(),
	}
}

// Restore rebuilds the ordered tool table from an entry.
func (e *Entry) Restore() (*tool.Table, error) {
	return tool.FromCompiled(e.CompiledTools, e.WhitelistDomains)
}
