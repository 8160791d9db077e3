// Package audiocache is the content-addressed store of synthesized audio
// artifacts. Concurrent requests for the same fingerprint share a single
// in-flight synthesis.
package audiocache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/thunder45/service-translate-sub001/internal/persist"
	"github.com/thunder45/service-translate-sub001/internal/tts"
)

const indexFile = "cache-index.json"

// Artifact is one cached synthesized utterance.
type Artifact struct {
	ID           string    `json:"artifactId"`
	Format       string    `json:"format"`
	Size         int64     `json:"size"`
	FilePath     string    `json:"filePath"`
	CreatedAt    time.Time `json:"createdAt"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// Filename is the public name the HTTP audio server exposes.
func (a Artifact) Filename() string {
	return a.ID + "." + a.Format
}

// Options tunes eviction.
type Options struct {
	MaxSizeBytes int64
	MaxAge       time.Duration
}

// Stats is the cache view exported by /health.
type Stats struct {
	Artifacts  int   `json:"artifacts"`
	TotalBytes int64 `json:"totalBytes"`
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
}

// Cache owns the artifact directory and its JSON index. The index is only
// updated after a successful file write, so a crash can at worst leave an
// orphan file, never a dangling index entry.
type Cache struct {
	mu     sync.Mutex
	dir    string
	opts   Options
	index  map[string]*Artifact
	synth  tts.Synthesizer
	group  singleflight.Group
	hits   int64
	misses int64

	// dirty marks lastAccessed touches not yet flushed to the index file.
	dirty bool
}

// New opens the cache at dir, rehydrating the index and pruning entries
// whose files have gone missing.
func New(dir string, synth tts.Synthesizer, opts Options) (*Cache, error) {
	if opts.MaxSizeBytes <= 0 {
		opts.MaxSizeBytes = 500 << 20
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{dir: dir, opts: opts, synth: synth, index: make(map[string]*Artifact)}

	var stored map[string]*Artifact
	err := persist.ReadJSON(filepath.Join(dir, indexFile), &stored)
	if err != nil && err != persist.ErrNotExist {
		// A corrupt index is rebuilt empty; artifacts resynthesize on demand.
		stored = nil
	}
	for id, a := range stored {
		if _, statErr := os.Stat(a.FilePath); statErr != nil {
			continue
		}
		c.index[id] = a
	}
	return c, nil
}

// Fingerprint deterministically identifies the artifact for
// (text, language, voiceType). Stable across processes.
func Fingerprint(text, language, voiceType string) string {
	h := sha256.New()
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(voiceType))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// Get returns the cached artifact for the triple, touching lastAccessed.
func (c *Cache) Get(text, language, voiceType string) (Artifact, bool) {
	id := Fingerprint(text, language, voiceType)
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.index[id]
	if !ok {
		c.misses++
		return Artifact{}, false
	}
	a.LastAccessed = time.Now().UTC()
	c.dirty = true
	c.hits++
	return *a, true
}

// GetOrSynthesize returns the artifact for the triple, synthesizing and
// storing it on miss. Concurrent callers for the same fingerprint coalesce
// onto one synthesis; all receive the same artifact.
func (c *Cache) GetOrSynthesize(ctx context.Context, text, language, voiceType string) (Artifact, error) {
	if a, ok := c.Get(text, language, voiceType); ok {
		return a, nil
	}

	id := Fingerprint(text, language, voiceType)
	v, err, _ := c.group.Do(id, func() (any, error) {
		// Double-check: a racing caller may have stored it already.
		c.mu.Lock()
		if a, ok := c.index[id]; ok {
			a.LastAccessed = time.Now().UTC()
			c.dirty = true
			out := *a
			c.mu.Unlock()
			return out, nil
		}
		c.mu.Unlock()

		res, err := c.synth.Synthesize(ctx, text, language, voiceType)
		if err != nil {
			return Artifact{}, err
		}
		return c.store(id, res)
	})
	if err != nil {
		return Artifact{}, err
	}
	return v.(Artifact), nil
}

func (c *Cache) store(id string, res tts.Result) (Artifact, error) {
	path := filepath.Join(c.dir, id+"."+res.Format)
	if err := os.WriteFile(path, res.Audio, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write artifact: %w", err)
	}

	now := time.Now().UTC()
	a := &Artifact{
		ID:           id,
		Format:       res.Format,
		Size:         int64(len(res.Audio)),
		FilePath:     path,
		CreatedAt:    now,
		LastAccessed: now,
	}

	c.mu.Lock()
	c.index[id] = a
	out := *a
	c.mu.Unlock()

	c.saveIndex()
	return out, nil
}

// Open resolves a public filename to its on-disk artifact for HTTP
// serving. Path separators are rejected outright.
func (c *Cache) Open(filename string) (Artifact, error) {
	if strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		return Artifact{}, fmt.Errorf("invalid artifact name %q", filename)
	}
	id := strings.TrimSuffix(filename, filepath.Ext(filename))

	c.mu.Lock()
	a, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return Artifact{}, persist.ErrNotExist
	}
	a.LastAccessed = time.Now().UTC()
	c.dirty = true
	out := *a
	c.mu.Unlock()

	if _, err := os.Stat(out.FilePath); err != nil {
		// Stale index entry: file vanished underneath us.
		c.mu.Lock()
		delete(c.index, id)
		c.mu.Unlock()
		return Artifact{}, persist.ErrNotExist
	}
	return out, nil
}

// Stats reports current cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, a := range c.index {
		total += a.Size
	}
	return Stats{Artifacts: len(c.index), TotalBytes: total, Hits: c.hits, Misses: c.misses}
}

// StartJanitor evicts stale and excess artifacts every interval.
func (c *Cache) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Sweep()
			}
		}
	}()
}

// Sweep removes artifacts idle past MaxAge, then evicts least-recently
// accessed artifacts until total size fits MaxSizeBytes. Pending
// lastAccessed touches are flushed to the index file either way.
func (c *Cache) Sweep() {
	now := time.Now().UTC()

	c.mu.Lock()
	var victims []*Artifact
	var total int64
	var live []*Artifact
	for _, a := range c.index {
		if now.Sub(a.LastAccessed) > c.opts.MaxAge {
			victims = append(victims, a)
			continue
		}
		live = append(live, a)
		total = total + a.Size
	}
	if total > c.opts.MaxSizeBytes {
		sort.Slice(live, func(i, j int) bool {
			return live[i].LastAccessed.Before(live[j].LastAccessed)
		})
		for _, a := range live {
			if total <= c.opts.MaxSizeBytes {
				break
			}
			victims = append(victims, a)
			total -= a.Size
		}
	}
	for _, a := range victims {
		delete(c.index, a.ID)
	}
	flush := c.dirty || len(victims) > 0
	c.mu.Unlock()

	for _, a := range victims {
		_ = os.Remove(a.FilePath)
	}
	if flush {
		c.saveIndex()
	}
}

func (c *Cache) saveIndex() {
	c.mu.Lock()
	snapshot := make(map[string]Artifact, len(c.index))
	for id, a := range c.index {
		snapshot[id] = *a
	}
	c.dirty = false
	c.mu.Unlock()
	_ = persist.WriteJSON(filepath.Join(c.dir, indexFile), snapshot)
}
