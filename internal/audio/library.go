package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/displayboard/internal/log"
)

// Sound categories. Each is a subdirectory of the sounds directory.
const (
	CategoryAmbient = "ambient"
	CategoryRats    = "rats"
	CategoryChains  = "chains"
	CategoryScreams = "screams"
	CategoryBell    = "bell"
)

// Extensions lists the file extensions picked up by a scan.
var Extensions = []string{".wav", ".ogg", ".mp3"}

// Library maps category names to sorted sound file paths.
type Library struct {
	Root  string
	files map[string][]string
}

// NewLibrary builds a Library from an explicit mapping.
func NewLibrary(root string, files map[string][]string) *Library {
	lib := &Library{Root: root, files: make(map[string][]string, len(files))}
	for cat, paths := range files {
		sorted := append([]string(nil), paths...)
		sort.Strings(sorted)
		lib.files[cat] = sorted
	}
	return lib
}

// Files returns the sounds in category. The slice must not be modified.
func (l *Library) Files(category string) []string {
	if l == nil {
		return nil
	}
	return l.files[category]
}

// Categories returns the scanned category names, sorted.
func (l *Library) Categories() []string {
	if l == nil {
		return nil
	}
	cats := make([]string, 0, len(l.files))
	for c := range l.files {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// Total returns the number of sounds across all categories.
func (l *Library) Total() int {
	n := 0
	for _, c := range l.Categories() {
		n += len(l.files[c])
	}
	return n
}

// ScanLibrary lists the sound files of every category under root
// concurrently. A missing category directory yields an empty category; any
// other filesystem error fails the scan.
func ScanLibrary(ctx context.Context, root string, categories []string) (*Library, error) {
	g, ctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	files := make(map[string][]string, len(categories))

	for _, cat := range categories {
		g.Go(func() error {
			found, err := scanCategory(ctx, filepath.Join(root, cat))
			if err != nil {
				return fmt.Errorf("scan %s: %w", cat, err)
			}
			if len(found) == 0 {
				log.Warn(log.CatAudio, "No sounds found", "category", cat, "dir", filepath.Join(root, cat))
			}
			mu.Lock()
			files[cat] = found
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewLibrary(root, files), nil
}

func scanCategory(ctx context.Context, dir string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if IsSoundFile(path) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// IsSoundFile reports whether path has a recognised sound extension.
func IsSoundFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Store holds the current Library and swaps it atomically on rescan.
type Store struct {
	root       string
	categories []string
	current    atomic.Pointer[Library]
	onSwap     []func(*Library)
	mu         sync.Mutex
}

// NewStore creates a store for root and categories. Call Rescan to populate it.
func NewStore(root string, categories []string) *Store {
	s := &Store{root: root, categories: categories}
	s.current.Store(NewLibrary(root, nil))
	return s
}

// Library returns the current library. Never nil.
func (s *Store) Library() *Library {
	return s.current.Load()
}

// Root returns the scanned directory.
func (s *Store) Root() string {
	return s.root
}

// OnSwap registers fn to run after every successful rescan.
func (s *Store) OnSwap(fn func(*Library)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSwap = append(s.onSwap, fn)
}

// Rescan rescans the sounds directory. On failure the previous library stays.
func (s *Store) Rescan(ctx context.Context) error {
	if _, err := os.Stat(s.root); err != nil {
		return fmt.Errorf("sounds dir: %w", err)
	}
	lib, err := ScanLibrary(ctx, s.root, s.categories)
	if err != nil {
		return err
	}
	s.current.Store(lib)

	s.mu.Lock()
	hooks := append([]func(*Library){}, s.onSwap...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(lib)
	}
	log.Info(log.CatAudio, "Sound library loaded", "root", s.root, "sounds", lib.Total())
	return nil
}
