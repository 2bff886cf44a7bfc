package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/seenimoa/stockpilot/pkg/models"
)

const (
	fileMarker     = "_analysis_"
	fileTimeLayout = "20060102_150405"
)

// JSONStore writes one indented JSON file per run:
// <dir>/<SYMBOL>_analysis_<YYYYmmdd_HHMMSS>.json, with _<id> appended when
// another run of the symbol already holds that second.
type JSONStore struct {
	dir string
	mu  sync.Mutex
}

// NewJSONStore creates dir if needed.
func NewJSONStore(dir string) (*JSONStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", dir, err)
	}
	return &JSONStore{dir: dir}, nil
}

// Dir returns the output directory.
func (s *JSONStore) Dir() string { return s.dir }

// FileName returns the file name a run is stored under.
func FileName(run *models.AnalysisRun) string {
	return strings.ToUpper(run.Symbol) + fileMarker + runTime(run).Format(fileTimeLayout) + ".json"
}

// uniqueName returns FileName(run) unless a different run already holds it
// (two runs of a symbol started in the same second), in which case the run ID
// is appended to the stamp. Callers hold s.mu.
func (s *JSONStore) uniqueName(run *models.AnalysisRun) string {
	name := FileName(run)
	existing, err := s.read(name)
	if err != nil || (run.ID != "" && existing.ID == run.ID) {
		return name
	}
	suffix := idSuffix(run.ID)
	if suffix == "" {
		suffix = uuid.NewString()[:8]
	}
	return strings.TrimSuffix(name, ".json") + "_" + suffix + ".json"
}

// idSuffix keeps the first eight filename-safe characters of id.
func idSuffix(id string) string {
	var sb strings.Builder
	for _, r := range id {
		if sb.Len() == 8 {
			break
		}
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func (s *JSONStore) Save(_ context.Context, run *models.AnalysisRun) error {
	if err := validate(run); err != nil {
		return err
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", run.Symbol, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, s.uniqueName(run))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: rename %s: %w", path, err)
	}
	log.Debug().Str("symbol", run.Symbol).Str("path", path).Msg("run saved")
	return nil
}

func (s *JSONStore) Latest(ctx context.Context, symbol string) (*models.AnalysisRun, error) {
	if symbol == "" {
		return nil, ErrNotFound
	}
	runs, err := s.List(ctx, symbol, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[0], nil
}

func (s *JSONStore) List(ctx context.Context, symbol string, limit int) ([]*models.AnalysisRun, error) {
	names, err := s.files(symbol)
	if err != nil {
		return nil, err
	}
	var out []*models.AnalysisRun
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		run, err := s.read(name)
		if err != nil {
			log.Warn().Str("file", name).Err(err).Msg("skipping unreadable run file")
			continue
		}
		out = append(out, run)
	}
	return out, nil
}

func (s *JSONStore) Close() error { return nil }

// files returns run file names, newest first.
func (s *JSONStore) files(symbol string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: list %s: %w", s.dir, err)
	}
	want := strings.ToUpper(symbol)

	type file struct{ name, stamp string }
	var files []file
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		i := strings.LastIndex(name, fileMarker)
		if i <= 0 {
			continue
		}
		if want != "" && name[:i] != want {
			continue
		}
		files = append(files, file{name: name, stamp: strings.TrimSuffix(name[i+len(fileMarker):], ".json")})
	}
	sort.SliceStable(files, func(i, j int) bool {
		if files[i].stamp != files[j].stamp {
			return files[i].stamp > files[j].stamp
		}
		return files[i].name < files[j].name
	})

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}
	return names, nil
}

func (s *JSONStore) read(name string) (*models.AnalysisRun, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	var run models.AnalysisRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return &run, nil
}
