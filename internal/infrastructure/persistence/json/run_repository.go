package json

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
	"time"

	"github.com/siteqa/siteqa/internal/domain/run"
	"github.com/siteqa/siteqa/internal/shared/constants"
	sharedErrors "github.com/siteqa/siteqa/internal/shared/errors"
	"github.com/siteqa/siteqa/internal/shared/security"
)

const runFileExt = ".json"

// testRunDTO is the data transfer object for JSON serialization
type testRunDTO struct {
	ID           string      `json:"id"`
	URL          string      `json:"url"`
	Status       string      `json:"status"`
	StartedAt    string      `json:"started_at"`
	FinishedAt   string      `json:"finished_at,omitempty"`
	OverallScore *int        `json:"overall_score"`
	Summary      string      `json:"summary,omitempty"`
	Error        string      `json:"error,omitempty"`
	Results      []resultDTO `json:"results"`
}

// resultDTO stores one check result tagged with its kind so it can be
// decoded back into the right variant.
type resultDTO struct {
	Check string          `json:"check"`
	Data  json.RawMessage `json:"data"`
}

// RunRepository implements the run.Repository interface using one JSON
// file per run.
type RunRepository struct {
	dir string
	mu  sync.RWMutex
}

// NewRunRepository creates a new JSON-based run repository
func NewRunRepository(dataDir string) (*RunRepository, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	dir := filepath.Join(dataDir, "runs")
	if err := os.MkdirAll(dir, constants.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}

	return &RunRepository{dir: dir}, nil
}

// Save persists a test run with all its results. The file is replaced
// atomically so readers never observe a partial document.
func (r *RunRepository) Save(ctx context.Context, testRun *run.TestRun) error {
	if testRun == nil {
		return sharedErrors.ErrInvalidInput
	}
	dto, err := toDTO(testRun)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(dto, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrSerializationFailed, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	path, err := r.pathFor(testRun.ID())
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, constants.DefaultFilePerm); err != nil {
		return fmt.Errorf("failed to save test run: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save test run: %w", err)
	}
	return nil
}

// FindByID retrieves a test run by its ID
func (r *RunRepository) FindByID(ctx context.Context, id string) (*run.TestRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	path, err := r.pathFor(id)
	if err != nil {
		return nil, err
	}
	tr, err := loadFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, sharedErrors.ErrRunNotFound
	}
	return tr, err
}

// FindAll retrieves all test runs, newest first. Unreadable files are skipped.
func (r *RunRepository) FindAll(ctx context.Context) ([]*run.TestRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var runs []*run.TestRun
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), runFileExt) {
			continue
		}
		tr, err := loadFromFile(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			continue
		}
		runs = append(runs, tr)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt().After(runs[j].StartedAt())
	})
	return runs, nil
}

// Delete removes a test run by its ID
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, err := r.pathFor(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sharedErrors.ErrRunNotFound
		}
		return fmt.Errorf("failed to delete test run: %w", err)
	}
	return nil
}

// Helper methods

func (r *RunRepository) pathFor(id string) (string, error) {
	if id == "" {
		return "", sharedErrors.ErrEmptyRunID
	}
	path, err := security.FileFor(r.dir, id, runFileExt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", sharedErrors.ErrInvalidInput, err)
	}
	return path, nil
}

func loadFromFile(path string) (*run.TestRun, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var dto testRunDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrDeserializationFailed, err)
	}
	return fromDTO(dto)
}

func toDTO(tr *run.TestRun) (testRunDTO, error) {
	dto := testRunDTO{
		ID:           tr.ID(),
		URL:          tr.URL(),
		Status:       string(tr.Status()),
		StartedAt:    tr.StartedAt().Format(time.RFC3339Nano),
		OverallScore: tr.OverallScore(),
		Summary:      tr.Summary(),
		Error:        tr.Error(),
		Results:      make([]resultDTO, 0),
	}
	if !tr.FinishedAt().IsZero() {
		dto.FinishedAt = tr.FinishedAt().Format(time.RFC3339Nano)
	}

	for _, res := range tr.Results() {
		data, err := json.Marshal(res)
		if err != nil {
			return testRunDTO{}, fmt.Errorf("%w: %s: %v", sharedErrors.ErrSerializationFailed, res.Kind(), err)
		}
		dto.Results = append(dto.Results, resultDTO{Check: string(res.Kind()), Data: data})
	}
	return dto, nil
}

func fromDTO(dto testRunDTO) (*run.TestRun, error) {
	startedAt, err := time.Parse(time.RFC3339Nano, dto.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started at time: %w", err)
	}

	var finishedAt time.Time
	if dto.FinishedAt != "" {
		finishedAt, err = time.Parse(time.RFC3339Nano, dto.FinishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished at time: %w", err)
		}
	}

	results := make([]run.CheckResult, 0, len(dto.Results))
	for _, r := range dto.Results {
		res, err := decodeResult(run.Kind(r.Check), r.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to convert result: %w", err)
		}
		results = append(results, res)
	}

	return run.Reconstruct(
		dto.ID,
		dto.URL,
		run.RunStatus(dto.Status),
		startedAt,
		finishedAt,
		results,
		dto.OverallScore,
		dto.Summary,
		dto.Error,
	), nil
}

// decodeResult maps a stored kind back onto its result variant.
func decodeResult(kind run.Kind, data json.RawMessage) (run.CheckResult, error) {
	switch kind {
	case run.KindSpeed:
		return decodeAs[run.SpeedResult](data)
	case run.KindSSL:
		return decodeAs[run.TLSResult](data)
	case run.KindBrokenLinks:
		return decodeAs[run.BrokenLinksResult](data)
	case run.KindImages:
		return decodeAs[run.MissingImagesResult](data)
	case run.KindMobile:
		return decodeAs[run.MobileResult](data)
	case run.KindJSErrors:
		return decodeAs[run.JSErrorsResult](data)
	case run.KindWebVitals:
		return decodeAs[run.WebVitalsResult](data)
	case run.KindLogin:
		return decodeAs[run.LoginResult](data)
	case run.KindPostLogin:
		return decodeAs[run.PostLoginResult](data)
	}
	for _, k := range run.StaticProbeKinds {
		if k == kind {
			res, err := decodeAs[run.ProbeResult](data)
			if err != nil {
				return nil, err
			}
			p := res.(run.ProbeResult)
			p.Check = kind
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", sharedErrors.ErrUnknownCheckKind, kind)
}

func decodeAs[T run.CheckResult](data json.RawMessage) (run.CheckResult, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", sharedErrors.ErrDeserializationFailed, err)
	}
	return v, nil
}
