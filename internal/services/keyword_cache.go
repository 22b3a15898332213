package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temcen/rfpmatch/internal/apperr"
	"github.com/temcen/rfpmatch/internal/ml"
	"github.com/temcen/rfpmatch/pkg/models"
)

const (
	categoryKeywordsTable = "category_keywords"
	keywordTasksTable     = "keyword_tasks"
)

type keywordEntry struct {
	target   string // category name or task id
	keyword  string
	tokens   []string
	priority int // loaded but not used for matching yet
}

// KeywordStats describes the loaded mapping tables.
type KeywordStats struct {
	Loaded           bool      `json:"loaded"`
	Categories       int       `json:"categories"`
	CategoryKeywords int       `json:"category_keywords"`
	TaskKeywords     int       `json:"task_keywords"`
	LoadedAt         time.Time `json:"loaded_at,omitempty"`
}

// KeywordCache holds both keyword mapping tables in memory. They are loaded
// once, on first use; concurrent first callers wait for the single load in
// flight. A failed load is not remembered and the next call tries again.
// There is no refresh: restart the process to pick up table changes.
type KeywordCache struct {
	db      DatabaseQuerier
	timeout time.Duration
	logger  *logrus.Logger

	mu       sync.Mutex
	loaded   atomic.Bool
	loadedAt time.Time

	categoryKeywords []keywordEntry
	taskKeywords     []keywordEntry
	categories       []string
}

func NewKeywordCache(db DatabaseQuerier, timeout time.Duration, logger *logrus.Logger) *KeywordCache {
	return &KeywordCache{
		db:      db,
		timeout: timeout,
		logger:  logger,
	}
}

// CategoriesFor returns the lowercased categories whose keywords occur in text.
func (kc *KeywordCache) CategoriesFor(ctx context.Context, text string) (map[string]struct{}, error) {
	if err := kc.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return match(kc.categoryKeywords, ml.Tokenize(text)), nil
}

// TasksFor returns the task ids whose keywords occur in text.
func (kc *KeywordCache) TasksFor(ctx context.Context, text string) (map[string]struct{}, error) {
	if err := kc.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return match(kc.taskKeywords, ml.Tokenize(text)), nil
}

// Categories returns every known category, sorted.
func (kc *KeywordCache) Categories(ctx context.Context) ([]string, error) {
	if err := kc.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	out := make([]string, len(kc.categories))
	copy(out, kc.categories)
	return out, nil
}

func (kc *KeywordCache) Stats() KeywordStats {
	if !kc.loaded.Load() {
		return KeywordStats{}
	}
	return KeywordStats{
		Loaded:           true,
		Categories:       len(kc.categories),
		CategoryKeywords: len(kc.categoryKeywords),
		TaskKeywords:     len(kc.taskKeywords),
		LoadedAt:         kc.loadedAt,
	}
}

func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func match(entries []keywordEntry, tokens []string) map[string]struct{} {
	found := make(map[string]struct{})
	if len(tokens) == 0 {
		return found
	}
	for _, e := range entries {
		if _, ok := found[e.target]; ok {
			continue
		}
		if ml.ContainsPhrase(tokens, e.tokens) {
			found[e.target] = struct{}{}
		}
	}
	return found
}

func (kc *KeywordCache) ensureLoaded(ctx context.Context) error {
	if kc.loaded.Load() {
		return nil
	}

	kc.mu.Lock()
	defer kc.mu.Unlock()

	if kc.loaded.Load() {
		return nil
	}

	if kc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, kc.timeout)
		defer cancel()
	}

	start := time.Now()

	categoryRows, err := kc.loadCategoryKeywords(ctx)
	if err != nil {
		return err
	}
	if len(categoryRows) == 0 {
		return emptyTableError(categoryKeywordsTable)
	}

	taskRows, err := kc.loadKeywordTasks(ctx)
	if err != nil {
		return err
	}
	if len(taskRows) == 0 {
		return emptyTableError(keywordTasksTable)
	}

	categorySet := make(map[string]struct{})
	kc.categoryKeywords = kc.categoryKeywords[:0]
	for _, row := range categoryRows {
		category := normalizeCategory(row.Category)
		entry, ok := newKeywordEntry(category, row.Keyword, row.Priority)
		if !ok || category == "" {
			continue
		}
		kc.categoryKeywords = append(kc.categoryKeywords, entry)
		categorySet[category] = struct{}{}
	}

	kc.taskKeywords = kc.taskKeywords[:0]
	for _, row := range taskRows {
		entry, ok := newKeywordEntry(strings.TrimSpace(row.TaskID), row.Keyword, row.Priority)
		if !ok || entry.target == "" {
			continue
		}
		kc.taskKeywords = append(kc.taskKeywords, entry)
	}

	kc.categories = make([]string, 0, len(categorySet))
	for c := range categorySet {
		kc.categories = append(kc.categories, c)
	}
	sort.Strings(kc.categories)

	kc.loadedAt = time.Now()
	kc.loaded.Store(true)

	kc.logger.WithFields(logrus.Fields{
		"categories":        len(kc.categories),
		"category_keywords": len(kc.categoryKeywords),
		"task_keywords":     len(kc.taskKeywords),
		"duration":          time.Since(start),
	}).Info("Keyword mappings loaded")

	return nil
}

func newKeywordEntry(target, keyword string, priority int) (keywordEntry, bool) {
	tokens := ml.Tokenize(keyword)
	if len(tokens) == 0 {
		return keywordEntry{}, false
	}
	return keywordEntry{
		target:   target,
		keyword:  keyword,
		tokens:   tokens,
		priority: priority,
	}, true
}

func emptyTableError(table string) error {
	return apperr.DataIntegrity("keyword_cache",
		"mapping table %s is empty: populate it before requesting recommendations", table)
}

func (kc *KeywordCache) loadCategoryKeywords(ctx context.Context) ([]models.CategoryKeyword, error) {
	query := fmt.Sprintf(`SELECT category, keyword, COALESCE(priority, 0) FROM %s`, categoryKeywordsTable)

	rows, err := kc.db.Query(ctx, query)
	if err != nil {
		return nil, apperr.DependencyUnavailable("keyword_cache", apperr.DependencyPostgres, err)
	}
	defer rows.Close()

	var out []models.CategoryKeyword
	for rows.Next() {
		var row models.CategoryKeyword
		if err := rows.Scan(&row.Category, &row.Keyword, &row.Priority); err != nil {
			return nil, apperr.DependencyUnavailable("keyword_cache", apperr.DependencyPostgres, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.DependencyUnavailable("keyword_cache", apperr.DependencyPostgres, err)
	}
	return out, nil
}

func (kc *KeywordCache) loadKeywordTasks(ctx context.Context) ([]models.KeywordTask, error) {
	query := fmt.Sprintf(`SELECT keyword, task_id, COALESCE(priority, 0) FROM %s`, keywordTasksTable)

	rows, err := kc.db.Query(ctx, query)
	if err != nil {
		return nil, apperr.DependencyUnavailable("keyword_cache", apperr.DependencyPostgres, err)
	}
	defer rows.Close()

	var out []models.KeywordTask
	for rows.Next() {
		var row models.KeywordTask
		if err := rows.Scan(&row.Keyword, &row.TaskID, &row.Priority); err != nil {
			return nil, apperr.DependencyUnavailable("keyword_cache", apperr.DependencyPostgres, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.DependencyUnavailable("keyword_cache", apperr.DependencyPostgres, err)
	}
	return out, nil
}
