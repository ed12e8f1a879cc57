package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/qms-manual-api/internal/models"
	appErrors "github.com/noah-isme/qms-manual-api/pkg/errors"
)

// diffedMetadataFields is the fixed set of manual fields the metadata diff
// inspects, in presentation order.
var diffedMetadataFields = []string{
	"title",
	"description",
	"organization",
	"document_code",
	"status",
	"effective_date",
	"review_due_date",
}

type revisionReader interface {
	GetByID(ctx context.Context, id string) (*models.Revision, error)
}

// DiffService computes structural diffs between revision snapshots. The
// comparison itself is pure; the service wraps it with revision loading and
// an optional cache (revision pairs are immutable, so entries never go
// stale).
type DiffService struct {
	revisions revisionReader
	cache     diffCache
	cacheTTL  time.Duration
	metrics   cacheMetrics
	logger    *zap.Logger
}

type diffCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool)
}

// NewDiffService constructs the service. A nil cache disables caching.
func NewDiffService(revisions revisionReader, cache diffCache, cacheTTL time.Duration, logger *zap.Logger) *DiffService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	return &DiffService{
		revisions: revisions,
		cache:     cache,
		cacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// SetMetrics binds an optional cache metrics recorder.
func (s *DiffService) SetMetrics(m cacheMetrics) {
	s.metrics = m
}

// DiffRevisions loads two revisions of the same manual and compares their
// snapshots, oldest argument first. The returned bool reports whether the
// result came from the cache.
func (s *DiffService) DiffRevisions(ctx context.Context, manualID, fromID, toID string) (*models.ManualDiff, bool, error) {
	if fromID == "" || toID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "from and to revision ids are required")
	}
	if cached := s.fromCache(ctx, fromID, toID); cached != nil {
		s.recordCache(true)
		return cached, true, nil
	}
	s.recordCache(false)

	from, err := s.loadRevision(ctx, manualID, fromID)
	if err != nil {
		return nil, false, err
	}
	to, err := s.loadRevision(ctx, manualID, toID)
	if err != nil {
		return nil, false, err
	}

	diff := CompareSnapshots(from.Snapshot, to.Snapshot)
	diff.FromRevision = from.ID
	diff.ToRevision = to.ID

	s.toCache(ctx, fromID, toID, &diff)
	return &diff, false, nil
}

func (s *DiffService) recordCache(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(hit)
	}
}

func (s *DiffService) loadRevision(ctx context.Context, manualID, id string) (*models.Revision, error) {
	revision, err := s.revisions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "revision not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load revision")
	}
	if manualID != "" && revision.ManualID != manualID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "revision does not belong to this manual")
	}
	return revision, nil
}

func (s *DiffService) fromCache(ctx context.Context, fromID, toID string) *models.ManualDiff {
	if s.cache == nil {
		return nil
	}
	var diff models.ManualDiff
	if err := s.cache.Get(ctx, diffCacheKey(fromID, toID), &diff); err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Sugar().Debugw("diff cache read failed", "error", err)
		}
		return nil
	}
	return &diff
}

func (s *DiffService) toCache(ctx context.Context, fromID, toID string, diff *models.ManualDiff) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, diffCacheKey(fromID, toID), diff, s.cacheTTL); err != nil {
		s.logger.Sugar().Debugw("diff cache write failed", "error", err)
	}
}

func diffCacheKey(fromID, toID string) string {
	return fmt.Sprintf("diff:%s:%s", fromID, toID)
}

// CompareSnapshots computes the diff between two snapshots. It is a pure
// function: same inputs always yield the same result, and swapping the
// arguments yields the label-inverse result.
func CompareSnapshots(from, to models.ManualSnapshot) models.ManualDiff {
	return models.ManualDiff{
		Metadata: compareMetadata(from.Manual, to.Manual),
		Chapters: compareChapters(from.Sections, to.Sections),
	}
}

func compareMetadata(from, to models.ManualCore) []models.FieldChange {
	oldValues := metadataValues(from)
	newValues := metadataValues(to)

	changes := make([]models.FieldChange, 0, len(diffedMetadataFields))
	for _, field := range diffedMetadataFields {
		oldVal := oldValues[field]
		newVal := newValues[field]
		change := models.FieldChange{Field: field, Old: oldVal, New: newVal}
		switch {
		case oldVal == newVal:
			change.Kind = models.ChangeUnchanged
		case oldVal == "":
			change.Kind = models.ChangeAdded
		case newVal == "":
			change.Kind = models.ChangeRemoved
		default:
			change.Kind = models.ChangeModified
		}
		changes = append(changes, change)
	}
	return changes
}

// metadataValues normalizes the diffed fields to comparable strings. Dates
// are reduced to their UTC instant so differing textual representations of
// the same moment compare equal.
func metadataValues(core models.ManualCore) map[string]string {
	return map[string]string{
		"title":           core.Title,
		"description":     core.Description,
		"organization":    core.Organization,
		"document_code":   core.DocumentCode,
		"status":          string(core.Status),
		"effective_date":  formatInstant(core.EffectiveDate),
		"review_due_date": formatInstant(core.ReviewDueDate),
	}
}

func formatInstant(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// compareChapters matches structural nodes by locator key, not by identity
// or position: reordering without renumbering compares as unchanged, and
// renumbering shows up as an add plus a remove.
func compareChapters(from, to []models.SectionSnapshot) []models.ChapterChange {
	oldNodes := indexByLocator(from)
	newNodes := indexByLocator(to)

	keys := make([]string, 0, len(oldNodes)+len(newNodes))
	seen := make(map[string]struct{}, len(oldNodes)+len(newNodes))
	for key := range oldNodes {
		keys = append(keys, key)
		seen[key] = struct{}{}
	}
	for key := range newNodes {
		if _, ok := seen[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	changes := make([]models.ChapterChange, 0, len(keys))
	for _, key := range keys {
		oldNode, inOld := oldNodes[key]
		newNode, inNew := newNodes[key]
		change := models.ChapterChange{LocatorKey: key}
		switch {
		case !inOld:
			change.Kind = models.ChangeAdded
			change.NewHeading = newNode.Heading
		case !inNew:
			change.Kind = models.ChangeRemoved
			change.OldHeading = oldNode.Heading
		case sectionFingerprint(oldNode) != sectionFingerprint(newNode):
			change.Kind = models.ChangeModified
			change.OldHeading = oldNode.Heading
			change.NewHeading = newNode.Heading
		default:
			change.Kind = models.ChangeUnchanged
			change.OldHeading = oldNode.Heading
			change.NewHeading = newNode.Heading
		}
		changes = append(changes, change)
	}
	return changes
}

func indexByLocator(sections []models.SectionSnapshot) map[string]models.SectionSnapshot {
	index := make(map[string]models.SectionSnapshot, len(sections))
	for _, section := range sections {
		index[section.LocatorKey()] = section
	}
	return index
}

// sectionFingerprint hashes the comparable content of a node: heading,
// page-break flag, and the serialized block list. Block bodies are opaque;
// they participate by value only.
func sectionFingerprint(section models.SectionSnapshot) string {
	hasher := sha256.New()
	hasher.Write([]byte(section.Heading))
	if section.PageBreak {
		hasher.Write([]byte{1})
	} else {
		hasher.Write([]byte{0})
	}
	blocks, _ := json.Marshal(section.Blocks)
	hasher.Write(blocks)
	return hex.EncodeToString(hasher.Sum(nil))
}
