package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sokbo-hq/sokbo-news-relay/internal/domain"
)

// In-memory stores for tests and ephemeral runs. A single mutex per store
// makes every operation atomic, which satisfies the same claim invariant
// the bbolt backend gets from serialized update transactions.

// OpenMemory builds an in-memory Stores bundle.
func OpenMemory(opts Options) *Stores {
	opts = normalizeOptions(opts)
	return &Stores{
		Articles:  NewMemoryArticleStore(),
		Queue:     NewMemoryQueueStore(),
		Published: NewMemoryPublishedSet(opts.PublishedTTL),
		closer:    func() error { return nil },
	}
}

type memoryArticleStore struct {
	mu      sync.Mutex
	byUID   map[string]domain.Article
	byURL   map[string]string
	ordered []string // uids in insertion order
}

// NewMemoryArticleStore returns an empty in-memory ArticleStore.
func NewMemoryArticleStore() ArticleStore {
	return &memoryArticleStore{
		byUID: make(map[string]domain.Article),
		byURL: make(map[string]string),
	}
}

func (s *memoryArticleStore) Insert(ctx context.Context, a domain.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateArticle(a, time.Now()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUID[a.UniqueID]; ok {
		return fmt.Errorf("%w: unique_id %s", domain.ErrDuplicate, a.UniqueID)
	}
	if _, ok := s.byURL[a.URL]; ok {
		return fmt.Errorf("%w: url %s", domain.ErrDuplicate, a.URL)
	}
	s.byUID[a.UniqueID] = a
	s.byURL[a.URL] = a.UniqueID
	s.ordered = append(s.ordered, a.UniqueID)
	return nil
}

func (s *memoryArticleStore) FindByUniqueID(ctx context.Context, uid string) (*domain.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.byUID[uid]; ok {
		cp := a
		return &cp, nil
	}
	return nil, nil
}

func (s *memoryArticleStore) FindByURL(ctx context.Context, url string) (*domain.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	uid, ok := s.byURL[url]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return s.FindByUniqueID(ctx, uid)
}

func (s *memoryArticleStore) Find(ctx context.Context, q ArticleQuery) ([]domain.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	all := make([]domain.Article, 0, len(s.ordered))
	for _, uid := range s.ordered {
		all = append(all, s.byUID[uid])
	}
	s.mu.Unlock()

	// collected_at descending, later insertion first on ties.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CollectedAt.After(all[j].CollectedAt)
	})

	var out []domain.Article
	for _, a := range all {
		if !q.Since.IsZero() && a.CollectedAt.Before(q.Since) {
			continue
		}
		if q.Platform != "" && a.Platform != q.Platform {
			continue
		}
		if q.Category != "" && a.Category != q.Category {
			continue
		}
		out = append(out, a)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

type memoryQueueStore struct {
	mu    sync.Mutex
	items map[string]*domain.QueueItem
	seq   uint64
}

// NewMemoryQueueStore returns an empty in-memory QueueStore.
func NewMemoryQueueStore() QueueStore {
	return &memoryQueueStore{items: make(map[string]*domain.QueueItem)}
}

func (s *memoryQueueStore) Insert(ctx context.Context, item domain.QueueItem) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[item.UniqueID]; ok {
		return false, nil
	}
	s.seq++
	item.Seq = s.seq
	item.Status = domain.StatusPending
	cp := item
	s.items[item.UniqueID] = &cp
	return true, nil
}

func (s *memoryQueueStore) Get(ctx context.Context, uid string) (*domain.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[uid]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (s *memoryQueueStore) ClaimNext(ctx context.Context, now time.Time) (*domain.QueueItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *domain.QueueItem
	for _, item := range s.items {
		if item.Status != domain.StatusPending {
			continue
		}
		if oldest == nil || claimBefore(item, oldest) {
			oldest = item
		}
	}
	if oldest == nil {
		return nil, nil
	}

	claimedAt := now
	oldest.Status = domain.StatusProcessing
	oldest.ClaimedAt = &claimedAt
	oldest.UpdatedAt = now
	cp := *oldest
	return &cp, nil
}

// claimBefore orders pending items FIFO: created_at first, insertion seq
// as the tie-breaker.
func claimBefore(a, b *domain.QueueItem) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.Seq < b.Seq
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (s *memoryQueueStore) Complete(ctx context.Context, uid string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[uid]
	if !ok || item.Status != domain.StatusProcessing {
		return false, nil
	}
	publishedAt := now
	item.Status = domain.StatusCompleted
	item.PublishedAt = &publishedAt
	item.UpdatedAt = now
	item.ErrorMessage = ""
	return true, nil
}

func (s *memoryQueueStore) Fail(ctx context.Context, uid, errMsg string, minRetryCount int, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[uid]
	if !ok || item.Status != domain.StatusProcessing {
		return false, nil
	}
	item.Status = domain.StatusFailed
	item.ErrorMessage = errMsg
	item.RetryCount++
	if item.RetryCount < minRetryCount {
		item.RetryCount = minRetryCount
	}
	item.UpdatedAt = now
	return true, nil
}

func (s *memoryQueueStore) RetryFailed(ctx context.Context, maxRetries int, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	moved := 0
	for _, item := range s.items {
		if item.Status != domain.StatusFailed || item.RetryCount >= maxRetries {
			continue
		}
		item.Status = domain.StatusPending
		item.ErrorMessage = ""
		item.ClaimedAt = nil
		item.UpdatedAt = now
		moved++
	}
	return moved, nil
}

func (s *memoryQueueStore) SweepStuck(ctx context.Context, cutoff, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	moved := 0
	for _, item := range s.items {
		if item.Status != domain.StatusProcessing ||
			item.ClaimedAt == nil || !item.ClaimedAt.Before(cutoff) {
			continue
		}
		item.Status = domain.StatusPending
		item.ErrorMessage = ""
		item.ClaimedAt = nil
		item.RetryCount++
		item.UpdatedAt = now
		moved++
	}
	return moved, nil
}

func (s *memoryQueueStore) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for uid, item := range s.items {
		if item.Status == domain.StatusCompleted && item.UpdatedAt.Before(cutoff) {
			delete(s.items, uid)
			deleted++
		}
	}
	return deleted, nil
}

func (s *memoryQueueStore) Exists(ctx context.Context, uid string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.items[uid]
	return ok, nil
}

func (s *memoryQueueStore) CountsByStatus(ctx context.Context) (map[domain.QueueStatus]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.QueueStatus]int, 4)
	for _, item := range s.items {
		counts[item.Status]++
	}
	return counts, nil
}

type memoryPublishedSet struct {
	mu  sync.Mutex
	ttl time.Duration
	ids map[string]time.Time // uid -> expiry
}

// NewMemoryPublishedSet returns an empty in-memory PublishedSet.
func NewMemoryPublishedSet(ttl time.Duration) PublishedSet {
	if ttl <= 0 {
		ttl = defaultPublishedTTL
	}
	return &memoryPublishedSet{ttl: ttl, ids: make(map[string]time.Time)}
}

func (s *memoryPublishedSet) Contains(ctx context.Context, uid string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.ids[uid]
	if !ok {
		return false, nil
	}
	if !expiry.After(time.Now()) {
		delete(s.ids, uid)
		return false, nil
	}
	return true, nil
}

func (s *memoryPublishedSet) Add(ctx context.Context, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids[uid] = time.Now().Add(s.ttl)
	return nil
}
