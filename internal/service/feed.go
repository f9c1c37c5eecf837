package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mnemolabs/mnemo/internal/db"
	"github.com/mnemolabs/mnemo/internal/models"
)

// feedDayTable namespaces synthetic day-row identifiers. Day rows are
// projected at read time and never persisted, but their IDs must be stable
// so clients can address a day before any data exists for it.
const feedDayTable = "feed_day"

const feedDateLayout = "2006-01-02"

// DefaultFeedLimit caps moment rows per feed page when the caller does not.
const DefaultFeedLimit = 50

// Feed item kinds.
const (
	FeedKindDay    = "day"
	FeedKindMoment = "moment"
)

// FeedItem is one row of the activity timeline: a virtual per-day
// aggregate or a real moment.
type FeedItem struct {
	Kind  string `json:"kind"`
	ID    string `json:"id"`
	Date  string `json:"date"`
	Title string `json:"title,omitempty"`

	Moment *models.Moment `json:"moment,omitempty"`
	Stats  *db.DayStats   `json:"stats,omitempty"`
}

// FeedParams bounds one feed page.
type FeedParams struct {
	OwnerID string
	// Limit caps moment rows per page; day rows come on top.
	Limit int
	// BeforeDate is the paging watermark (the oldest date of the previous
	// page, "2006-01-02"); only strictly older days are returned.
	BeforeDate string
	// IncludeFuture also returns rows whose span starts after now
	// (reminders). Hidden by default.
	IncludeFuture bool
}

// FeedDayID returns the deterministic identifier of an owner's day row.
// The same (owner, date) always projects to the same ID.
func FeedDayID(ownerID, date string) string {
	return models.DeterministicID(feedDayTable, date, ownerID)
}

// Feed projects the owner's activity timeline, newest first: for each day
// with activity a virtual aggregate row, then that day's moments. Pages
// are keyed by date watermark, so successive pages never overlap.
func (m *Memory) Feed(ctx context.Context, p FeedParams) ([]FeedItem, error) {
	if p.OwnerID == "" {
		return nil, fmt.Errorf("feed: owner id required: %w", db.ErrMalformedInput)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultFeedLimit
	}

	var before *time.Time
	if p.BeforeDate != "" {
		day, err := time.ParseInLocation(feedDateLayout, p.BeforeDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("feed: bad before_date %q: %w", p.BeforeDate, db.ErrMalformedInput)
		}
		before = &day
	}

	// The feed reads across tenant boundaries on behalf of the owner;
	// platform rows resolve their own tenant on decrypt, sealed and
	// client-mode rows stay ciphertext.
	opts := db.ReadOptions{}

	moments, err := m.loadFeedPage(ctx, p.OwnerID, before, limit, opts)
	if err != nil {
		return nil, fmt.Errorf("feed: %w", err)
	}

	now := m.now().UTC()
	if !p.IncludeFuture {
		visible := moments[:0:0]
		for _, mom := range moments {
			if mom.StartsTimestamp != nil && mom.StartsTimestamp.After(now) {
				continue
			}
			visible = append(visible, mom)
		}
		moments = visible
	}

	var items []FeedItem

	// First page always opens with today's row, present even before any
	// activity, so "today" is addressable.
	today := now.Format(feedDateLayout)
	if before == nil && (len(moments) == 0 || moments[0].CreatedAt.UTC().Format(feedDateLayout) != today) {
		item, err := m.dayItem(ctx, p.OwnerID, today)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	currentDate := ""
	for i := range moments {
		mom := &moments[i]
		date := mom.CreatedAt.UTC().Format(feedDateLayout)
		if date != currentDate {
			currentDate = date
			item, err := m.dayItem(ctx, p.OwnerID, date)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		items = append(items, FeedItem{
			Kind:   FeedKindMoment,
			ID:     mom.ID,
			Date:   date,
			Title:  mom.Name,
			Moment: mom,
		})
	}

	return items, nil
}

// loadFeedPage fetches one page of the owner's moments, newest first. A
// full page is extended to the end of its oldest day: the date watermark
// cursor cannot re-enter a day, so closing a page mid-day would drop that
// day's remaining rows forever.
func (m *Memory) loadFeedPage(ctx context.Context, ownerID string, before *time.Time, limit int, opts db.ReadOptions) ([]models.Moment, error) {
	moments, err := m.store.MomentsForOwnerBefore(ctx, ownerID, before, limit+1, opts)
	if err != nil {
		return nil, err
	}
	if len(moments) <= limit {
		return moments, nil
	}

	boundary := moments[limit-1].CreatedAt.UTC().Format(feedDateLayout)
	page := moments[:limit:limit]
	pending := moments[limit:]
	for {
		for _, mom := range pending {
			if mom.CreatedAt.UTC().Format(feedDateLayout) != boundary {
				return page, nil
			}
			page = append(page, mom)
		}
		cursor := page[len(page)-1].CreatedAt
		pending, err = m.store.MomentsForOwnerBefore(ctx, ownerID, &cursor, limit+1, opts)
		if err != nil {
			return nil, err
		}
		if len(pending) == 0 {
			return page, nil
		}
	}
}

// dayItem projects one virtual day row with its aggregates.
func (m *Memory) dayItem(ctx context.Context, ownerID, date string) (FeedItem, error) {
	dayStart, _ := time.ParseInLocation(feedDateLayout, date, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	stats, err := m.store.DayStatsFor(ctx, ownerID, dayStart, dayEnd)
	if err != nil {
		return FeedItem{}, fmt.Errorf("feed: day stats for %s: %w", date, err)
	}

	return FeedItem{
		Kind:  FeedKindDay,
		ID:    FeedDayID(ownerID, date),
		Date:  date,
		Title: date,
		Stats: stats,
	}, nil
}
