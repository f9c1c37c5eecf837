package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mnemolabs/mnemo/internal/db"
	"github.com/mnemolabs/mnemo/internal/models"
)

// latestSummaryMax bounds the summary snippet cached on the session.
const latestSummaryMax = 120

// SkipReason says why a build produced no moment. Skips are outcomes,
// not errors.
type SkipReason string

const (
	SkipEmptyWindow     SkipReason = "empty_window"
	SkipThresholdNotMet SkipReason = "threshold_not_met"
)

// BuildResult is the outcome of a moment build attempt.
type BuildResult struct {
	Moment  *models.Moment
	Skipped SkipReason

	// WindowMessages and WindowTokens describe the candidate window, also
	// on skipped builds.
	WindowMessages int
	WindowTokens   int
}

// MaybeBuildMoment compacts the session's unsummarized message span into a
// new chunk moment when the span exceeds thresholdTokens. Builds for one
// session are serialized in-process; a concurrent build from another
// process loses the unique-chunk race and adopts the winner's moment.
func (m *Memory) MaybeBuildMoment(ctx context.Context, sessionID string, thresholdTokens int) (BuildResult, error) {
	if sessionID == "" {
		return BuildResult{}, fmt.Errorf("build moment: session id required: %w", db.ErrMalformedInput)
	}

	unlock := m.builds.lock(sessionID)
	defer unlock()

	res, err := m.buildMoment(ctx, sessionID, thresholdTokens)
	if err == nil || !errors.Is(err, db.ErrConcurrentModification) {
		return res, err
	}

	// Another builder won the chunk slot. Its moment covers our window.
	m.logger.Info("moment build lost race, adopting winner", "session", sessionID)
	latest, lerr := m.store.LatestChunkMoment(ctx, sessionID)
	if lerr != nil {
		return BuildResult{}, fmt.Errorf("build moment: adopt concurrent result: %w", lerr)
	}
	res.Moment = latest
	res.Skipped = ""
	return res, nil
}

func (m *Memory) buildMoment(ctx context.Context, sessionID string, thresholdTokens int) (BuildResult, error) {
	sess, err := m.store.GetSession(ctx, sessionID, db.ReadOptions{})
	if err != nil {
		return BuildResult{}, fmt.Errorf("build moment: %w", err)
	}

	tenant, err := m.tenantFor(ctx, sess.TenantID)
	if err != nil {
		return BuildResult{}, fmt.Errorf("build moment: resolve tenant: %w", err)
	}

	last, err := m.store.LatestChunkMoment(ctx, sessionID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return BuildResult{}, fmt.Errorf("build moment: %w", err)
	}

	// Window: strictly after the last chunk's end, so a message stamped
	// exactly at the boundary is never summarized twice.
	opts := db.ReadOptions{Tenant: tenant}
	var msgs []models.Message
	if last != nil && last.EndsTimestamp != nil {
		msgs, err = m.store.MessagesSince(ctx, sessionID, last.EndsTimestamp, opts)
	} else {
		msgs, err = m.store.MessagesSince(ctx, sessionID, nil, opts)
	}
	if err != nil {
		return BuildResult{}, fmt.Errorf("build moment: load window: %w", err)
	}

	res := BuildResult{WindowMessages: len(msgs)}
	for _, msg := range msgs {
		res.WindowTokens += msg.TokenCount
	}

	if len(msgs) == 0 {
		res.Skipped = SkipEmptyWindow
		return res, nil
	}
	if res.WindowTokens <= thresholdTokens {
		res.Skipped = SkipThresholdNotMet
		m.logger.Debug("moment build below threshold",
			"session", sessionID, "tokens", res.WindowTokens, "threshold", thresholdTokens)
		return res, nil
	}

	summary := m.summarize(ctx, msgs)

	chunkIndex := 0
	var prevKeys []string
	if last != nil {
		chunkIndex = last.ChunkIndex() + 1
		prevKeys = []string{last.Name}
	}

	starts := msgs[0].CreatedAt
	ends := msgs[len(msgs)-1].CreatedAt

	moment := &models.Moment{
		Name:               fmt.Sprintf("%s-chunk-%d", sessionID, chunkIndex),
		Summary:            summary,
		MomentType:         models.MomentSessionChunk,
		SourceSessionID:    &sessionID,
		StartsTimestamp:    &starts,
		EndsTimestamp:      &ends,
		PreviousMomentKeys: prevKeys,
	}
	moment.TenantID = sess.TenantID
	moment.OwnerID = sess.OwnerID
	moment.Metadata = models.Metadata{
		models.MetaChunkIndex:   chunkIndex,
		models.MetaMessageCount: len(msgs),
		models.MetaTokenCount:   res.WindowTokens,
	}

	// The chunk name is the natural key, so the record ID is known before
	// the write and can be cached on the session in the same transaction.
	owner := ""
	if sess.OwnerID != nil {
		owner = *sess.OwnerID
	}
	moment.ID = models.DeterministicID(models.TableMoment, moment.Name, owner)

	sessionMeta := models.MergeMetadata(sess.Metadata, models.Metadata{
		models.MetaLatestMomentID: moment.ID,
		models.MetaLatestSummary:  models.Truncate(summary, latestSummaryMax),
		models.MetaMomentCount:    sess.MomentCount() + 1,
	})

	stored, err := m.store.CreateMomentWithSession(ctx, moment, sessionID, sessionMeta)
	if err != nil {
		return res, err
	}

	m.logger.Info("moment built",
		"session", sessionID,
		"moment", stored.Name,
		"chunk", chunkIndex,
		"messages", len(msgs),
		"tokens", res.WindowTokens)

	res.Moment = stored
	return res, nil
}

// summarize runs the configured summarizer, falling back to deterministic
// aggregation when no summarizer is set or it fails. A moment with a crude
// summary beats no moment. Rows whose ciphertext could not be opened are
// excluded so ciphertext never reaches a prompt.
func (m *Memory) summarize(ctx context.Context, msgs []models.Message) string {
	readable := msgs[:0:0]
	for _, msg := range msgs {
		if !msg.DecryptSkipped {
			readable = append(readable, msg)
		}
	}
	if len(readable) == 0 {
		return fmt.Sprintf("%d messages (content unavailable)", len(msgs))
	}
	msgs = readable

	if m.summarizer != nil {
		summary, err := m.summarizer.Summarize(ctx, msgs)
		if err == nil && summary != "" {
			return summary
		}
		if err != nil {
			m.logger.Warn("summarizer failed, using deterministic fallback", "error", err)
		}
	}
	return DeterministicSummary(msgs)
}

// DeterministicSummary aggregates a window without an LLM: turn counts
// plus the first line of each substantive message, bounded.
func DeterministicSummary(msgs []models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d messages", len(msgs))

	lines := 0
	for _, msg := range msgs {
		if msg.Type != models.MessageUser && msg.Type != models.MessageAssistant {
			continue
		}
		text := firstLine(msg.Content)
		if text == "" {
			continue
		}
		if lines == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString(" | ")
		}
		b.WriteString(models.Truncate(text, 80))
		lines++
		if lines >= 8 {
			break
		}
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
