// Package ingest wires discovery, the transcript parser/aggregator, the
// pricing/cost algebra, and the metrics composites into the store,
// implementing the ingestion coordinator of spec.md §4.I.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentanalytics/agentanalytics/internal/discovery"
	"github.com/agentanalytics/agentanalytics/internal/metrics"
	"github.com/agentanalytics/agentanalytics/internal/pricing"
	"github.com/agentanalytics/agentanalytics/internal/store"
	"github.com/agentanalytics/agentanalytics/internal/tokens"
	"github.com/agentanalytics/agentanalytics/internal/transcript"
)

// Coordinator orchestrates one ingestion pass over every discovered
// transcript file. It owns no long-lived per-file state itself — the
// store's sessions table tracks each file's last-seen mtime, so a
// Coordinator can be recreated freely between runs. A file whose mtime
// is unchanged since the last pass is skipped; any other file is
// re-parsed from the start, never resumed from a prior offset, because
// Claude Code may rewrite earlier lines in place rather than only
// appending.
type Coordinator struct {
	Store      *store.Store
	Pricing    *pricing.Registry
	Roots      []string
	History    string
	Concurrency int
}

// New returns a Coordinator with a sensible default concurrency.
func New(st *store.Store, reg *pricing.Registry, roots []string, history string) *Coordinator {
	return &Coordinator{Store: st, Pricing: reg, Roots: roots, History: history, Concurrency: 8}
}

// FileResult summarizes one file's ingestion outcome.
type FileResult struct {
	Path        string
	SessionID   string
	Skipped     bool // true when the mtime cache hit and nothing changed
	TurnsWritten int
	Err         error
}

// RunOnce discovers every transcript file and ingests it, with one
// goroutine per file and a bounded worker pool; store writes go through
// the *store.Store's shared connection pool and are serialized by
// SQLite's own write lock, so no additional locking is done here. A per-file error is isolated: it is recorded in the
// returned results but never aborts the run.
func (c *Coordinator) RunOnce(ctx context.Context) ([]FileResult, error) {
	files, err := discovery.Walk(c.Roots, c.History)
	if err != nil {
		return nil, fmt.Errorf("ingest: discover files: %w", err)
	}

	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	results := make([]FileResult, len(files))
	var wg sync.WaitGroup

	for i, f := range files {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, f discovery.SessionFileInfo) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = c.ingestFile(ctx, f)
		}(i, f)
	}
	wg.Wait()

	return results, nil
}

func (c *Coordinator) ingestFile(ctx context.Context, f discovery.SessionFileInfo) FileResult {
	result := FileResult{Path: f.Path, SessionID: f.SessionID}

	if f.IsHistory {
		// The global history file has no per-session structure; it is
		// reserved for future cross-session indexing and is a no-op today.
		result.Skipped = true
		return result
	}

	cachedMtime, hasSession, err := c.checkCache(ctx, f)
	if err != nil {
		result.Err = err
		return result
	}
	if hasSession && cachedMtime == f.ModTime {
		result.Skipped = true
		return result
	}

	// A changed mtime means the session file may have been rewritten, not
	// just appended to (Claude Code rewrites sidecar fields in place on
	// some turns), so every pass re-parses the whole file from the start
	// rather than resuming from a prior checkpoint. Re-parsing in full is
	// what keeps turn numbering and session totals correct across passes.
	reader := discovery.NewReader(f.Path, 0)
	lines, err := reader.ReadNewLines()
	if err != nil {
		result.Err = fmt.Errorf("ingest: read %s: %w", f.Path, err)
		return result
	}

	agg := transcript.NewAggregator()
	var sessionID, projectPath, model string
	var lastTimestamp string
	for _, pl := range lines {
		if !pl.Ok {
			continue // parse-skip: tolerated, never aborts the file
		}
		agg.Feed(pl.Entry)
		if pl.Entry.SessionID != "" {
			sessionID = pl.Entry.SessionID
		}
		if pl.Entry.Model != "" {
			model = pl.Entry.Model
		}
		if pl.Entry.Timestamp != "" {
			lastTimestamp = pl.Entry.Timestamp
		}
	}
	agg.Flush()
	turns := agg.Completed()

	if sessionID == "" {
		sessionID = f.SessionID
	}
	projectPath = f.ProjectPath

	if err := c.writeSession(ctx, f, sessionID, projectPath, model, lastTimestamp, turns); err != nil {
		result.Err = err
		return result
	}

	if err := c.Store.SetFilePosition(ctx, f.Path, reader.Offset()); err != nil {
		result.Err = err
		return result
	}

	result.TurnsWritten = len(turns)
	return result
}

// checkCache reports the session's previously recorded file mtime (if
// any) so the caller can skip files whose mtime is unchanged.
func (c *Coordinator) checkCache(ctx context.Context, f discovery.SessionFileInfo) (int64, bool, error) {
	sess, ok, err := c.Store.GetSession(ctx, sessionIDFor(f))
	if err != nil {
		return 0, false, fmt.Errorf("ingest: check cache for %s: %w", f.Path, err)
	}
	if !ok || sess.FileMtime == nil {
		return 0, false, nil
	}
	return *sess.FileMtime, true, nil
}

func sessionIDFor(f discovery.SessionFileInfo) string {
	return f.SessionID
}

func projectNameFromPath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Base(strings.TrimRight(p, "/"))
}

// writeSession derives turn/session-level metrics from the completed
// turns and persists the session, every turn, and the session's
// aggregate metrics row.
func (c *Coordinator) writeSession(ctx context.Context, f discovery.SessionFileInfo, sessionID, projectPath, model, lastTimestamp string, turns []transcript.CompletedTurn) error {
	startedAt := ""
	if len(turns) > 0 {
		startedAt = turns[0].StartedAt
	}
	lastActivity := lastTimestamp
	if lastActivity == "" && len(turns) > 0 {
		lastActivity = turns[len(turns)-1].StartedAt
	}

	var modelPtr *string
	if model != "" {
		modelPtr = &model
	}
	mtime := f.ModTime
	if err := c.Store.UpsertSession(ctx, store.Session{
		SessionID:      sessionID,
		ProjectPath:    projectPath,
		ProjectName:    projectNameFromPath(projectPath),
		StartedAt:      firstNonEmpty2(startedAt, lastActivity),
		LastActivityAt: firstNonEmpty2(lastActivity, startedAt),
		Model:          modelPtr,
		FilePath:       f.Path,
		FileMtime:      &mtime,
	}); err != nil {
		return fmt.Errorf("ingest: upsert session %s: %w", sessionID, err)
	}

	var agg sessionAggregate
	turnTokens := make([]metrics.TurnTokens, 0, len(turns))

	for _, t := range turns {
		rates := c.Pricing.Lookup(t.Model)
		cost := tokens.Cost(t.Usage, rates)

		var endedAt, userMsg, assistantMsg, stopReason *string
		if t.EndedAt != "" {
			endedAt = &t.EndedAt
		}
		if t.UserMessage != "" {
			userMsg = &t.UserMessage
		}
		if t.AssistantText != "" {
			assistantMsg = &t.AssistantText
		}
		if t.StopReason != "" {
			stopReason = &t.StopReason
		}
		var turnModel *string
		if t.Model != "" {
			turnModel = &t.Model
		}

		resolved := t.Usage.Resolved()
		contextPct := metrics.PeakContextPctFallback(resolved.Input, resolved.CacheRead, int64(rates.ContextLimitTokens))

		turnID := sessionID + ":" + itoa(t.TurnNumber)
		var toolRows []store.ToolUseRow
		for i, tu := range t.ToolUses {
			toolRows = append(toolRows, store.ToolUseRow{
				ToolUseID: toolUseRowID(turnID, tu.ID, i),
				TurnID:    turnID,
				Name:      tu.Name,
				Input:     tu.Input,
				Result:    tu.Result,
				IsError:   tu.IsError,
			})
		}

		if err := c.Store.UpsertTurn(ctx, store.Turn{
			TurnID:           turnID,
			SessionID:        sessionID,
			TurnNumber:       t.TurnNumber,
			StartedAt:        t.StartedAt,
			EndedAt:          endedAt,
			DurationMs:       t.DurationMs,
			UserMessage:      userMsg,
			AssistantMessage: assistantMsg,
			Model:            turnModel,
			StopReason:       stopReason,
			Input:            resolved.Input,
			Output:           resolved.Output,
			CacheRead:        resolved.CacheRead,
			CacheWrite5m:     resolved.CacheWrite5m,
			CacheWrite1h:     resolved.CacheWrite1h,
			TotalCost:        cost.Total(),
			ContextUsagePct:  contextPct,
			ToolCount:        t.ToolCount,
		}, toolRows); err != nil {
			return fmt.Errorf("ingest: upsert turn %s: %w", turnID, err)
		}

		for _, agentID := range t.SubagentIDs {
			if err := c.Store.UpsertSubagent(ctx, sessionID+":"+agentID, sessionID, turnID, agentID, ""); err != nil {
				return fmt.Errorf("ingest: upsert subagent %s: %w", agentID, err)
			}
		}

		agg.accumulate(resolved, cost.Total(), t.ToolCount, len(t.SubagentIDs))
		turnTokens = append(turnTokens, metrics.TurnTokens{
			Input: resolved.Input, Output: resolved.Output, CacheRead: resolved.CacheRead,
			CacheWrite5m: resolved.CacheWrite5m, CacheWrite1h: resolved.CacheWrite1h,
		})
	}

	score := agg.efficiencyScore(turnTokens, len(turns))
	if err := c.Store.UpsertSessionMetrics(ctx, store.SessionMetrics{
		SessionID:         sessionID,
		TurnCount:         len(turns),
		TotalInput:        agg.input,
		TotalOutput:       agg.output,
		TotalCacheRead:    agg.cacheRead,
		TotalCacheWrite5m: agg.cacheWrite5m,
		TotalCacheWrite1h: agg.cacheWrite1h,
		TotalCost:         agg.cost,
		ToolCount:         agg.toolCount,
		SubagentCount:     agg.subagentCount,
		EfficiencyScore:   score,
		CacheHitRate:      metrics.CER(turnTokens),
	}); err != nil {
		return fmt.Errorf("ingest: upsert session_metrics %s: %w", sessionID, err)
	}

	return nil
}

func firstNonEmpty2(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func toolUseRowID(turnID, id string, index int) string {
	if id != "" {
		return turnID + ":" + id
	}
	return fmt.Sprintf("%s:anon-%d", turnID, index)
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
