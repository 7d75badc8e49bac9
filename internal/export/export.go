// Package export renders session/turn/trend data to the CSV and JSON
// formats described in spec.md §6.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TurnRecord is one turn's exported shape.
type TurnRecord struct {
	TurnNumber         int
	StartedAt          string
	EndedAt            string
	InputTokens        int64
	OutputTokens       int64
	CacheReadTokens    int64
	CacheWriteTokens   int64
	TotalTokens        int64
	Cost               float64
	ToolCount          int
	ToolsUsed          []string
	UserMessagePreview string
}

// SessionRecord is one session's exported shape, with turns populated
// only for turn-level and combined exports.
type SessionRecord struct {
	SessionID       string
	Date            string
	ProjectName     string
	Model           string
	Turns           int
	Tokens          int64
	Cost            float64
	DurationMs      int64
	EfficiencyScore *float64
	TurnRecords     []TurnRecord
}

const filenameLayout = "20060102_150405"

// Filename builds the "<prefix>_<YYYYMMDD_HHMMSS>.<ext>" convention.
func Filename(prefix string, ext string, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, at.Format(filenameLayout), ext)
}

var sessionCSVHeader = []string{"session_id", "date", "project_name", "model", "turns", "tokens", "cost", "duration_ms", "efficiency_score"}

var turnCSVExtraHeader = []string{"turn_number", "started_at", "ended_at", "input_tokens", "output_tokens", "cache_read_tokens", "cache_write_tokens", "total_tokens", "cost", "tool_count", "tools_used", "user_message_preview"}

// WriteSessionCSV writes one header row plus one row per session.
func WriteSessionCSV(w io.Writer, sessions []SessionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sessionCSVHeader); err != nil {
		return err
	}
	for _, s := range sessions {
		if err := cw.Write(sessionRow(s)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTurnCSV writes one header row plus one row per turn across every
// session, flattening the parent session's identifying fields onto each
// turn's combined columns.
func WriteTurnCSV(w io.Writer, sessions []SessionRecord) error {
	cw := csv.NewWriter(w)
	header := append(append([]string{}, sessionCSVHeader...), turnCSVExtraHeader...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range sessions {
		base := sessionRow(s)
		for _, t := range s.TurnRecords {
			row := append(append([]string{}, base...), turnExtraRow(t)...)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func sessionRow(s SessionRecord) []string {
	eff := ""
	if s.EfficiencyScore != nil {
		eff = strconv.FormatFloat(*s.EfficiencyScore, 'f', -1, 64)
	}
	return []string{
		s.SessionID,
		s.Date,
		s.ProjectName,
		s.Model,
		strconv.Itoa(s.Turns),
		strconv.FormatInt(s.Tokens, 10),
		strconv.FormatFloat(s.Cost, 'f', -1, 64),
		strconv.FormatInt(s.DurationMs, 10),
		eff,
	}
}

func turnExtraRow(t TurnRecord) []string {
	return []string{
		strconv.Itoa(t.TurnNumber),
		t.StartedAt,
		t.EndedAt,
		strconv.FormatInt(t.InputTokens, 10),
		strconv.FormatInt(t.OutputTokens, 10),
		strconv.FormatInt(t.CacheReadTokens, 10),
		strconv.FormatInt(t.CacheWriteTokens, 10),
		strconv.FormatInt(t.TotalTokens, 10),
		strconv.FormatFloat(t.Cost, 'f', -1, 64),
		strconv.Itoa(t.ToolCount),
		strings.Join(t.ToolsUsed, ","),
		TruncatePreview(t.UserMessagePreview, 100),
	}
}

// TruncatePreview truncates s to n runes, appending "..." if it was
// longer than n.
func TruncatePreview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// jsonSession is the JSON envelope's per-session shape; TurnDetail is
// omitted entirely (not just empty) when the caller didn't request turn detail.
type jsonSession struct {
	SessionID       string       `json:"session_id"`
	Date            string       `json:"date"`
	ProjectName     string       `json:"project_name"`
	Model           string       `json:"model"`
	Turns           int          `json:"turns"`
	Tokens          int64        `json:"tokens"`
	Cost            float64      `json:"cost"`
	DurationMs      int64        `json:"duration_ms"`
	EfficiencyScore *float64     `json:"efficiency_score"`
	TurnDetail      []TurnRecord `json:"turn_detail,omitempty"`
}

// Summary carries totals, averages, and the date range covered by an
// export, per spec.md §6.
type Summary struct {
	TotalCost       float64  `json:"total_cost"`
	AvgCostPerTurn  float64  `json:"avg_cost_per_turn"`
	TotalTokens     int64    `json:"total_tokens"`
	MinDate         string   `json:"min_date"`
	MaxDate         string   `json:"max_date"`
	DailyAvgCost    *float64 `json:"daily_avg_cost,omitempty"`
	DailyAvgTokens  *float64 `json:"daily_avg_tokens,omitempty"`
}

// Envelope is the JSON export's top-level shape.
type Envelope struct {
	ExportDate    string        `json:"export_date"`
	ExportVersion string        `json:"export_version"`
	TotalSessions int           `json:"total_sessions"`
	TotalTurns    int           `json:"total_turns"`
	Sessions      []jsonSession `json:"sessions"`
	DaysIncluded  *int          `json:"days_included,omitempty"`
	Summary       *Summary      `json:"summary,omitempty"`
}

const exportVersion = "1.0.0"

// BuildEnvelope assembles the JSON export envelope. includeTurns
// controls whether each session's TurnRecords are embedded; daysIncluded
// and summary are passed through as-is (nil omits them) to support both
// session/fleet exports and trend exports.
func BuildEnvelope(exportDate time.Time, sessions []SessionRecord, includeTurns bool, daysIncluded *int, summary *Summary) Envelope {
	totalTurns := 0
	out := make([]jsonSession, 0, len(sessions))
	for _, s := range sessions {
		totalTurns += s.Turns
		js := jsonSession{
			SessionID:       s.SessionID,
			Date:            s.Date,
			ProjectName:     s.ProjectName,
			Model:           s.Model,
			Turns:           s.Turns,
			Tokens:          s.Tokens,
			Cost:            s.Cost,
			DurationMs:      s.DurationMs,
			EfficiencyScore: s.EfficiencyScore,
		}
		if includeTurns {
			js.TurnDetail = s.TurnRecords
		}
		out = append(out, js)
	}
	return Envelope{
		ExportDate:    exportDate.Format(time.RFC3339),
		ExportVersion: exportVersion,
		TotalSessions: len(sessions),
		TotalTurns:    totalTurns,
		Sessions:      out,
		DaysIncluded:  daysIncluded,
		Summary:       summary,
	}
}

// BuildSummary computes totals/averages/date-range over a session set.
func BuildSummary(sessions []SessionRecord) Summary {
	var totalCost float64
	var totalTokens int64
	var totalTurns int
	dates := make([]string, 0, len(sessions))
	for _, s := range sessions {
		totalCost += s.Cost
		totalTokens += s.Tokens
		totalTurns += s.Turns
		if s.Date != "" {
			dates = append(dates, s.Date)
		}
	}
	sort.Strings(dates)
	sum := Summary{TotalCost: totalCost, TotalTokens: totalTokens}
	if totalTurns > 0 {
		sum.AvgCostPerTurn = totalCost / float64(totalTurns)
	}
	if len(dates) > 0 {
		sum.MinDate = dates[0]
		sum.MaxDate = dates[len(dates)-1]
	}
	return sum
}

// WriteJSON marshals an Envelope with indentation for readability.
func WriteJSON(w io.Writer, env Envelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}
