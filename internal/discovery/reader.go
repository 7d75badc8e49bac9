package discovery

import (
	"bufio"
	"fmt"
	"os"

	"github.com/agentanalytics/agentanalytics/internal/transcript"
)

// ParsedLine pairs a successfully parsed entry with its skip outcome;
// exactly one of Entry/Skip is meaningful, discriminated by Ok.
type ParsedLine struct {
	Entry transcript.LogEntry
	Skip  transcript.SkipReason
	Ok    bool
}

// Reader holds (path, offset) and tails a transcript file incrementally,
// per spec.md §4.F. It is not safe for concurrent use by multiple
// goroutines; the ingestion coordinator owns one Reader per file.
type Reader struct {
	path   string
	offset int64
}

// NewReader returns a reader starting at the given byte offset (0 for a
// file never seen before).
func NewReader(path string, offset int64) *Reader {
	return &Reader{path: path, offset: offset}
}

// Offset reports the current byte offset.
func (r *Reader) Offset() int64 { return r.offset }

// ReadNewLines opens the file, seeks to the current offset, and reads
// whole lines until EOF. Offset advances only by the bytes consumed by
// complete, newline-terminated lines; a partial trailing line (no
// terminator yet) is left unread so a future call can pick it up once
// more bytes have been appended.
func (r *Reader) ReadNewLines() ([]ParsedLine, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("discovery: open %s: %w", r.path, err)
	}
	defer f.Close()

	if r.offset > 0 {
		if _, err := f.Seek(r.offset, 0); err != nil {
			return nil, fmt.Errorf("discovery: seek %s: %w", r.path, err)
		}
	}

	reader := bufio.NewReader(f)
	var out []ParsedLine
	var consumed int64

	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			consumed += int64(len(line))
			trimmed := line[:len(line)-1]
			if len(trimmed) > 0 && trimmed[len(trimmed)-1] == '\r' {
				trimmed = trimmed[:len(trimmed)-1]
			}
			out = append(out, parseTranscriptLine(trimmed))
		} else if err == nil {
			// Shouldn't happen: ReadString only returns without a trailing
			// delimiter when it also returns an error.
			consumed += int64(len(line))
		}
		if err != nil {
			break // EOF, possibly with an unterminated partial line left unread
		}
	}

	r.offset += consumed
	return out, nil
}

func parseTranscriptLine(line string) ParsedLine {
	if len(line) == 0 {
		return ParsedLine{Skip: transcript.SkipEmptyLine, Ok: false}
	}
	entry, reason, ok := transcript.ParseLine([]byte(line))
	return ParsedLine{Entry: entry, Skip: reason, Ok: ok}
}

// Reset rewinds the reader to the start of the file, for use after the
// coordinator detects truncation (current size < last known offset).
func (r *Reader) Reset() {
	r.offset = 0
}
