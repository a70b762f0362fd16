package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// maxLineSize guards against a corrupt or adversarial file producing a
// single unbounded line; lines longer than this are still read in full but
// are yielded as Skipped instead of being decoded.
const maxLineSize = 64 * 1024 * 1024

// Parser produces a lazy, finite, non-restartable sequence of Events for a
// single JSONL session file. Memory usage is bounded by one line at a time;
// the file is never loaded in full. Call Close (directly, or via draining
// Next to io.EOF then Close) to release the file handle.
type Parser struct {
	file    *os.File
	reader  *bufio.Reader
	lineNum int
	done    bool
}

// Open begins a streaming parse of the session file at path.
func Open(path string) (*Parser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	return &Parser{file: f, reader: bufio.NewReaderSize(f, 64*1024)}, nil
}

// Close releases the underlying file handle. Safe to call multiple times.
func (p *Parser) Close() error {
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

// Next returns the next Event in the file, or io.EOF once the file is
// exhausted. A malformed line never produces an error here — it produces a
// Skipped event; Next only returns a non-EOF error on a genuine I/O
// failure reading the file, which the caller (the sync orchestrator) treats
// as a mid-session read failure.
func (p *Parser) Next() (Event, error) {
	for {
		if p.done {
			return Event{}, io.EOF
		}

		line, readErr := p.reader.ReadString('\n')
		hasContent := len(line) > 0

		if readErr != nil {
			if readErr == io.EOF {
				p.done = true
				if !hasContent {
					return Event{}, io.EOF
				}
				// fall through: process the final, unterminated line
			} else {
				p.done = true
				return Event{}, fmt.Errorf("eventlog: reading line %d: %w", p.lineNum+1, readErr)
			}
		}

		p.lineNum++
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if len(trimmed) > maxLineSize {
			return Event{
				Type:          TypeSkipped,
				LineNumber:    p.lineNum,
				SkippedReason: fmt.Sprintf("line %d exceeds maximum size", p.lineNum),
			}, nil
		}

		return parseLine(trimmed, p.lineNum), nil
	}
}

// rawEvent is the wire shape decoded before projection into the closed
// Event union. Its field schema beyond `type` is reverse-engineered from
// observed session logs; absent optional fields are tolerated throughout.
type rawEvent struct {
	Type          string          `json:"type"`
	UUID          string          `json:"uuid"`
	Content       json.RawMessage `json:"content"`
	ContentBlocks []rawBlock      `json:"content_blocks"`
	Timestamp     string          `json:"timestamp"`
	Cwd           string          `json:"cwd"`
	GitBranch     string          `json:"git_branch"`
	Model         string          `json:"model"`
	Usage         map[string]any  `json:"usage"`
	Name          string          `json:"name"`
	Input         map[string]any  `json:"input"`
	ToolUseID     string          `json:"tool_use_id"`
	IsError       bool            `json:"is_error"`
	LeafUUID      string          `json:"leaf_uuid"`
	Subtype       string          `json:"subtype"`
	Data          map[string]any  `json:"data"`
}

type rawBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text"`
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

func parseLine(line string, lineNo int) Event {
	var raw rawEvent
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Event{
			Type:          TypeSkipped,
			LineNumber:    lineNo,
			SkippedReason: fmt.Sprintf("malformed json at line %d", lineNo),
		}
	}

	ts := normalizeTimestamp(raw.Timestamp)

	switch raw.Type {
	case "user":
		return Event{
			Type:      TypeUser,
			UUID:      raw.UUID,
			Content:   contentAsString(raw.Content),
			Timestamp: ts,
			Cwd:       raw.Cwd,
			GitBranch: raw.GitBranch,
			LineNumber: lineNo,
		}
	case "assistant":
		return projectAssistant(raw, ts, lineNo)
	case "tool_use":
		return Event{
			Type:       TypeToolUse,
			UUID:       raw.UUID,
			Name:       raw.Name,
			Input:      raw.Input,
			Timestamp:  ts,
			LineNumber: lineNo,
		}
	case "tool_result":
		return Event{
			Type:       TypeToolResult,
			UUID:       raw.UUID,
			ToolUseID:  raw.ToolUseID,
			Content:    contentAsString(raw.Content),
			IsError:    raw.IsError,
			Timestamp:  ts,
			LineNumber: lineNo,
		}
	case "summary":
		return Event{
			Type:       TypeSummary,
			Content:    contentAsString(raw.Content),
			Timestamp:  ts,
			LeafUUID:   raw.LeafUUID,
			LineNumber: lineNo,
		}
	case "system":
		return Event{
			Type:       TypeSystem,
			Subtype:    raw.Subtype,
			Data:       raw.Data,
			Timestamp:  ts,
			LineNumber: lineNo,
		}
	default:
		return Event{
			Type:          TypeSkipped,
			LineNumber:    lineNo,
			SkippedReason: fmt.Sprintf("unknown type %s", raw.Type),
		}
	}
}

// projectAssistant builds the ordered content-block sequence for an
// assistant event. A block lacking required fields is dropped, not the
// event; if every block is dropped the event becomes a Skipped companion
// rather than an empty assistant event.
func projectAssistant(raw rawEvent, ts string, lineNo int) Event {
	var blocks []ContentBlock
	for _, b := range raw.ContentBlocks {
		switch b.Type {
		case "text":
			if b.Text == "" {
				continue
			}
			blocks = append(blocks, ContentBlock{Kind: BlockText, Text: b.Text})
		case "tool_use":
			if b.ID == "" || b.Name == "" {
				continue
			}
			blocks = append(blocks, ContentBlock{Kind: BlockToolUse, ToolUseID: b.ID, ToolName: b.Name, ToolInput: b.Input})
		}
	}

	if len(blocks) == 0 {
		return Event{
			Type:          TypeSkipped,
			LineNumber:    lineNo,
			SkippedReason: fmt.Sprintf("assistant event with no valid content blocks at line %d", lineNo),
		}
	}

	return Event{
		Type:          TypeAssistant,
		UUID:          raw.UUID,
		ContentBlocks: blocks,
		Model:         raw.Model,
		Usage:         raw.Usage,
		Timestamp:     ts,
		LineNumber:    lineNo,
	}
}

// contentAsString accepts either a bare JSON string or any other JSON value
// for a content field and renders it as text; upstream session logs are not
// strictly typed here.
func contentAsString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// normalizeTimestamp accepts both "Z" and numeric-offset ISO-8601 forms and
// renders the result in UTC. Unparseable input is passed through unchanged
// rather than discarded, since the source schema beyond `type` is
// reverse-engineered and tolerated best-effort.
func normalizeTimestamp(ts string) string {
	if ts == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	return ts
}
