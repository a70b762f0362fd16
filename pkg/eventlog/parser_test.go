package eventlog

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeSession(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func drain(t *testing.T, p *Parser) []Event {
	t.Helper()
	var events []Event
	for {
		ev, err := p.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

func TestParserUserEvent(t *testing.T) {
	path := writeSession(t, `{"type":"user","uuid":"u1","content":"hello there","timestamp":"2024-01-01T00:00:00Z","cwd":"/tmp","git_branch":"main"}`+"\n")
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	events := drain(t, p)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != TypeUser || ev.Content != "hello there" || ev.Cwd != "/tmp" || ev.GitBranch != "main" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestParserMalformedLineYieldsSkipped(t *testing.T) {
	path := writeSession(t, "{not valid json\n{\"type\":\"user\",\"uuid\":\"u1\",\"content\":\"ok\"}\n")
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	events := drain(t, p)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != TypeSkipped {
		t.Errorf("events[0].Type = %v, want Skipped", events[0].Type)
	}
	if events[1].Type != TypeUser {
		t.Errorf("events[1].Type = %v, want User", events[1].Type)
	}
}

func TestParserUnknownTypeYieldsSkipped(t *testing.T) {
	path := writeSession(t, `{"type":"mystery"}`+"\n")
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	events := drain(t, p)
	if len(events) != 1 || events[0].Type != TypeSkipped {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestParserBlankLinesYieldNothing(t *testing.T) {
	path := writeSession(t, "\n\n{\"type\":\"user\",\"uuid\":\"u1\",\"content\":\"x\"}\n\n")
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	events := drain(t, p)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
}

func TestParserAssistantContentBlocks(t *testing.T) {
	path := writeSession(t, `{"type":"assistant","uuid":"a1","timestamp":"2024-01-01T00:00:00Z","model":"claude","content_blocks":[{"type":"text","text":"hi"},{"type":"tool_use","id":"t1","name":"bash","input":{"command":"ls"}}]}`+"\n")
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	events := drain(t, p)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != TypeAssistant {
		t.Fatalf("Type = %v, want Assistant", ev.Type)
	}
	if len(ev.ContentBlocks) != 2 {
		t.Fatalf("got %d content blocks, want 2", len(ev.ContentBlocks))
	}
	if ev.ContentBlocks[0].Kind != BlockText || ev.ContentBlocks[0].Text != "hi" {
		t.Errorf("block 0 = %+v", ev.ContentBlocks[0])
	}
	if ev.ContentBlocks[1].Kind != BlockToolUse || ev.ContentBlocks[1].ToolName != "bash" {
		t.Errorf("block 1 = %+v", ev.ContentBlocks[1])
	}
}

func TestParserAssistantEmptyAfterDroppingBlocksIsSkipped(t *testing.T) {
	path := writeSession(t, `{"type":"assistant","uuid":"a1","content_blocks":[{"type":"tool_use"}]}`+"\n")
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	events := drain(t, p)
	if len(events) != 1 || events[0].Type != TypeSkipped {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestParserDeterministic(t *testing.T) {
	content := `{"type":"user","uuid":"u1","content":"alpha beta","timestamp":"2024-01-01T00:00:00Z"}` + "\n" +
		`{"type":"tool_use","uuid":"t1","name":"bash","input":{"command":"ls"},"timestamp":"2024-01-01T00:00:01Z"}` + "\n"
	path := writeSession(t, content)

	first := func() []Event {
		p, err := Open(path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer p.Close()
		return drain(t, p)
	}

	a := first()
	b := first()
	if len(a) != len(b) {
		t.Fatalf("got %d vs %d events", len(a), len(b))
	}
	for i := range a {
		if a[i].Type != b[i].Type || a[i].UUID != b[i].UUID ||
			a[i].Content != b[i].Content || a[i].Timestamp != b[i].Timestamp ||
			a[i].Name != b[i].Name || a[i].SkippedReason != b[i].SkippedReason {
			t.Errorf("event %d differs between parses: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestParserTimestampNormalization(t *testing.T) {
	path := writeSession(t, `{"type":"user","uuid":"u1","content":"x","timestamp":"2024-01-01T05:00:00+05:00"}`+"\n")
	p, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p.Close()

	events := drain(t, p)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Timestamp != "2024-01-01T00:00:00Z" {
		t.Errorf("Timestamp = %q, want normalized UTC", events[0].Timestamp)
	}
}
