// Package eventlog streams a JSONL session file line by line, classifying
// each line into a closed tagged union of events without ever buffering the
// whole file in memory.
package eventlog

// Type discriminates the tagged union of events a session file can contain.
type Type string

const (
	TypeUser        Type = "user"
	TypeAssistant   Type = "assistant"
	TypeToolUse     Type = "tool_use"
	TypeToolResult  Type = "tool_result"
	TypeSummary     Type = "summary"
	TypeSystem      Type = "system"
	TypeSkipped     Type = "skipped"
)

// BlockKind discriminates the two content-block shapes an assistant message
// can carry.
type BlockKind string

const (
	BlockText    BlockKind = "text"
	BlockToolUse BlockKind = "tool_use"
)

// ContentBlock is one ordered element of an assistant message's content.
type ContentBlock struct {
	Kind BlockKind

	// Populated when Kind == BlockText.
	Text string

	// Populated when Kind == BlockToolUse.
	ToolUseID string
	ToolName  string
	ToolInput map[string]any
}

// Event is the closed tagged union produced by the parser. Only the fields
// relevant to Type are meaningful; the rest are zero values.
type Event struct {
	Type Type

	UUID      string
	Timestamp string
	LineNumber int

	// user
	Content   string
	Cwd       string
	GitBranch string

	// assistant
	ContentBlocks []ContentBlock
	Model         string
	Usage         map[string]any

	// tool_use
	Name  string
	Input map[string]any

	// tool_result
	ToolUseID string
	IsError   bool

	// summary
	LeafUUID string

	// system
	Subtype string
	Data    map[string]any

	// skipped
	SkippedReason string
}
