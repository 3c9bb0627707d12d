package protocol

// Event names pushed while an agent run executes. Events for one run are
// always delivered in the order the loop produced them.
const (
	EventRunStarted   = "run.started"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventRunAborted   = "run.aborted"
	EventToolCall     = "tool.call"
	EventToolResult   = "tool.result"
	EventChatChunk    = "chat.chunk"
	EventShutdown     = "shutdown"
)
