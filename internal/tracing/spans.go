package tracing

// Span attribute keys.
const (
	AttrRunID     = "displayboard.run_id"
	AttrLoopName  = "loop.name"
	AttrIteration = "loop.iteration"
	AttrWaitMs    = "loop.wait_ms"

	AttrPlayerPath = "player.path"
	AttrPlayerPID  = "player.pid"
	AttrPlayerFile = "player.file"
	AttrState      = "player.state"

	AttrErrorMessage = "error.message"
)

// Span names.
const (
	SpanLoopIteration = "loop.iteration"
	SpanLoopSetup     = "loop.setup"
	SpanPlayerLaunch  = "player.launch"
	SpanPlayerStop    = "player.stop"
	SpanShutdown      = "orchestrator.shutdown"
)

// Event names recorded on spans.
const (
	EventPanicRecovered = "panic.recovered"
	EventPlayerCrashed  = "player.crashed"
)
