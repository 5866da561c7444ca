package quiz

// Outbound event names emitted by the quiz runtime. The gateway forwards
// them verbatim as the "type" field of websocket messages.
const (
	EventGameStarted = "game-started"
	EventQuestion    = "question"
	EventTick        = "tick"
	EventAnswerAck   = "answer-ack"
	EventAnswerCount = "answer-count"
	EventReveal      = "reveal"
	EventGameOver    = "game-over"
)
