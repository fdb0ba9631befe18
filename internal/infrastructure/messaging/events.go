package messaging

const (
	BoardEventsQueue = "board_events"
	DeadLetterQueue  = "dead_letter_queue"
)
