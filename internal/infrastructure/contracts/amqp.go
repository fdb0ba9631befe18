package contracts

// AmqpMessage is the message structure for AMQP.
type AmqpMessage struct {
	BoardID string `json:"boardId"`
	Data    []byte `json:"data"`
}

// Routing keys - using consistent event/command patterns
const (
	EventBoardOpened       = "board.opened"
	EventBoardClosed       = "board.closed"
	EventParticipantJoined = "participant.joined"
	EventParticipantLeft   = "participant.left"
	EventSnapshotSaved     = "snapshot.saved"
)

// BoardEventRoutingKeys lists every key the audit consumer binds to.
var BoardEventRoutingKeys = []string{
	EventBoardOpened,
	EventBoardClosed,
	EventParticipantJoined,
	EventParticipantLeft,
	EventSnapshotSaved,
}
