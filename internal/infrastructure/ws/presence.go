package ws

import "github.com/HarshitGajawada/sync-sketch-collaboration/internal/domain"

// Registry maps connection ids to participants. It is owned by the Core loop
// and is not safe for concurrent use.
type Registry struct {
	participants map[string]*domain.Participant
}

func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[string]*domain.Participant),
	}
}

func (r *Registry) Register(connectionID, userID, username string) *domain.Participant {
	p := domain.NewParticipant(connectionID, userID, username)
	r.participants[connectionID] = p
	return p
}

// Unregister returns the removed participant, or nil if the connection was
// never registered or is already gone.
func (r *Registry) Unregister(connectionID string) *domain.Participant {
	p, ok := r.participants[connectionID]
	if !ok {
		return nil
	}
	delete(r.participants, connectionID)
	return p
}

func (r *Registry) Lookup(connectionID string) *domain.Participant {
	return r.participants[connectionID]
}

func (r *Registry) Len() int {
	return len(r.participants)
}
