package domain

// Message is a single persisted conversation turn in the transcript table.
type Message struct {
	PK        string
	SK        string
	ActorID   string
	SessionID string
	Text      string
	Answer    string
	Status    string
	TTL       int64
}

// SessionMeta stores aggregate state for one actor session.
type SessionMeta struct {
	PK           string
	SK           string
	ActorID      string
	SessionID    string
	LastActivity string
	Turns        int
	TTL          int64
}
