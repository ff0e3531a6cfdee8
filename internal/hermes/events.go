package hermes

const (
	SubjectCharacterUpdated = "swarm.fleek.character.updated"
	SubjectTurnFailed       = "swarm.fleek.turn.failed"
	SubjectCharacterSaved   = "swarm.fleek.character.saved"
	SubjectRegistered       = "swarm.agent.fleek.registered"
)

// CharacterUpdated is emitted when an assistant turn completes and the
// session's running document reflects it.
type CharacterUpdated struct {
	SessionID string   `json:"session_id"`
	TurnID    string   `json:"turn_id"`
	Name      string   `json:"name"`
	Fields    []string `json:"fields"`
	Timestamp string   `json:"timestamp"`
}

// TurnFailed is emitted when the backend stream breaks mid-turn.
type TurnFailed struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// CharacterSaved is emitted after a document copy is persisted.
type CharacterSaved struct {
	CharacterID string `json:"character_id"`
	SessionID   string `json:"session_id"`
	Name        string `json:"name"`
	Timestamp   string `json:"timestamp"`
}
