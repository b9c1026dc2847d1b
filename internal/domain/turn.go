package domain

// TurnCredential is an ephemeral long-term-credential pair for a TURN relay.
// Never persisted; the relay verifies it independently from the shared secret.
type TurnCredential struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	TTLSeconds int    `json:"ttl"`
}
