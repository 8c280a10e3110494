package db

type DurableTransaction struct {
	ID           string
	Transaction  string
	PublicKey    string
	PollID       string
	Candidate    string
	NonceAccount string
	NonceValue   string
	Status       string
	Error        string
	Attempts     int64
	Signature    string
	CreatedAt    int64
	UpdatedAt    int64
}
