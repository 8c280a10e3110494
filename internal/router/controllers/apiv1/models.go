// Package apiv1 holds the JSON models of the HTTP API.
package apiv1

// VersionInfo describes the running binary.
type VersionInfo struct {
	GitCommit     string `json:"git_commit"`
	GitBranch     string `json:"git_branch"`
	GitState      string `json:"git_state"`
	GitSummary    string `json:"git_summary"`
	BuildDate     string `json:"build_date"`
	BinaryVersion string `json:"binary_version"`
}

// Tally is the vote count of each candidate.
type Tally struct {
	Ethereum uint64 `json:"ethereum"`
	Solana   uint64 `json:"solana"`
	Polygon  uint64 `json:"polygon"`
}

// Poll is a poll account and its tally.
type Poll struct {
	Address string `json:"address"`
	Tally   Tally  `json:"tally"`
}

// CreateNoncesRequest asks for a batch of nonce accounts.
type CreateNoncesRequest struct {
	Count int `json:"count"`
}

// NonceEntry is a nonce value and the account that holds it.
type NonceEntry struct {
	Account string `json:"account"`
	Value   string `json:"value"`
}

// PoolStats reports the state of the nonce pool.
type PoolStats struct {
	Available    int `json:"available"`
	Leased       int `json:"leased"`
	Reservations int `json:"reservations"`
}

// PrepareVoteRequest asks for a vote transaction co-signed by the nonce authority.
type PrepareVoteRequest struct {
	Voter     string `json:"voter"`
	Candidate string `json:"candidate"`
}

// Reservation is a prepared vote waiting for the voter signature.
type Reservation struct {
	ID           string `json:"id"`
	Poll         string `json:"poll"`
	Voter        string `json:"voter"`
	Candidate    string `json:"candidate"`
	Transaction  string `json:"transaction"`
	NonceAccount string `json:"nonce_account"`
	NonceValue   string `json:"nonce_value"`
	ExpiresAt    int64  `json:"expires_at"`
}

// CommitVoteRequest hands back the prepared transaction signed by the voter.
type CommitVoteRequest struct {
	ReservationID string `json:"reservation_id"`
	Transaction   string `json:"transaction"`
}

// Vote is a staged vote.
type Vote struct {
	ID           string `json:"id"`
	Poll         string `json:"poll"`
	Voter        string `json:"voter"`
	Candidate    string `json:"candidate"`
	Transaction  string `json:"transaction"`
	NonceAccount string `json:"nonce_account"`
	NonceValue   string `json:"nonce_value"`
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	Attempts     int    `json:"attempts"`
	Signature    string `json:"signature,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

// CountResult summarizes a count pass.
type CountResult struct {
	Poll      string `json:"poll"`
	Submitted int    `json:"submitted"`
	Failed    int    `json:"failed"`
	Tally     Tally  `json:"tally"`
}

// RequeueResult is the number of failed votes moved back to pending.
type RequeueResult struct {
	Requeued int `json:"requeued"`
}
