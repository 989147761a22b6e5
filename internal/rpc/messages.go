package rpc

import "playersync/internal/snapshot"

// PlayerRequest addresses one player
type PlayerRequest struct {
	PlayerUUID string `json:"player_uuid"`
}

// AmountRequest carries a balance value or delta
type AmountRequest struct {
	PlayerUUID string  `json:"player_uuid"`
	Amount     float64 `json:"amount"`
}

type TransferRequest struct {
	FromPlayerUUID string  `json:"from_player_uuid"`
	ToPlayerUUID   string  `json:"to_player_uuid"`
	Amount         float64 `json:"amount"`
}

// SnapshotRequest addresses a named snapshot. Data is the serialized slot array
// for save, update and backup.
type SnapshotRequest struct {
	PlayerUUID string `json:"player_uuid"`
	Name       string `json:"name"`
	Data       string `json:"data,omitempty"`
}

// Result is embedded in every response. Failures never surface as gRPC errors.
type Result struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Failure returns the error message of an unsuccessful call, or ""
func (r *Result) Failure() string {
	if r.Success {
		return ""
	}
	if r.ErrorMessage == "" {
		return "request failed"
	}
	return r.ErrorMessage
}

func (r *Result) fail(err error) {
	r.Success = false
	r.ErrorMessage = err.Error()
}

type StatusResponse struct {
	Result
}

type BalanceResponse struct {
	Result
	Balance float64 `json:"balance"`
}

type SnapshotResponse struct {
	Result
	Name string `json:"name,omitempty"`
	Data string `json:"data,omitempty"`
}

type ListResponse struct {
	Result
	Names []string `json:"names"`
}

type DeleteAllResponse struct {
	Result
	Deleted int `json:"deleted"`
}

type InfoResponse struct {
	Result
	Info *snapshot.Info `json:"info,omitempty"`
}

type HealthRequest struct{}

type HealthResponse struct {
	Status string `json:"status"`
}
