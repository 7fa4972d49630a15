package models

type AutopayState string

const (
	AutopayStopped AutopayState = "stopped"
	AutopayRunning AutopayState = "running"
	AutopayPaused  AutopayState = "paused"
)

type TransferStatus string

const (
	TransferNone    TransferStatus = ""
	TransferPending TransferStatus = "PENDING"
	TransferSuccess TransferStatus = "SUCCESS"
)

type RefundIndicator struct {
	Amount    string `json:"amount"`
	Recipient string `json:"recipient,omitempty"`
}

type SyncStatus struct {
	Deposit   TransferStatus   `json:"deposit"`
	Withdraw  TransferStatus   `json:"withdraw"`
	HasRefund *RefundIndicator `json:"hasRefund"`
}

type HistoryEntry struct {
	Text string
}

func (h HistoryEntry) MarshalText() ([]byte, error) {
	return []byte(h.Text), nil
}

// Snapshot published on the control plane
type Status struct {
	Address       string         `json:"address"`
	Balance       string         `json:"balance"`
	TxHistory     []HistoryEntry `json:"txHistory"`
	HubCollateral string         `json:"hubCollateral"`
	Status        AutopayState   `json:"status"`
	Sync          SyncStatus     `json:"sync"`
}
