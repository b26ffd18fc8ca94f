package domain

import (
	"encoding/json"
	"time"
)

type SyncAction string

const (
	SyncActionCreate SyncAction = "create"
	SyncActionUpdate SyncAction = "update"
	SyncActionDelete SyncAction = "delete"
)

type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusProcessing SyncStatus = "processing"
	SyncStatusCompleted  SyncStatus = "completed"
	SyncStatusFailed     SyncStatus = "failed"
)

const (
	SyncTableProducts       = "products"
	SyncTableSales          = "sales"
	SyncTableStockMovements = "stock_movements"
	SyncTableDebts          = "debts"
)

// SyncMaxAttempts bounds how often a failed queue item may be retried.
const SyncMaxAttempts = 3

// SyncQueueItem tracks one offline change through the reconciler state
// machine: pending -> processing -> completed | failed.
type SyncQueueItem struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	StoreID         string          `json:"store_id"`
	Action          SyncAction      `json:"action"`
	TableName       string          `json:"table_name"`
	RecordID        string          `json:"record_id"`
	Data            json.RawMessage `json:"data,omitempty"`
	ClientTimestamp time.Time       `json:"client_timestamp"`
	Status          SyncStatus      `json:"status"`
	Attempts        int             `json:"attempts"`
	MaxAttempts     int             `json:"max_attempts"`
	LastError       string          `json:"last_error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type SyncItem struct {
	ID              string          `json:"id"`
	Action          SyncAction      `json:"action"`
	TableName       string          `json:"table_name"`
	RecordID        string          `json:"record_id"`
	Data            json.RawMessage `json:"data,omitempty"`
	ClientTimestamp time.Time       `json:"client_timestamp"`
}

type SyncPushRequest struct {
	Items []SyncItem `json:"items"`
}

type SyncResult struct {
	ItemID   string          `json:"item_id"`
	RecordID string          `json:"record_id"`
	Status   SyncStatus      `json:"status"`
	Error    string          `json:"error,omitempty"`
	Applied  json.RawMessage `json:"applied,omitempty"`
}

type SyncPushResponse struct {
	Results []SyncResult `json:"results"`
}

type SyncChange struct {
	TableName string          `json:"table_name"`
	Action    SyncAction      `json:"action"`
	RecordID  string          `json:"record_id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Timestamp and LastID together form the checkpoint for the next pull;
// several rows can share one updated_at, so the record id breaks the tie.
type SyncPullResponse struct {
	Changes   []SyncChange `json:"changes"`
	Timestamp time.Time    `json:"timestamp"`
	LastID    string       `json:"last_id,omitempty"`
	HasMore   bool         `json:"has_more"`
}
