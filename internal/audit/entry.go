// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"fmt"
	"time"
)

// Status is the delivery lifecycle tag on an audit entry.
type Status string

const (
	// StatusPending marks a locally committed entry awaiting delivery.
	StatusPending Status = "pending"

	// StatusSynced marks an entry acknowledged by the remote sink.
	StatusSynced Status = "synced"

	// StatusFailed marks an entry whose last delivery attempt failed.
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSynced, StatusFailed:
		return true
	}
	return false
}

// Action kinds recorded by the back office.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionLogin  = "login"
	ActionLogout = "logout"
	ActionExport = "export"
)

// Entity kinds the actions apply to.
const (
	EntityProduct  = "product"
	EntitySale     = "sale"
	EntityCustomer = "customer"
	EntitySupplier = "supplier"
	EntityUser     = "user"
	EntitySession  = "session"
	EntitySetting  = "setting"
)

// Entry is one audit record. After local commit only Status and Retries
// ever change; every other field is immutable.
type Entry struct {
	ID         string `json:"id"`
	ActorID    string `json:"actor_id"`
	ActorName  string `json:"actor_name"`
	Action     string `json:"action"`
	Entity     string `json:"entity"`
	EntityID   string `json:"entity_id,omitempty"`
	EntityName string `json:"entity_name,omitempty"`
	Detail     string `json:"detail,omitempty"`

	// Timestamp is milliseconds since epoch, from the appending
	// instance's clock. Within one instance append order is timestamp
	// order; across instances entries are only addressable by ID.
	Timestamp int64 `json:"timestamp"`

	Status  Status `json:"status"`
	Retries int    `json:"retries"`
}

// Time returns the entry timestamp as a time.Time.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// String formats the entry as a single log line.
func (e Entry) String() string {
	target := e.Entity
	if e.EntityID != "" {
		target = fmt.Sprintf("%s/%s", e.Entity, e.EntityID)
	}
	return fmt.Sprintf("%s | %s | %s | %s | %s",
		e.Time().UTC().Format("2006-01-02 15:04:05"),
		e.ActorName,
		e.Action,
		target,
		e.Status,
	)
}
