package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// VaultItemType classifies bag items.
type VaultItemType string

const (
	VaultNote    VaultItemType = "note"
	VaultImage   VaultItemType = "image"
	VaultVideo   VaultItemType = "video"
	VaultAudio   VaultItemType = "audio"
	VaultLink    VaultItemType = "link"
	VaultFile    VaultItemType = "file"
	VaultMessage VaultItemType = "message"
)

func (t VaultItemType) Valid() bool {
	switch t {
	case VaultNote, VaultImage, VaultVideo, VaultAudio, VaultLink, VaultFile, VaultMessage:
		return true
	}
	return false
}

// VaultItem is a private bag entry.
type VaultItem struct {
	ID        string            `json:"id"`
	OwnerID   string            `json:"owner_id"`
	Type      VaultItemType     `json:"type"`
	Title     string            `json:"title"`
	Category  string            `json:"category,omitempty"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at,omitempty"`
	SyncState SyncState         `json:"sync_state,omitempty"`
}

// SizeBytes is metadata["size"] when present and numeric, else the content
// length.
func (v VaultItem) SizeBytes() int64 {
	if s, ok := v.Metadata["size"]; ok {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	return int64(len(v.Content))
}

func DecodeVaultItem(row Row) (VaultItem, error) {
	// metadata may arrive as a JSON object with numeric values.
	if raw, ok := row["metadata"].(map[string]any); ok {
		md := make(map[string]string, len(raw))
		for k, val := range raw {
			switch x := val.(type) {
			case string:
				md[k] = x
			case float64:
				md[k] = strconv.FormatInt(int64(x), 10)
			default:
				b, _ := json.Marshal(x)
				md[k] = string(b)
			}
		}
		row = row.Merge(Row{"metadata": md})
	}

	var v VaultItem
	if err := row.decodeInto(&v); err != nil {
		return VaultItem{}, fmt.Errorf("decode vault item: %w", err)
	}
	switch {
	case v.ID == "":
		return VaultItem{}, fmt.Errorf("decode vault item: %w", errMissing("id"))
	case v.OwnerID == "":
		return VaultItem{}, fmt.Errorf("decode vault item %s: %w", v.ID, errMissing("owner_id"))
	case !v.Type.Valid():
		return VaultItem{}, fmt.Errorf("decode vault item %s: unknown type %q", v.ID, v.Type)
	}
	if v.SyncState == "" {
		v.SyncState = SyncSynced
	}
	return v, nil
}

// Row returns the remote insert payload. The local sync state is not sent.
func (v VaultItem) Row() Row {
	row := Row{
		"id":         v.ID,
		"owner_id":   v.OwnerID,
		"type":       string(v.Type),
		"title":      v.Title,
		"content":    v.Content,
		"created_at": v.CreatedAt,
	}
	if v.Category != "" {
		row["category"] = v.Category
	}
	if len(v.Metadata) > 0 {
		row["metadata"] = v.Metadata
	}
	if !v.UpdatedAt.IsZero() {
		row["updated_at"] = v.UpdatedAt
	}
	return row
}
