package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultItem_SizeBytes(t *testing.T) {
	assert.Equal(t, int64(5), VaultItem{Content: "hello"}.SizeBytes())
	assert.Equal(t, int64(2048), VaultItem{Content: "x", Metadata: map[string]string{"size": "2048"}}.SizeBytes())
	assert.Equal(t, int64(1), VaultItem{Content: "x", Metadata: map[string]string{"size": "big"}}.SizeBytes())
}

func TestDecodeVaultItem_NumericMetadata(t *testing.T) {
	v, err := DecodeVaultItem(Row{
		"id": "v1", "owner_id": "u1", "type": "file", "title": "a.pdf",
		"content": "bag/u1/a.pdf", "metadata": map[string]any{"size": float64(1024), "mime": "application/pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1024), v.SizeBytes())
	assert.Equal(t, "application/pdf", v.Metadata["mime"])
	assert.Equal(t, SyncSynced, v.SyncState)
}

func TestDecodeVaultItem_RejectsUnknownType(t *testing.T) {
	_, err := DecodeVaultItem(Row{"id": "v1", "owner_id": "u1", "type": "hologram"})
	require.Error(t, err)
}
