package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHistory_Wraps(t *testing.T) {
	h := newHistory(3)
	assert.Empty(t, h.list())

	for i := uint32(1); i <= 5; i++ {
		h.add(TransferRecord{Serial: i})
	}

	got := h.list()
	assert.Len(t, got, 3)
	assert.Equal(t, uint32(3), got[0].Serial)
	assert.Equal(t, uint32(5), got[2].Serial)
}

func TestHistory_Disabled(t *testing.T) {
	h := newHistory(0)
	h.add(TransferRecord{Serial: 1})

	assert.Empty(t, h.list())
}

func TestHistory_NegativeSizeDisables(t *testing.T) {
	h := newHistory(-1)
	h.add(TransferRecord{Serial: 1})

	assert.Empty(t, h.list())
}
