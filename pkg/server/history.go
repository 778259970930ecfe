package server

import (
	"sync"
	"time"
)

// DefaultTransferHistory is the number of transfers remembered when none is configured.
const DefaultTransferHistory = 64

// TransferRecord describes one answered TCP transfer.
type TransferRecord struct {
	ConnID       string    `json:"conn_id"`
	Client       string    `json:"client"`
	QType        string    `json:"qtype"`
	ClientSerial uint32    `json:"client_serial,omitempty"`
	Serial       uint32    `json:"serial"`
	Full         bool      `json:"full"`
	Records      int       `json:"records"`
	Time         time.Time `json:"time"`
}

// history is a fixed-size ring of the most recent transfers.
type history struct {
	mu      sync.Mutex
	records []TransferRecord
	next    int
	full    bool
}

// newHistory remembers up to size transfers; zero or less disables it.
func newHistory(size int) *history {
	return &history{
		records: make([]TransferRecord, max(size, 0)),
	}
}

func (h *history) add(rec TransferRecord) {
	if len(h.records) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.records[h.next] = rec
	h.next = (h.next + 1) % len(h.records)
	if h.next == 0 {
		h.full = true
	}
}

// list returns the remembered transfers, oldest first.
func (h *history) list() []TransferRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		return append([]TransferRecord(nil), h.records[:h.next]...)
	}

	out := make([]TransferRecord, 0, len(h.records))
	out = append(out, h.records[h.next:]...)
	out = append(out, h.records[:h.next]...)

	return out
}
