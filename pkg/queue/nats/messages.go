package nats

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tunogya/elois/pkg/feature"
	"github.com/tunogya/elois/pkg/model"
	"github.com/tunogya/elois/pkg/schema"
)

// Subject constants
const (
	SubjectHistoryWrite = "elois.histories.write"
	SubjectStatsWrite   = "elois.stats.write"
)

var (
	// ErrMalformed marks a message that can never be processed; consumers terminate it
	ErrMalformed = errors.New("malformed message")
	// ErrPayloadTooLarge is returned when a message exceeds the server's max payload
	ErrPayloadTooLarge = errors.New("payload exceeds max payload")
)

// Subjects returns every subject the stream must capture
func Subjects() []string {
	return []string{SubjectHistoryWrite, SubjectStatsWrite}
}

// HistoryBatchMsg represents a batch of standardized company histories
type HistoryBatchMsg struct {
	RunID     string                 `json:"run_id"`
	Seq       int                    `json:"seq"`
	Histories []model.CompanyHistory `json:"histories"`
}

// StatsMsg carries what a preprocessing run produced besides the histories
type StatsMsg struct {
	RunID      string                     `json:"run_id"`
	Stats      model.StandardizationStats `json:"stats"`
	Currencies []schema.Currency          `json:"currencies"`
	Report     feature.Report             `json:"report"`
	// Companies is how many histories the run published
	Companies int       `json:"companies"`
	CreatedAt time.Time `json:"created_at"`
}

// Encode serializes a message to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeHistoryBatch deserializes a HistoryBatchMsg from JSON bytes
func DecodeHistoryBatch(data []byte) (*HistoryBatchMsg, error) {
	var msg HistoryBatchMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.RunID == "" {
		return nil, fmt.Errorf("%w: history batch %d has no run id", ErrMalformed, msg.Seq)
	}
	for _, h := range msg.Histories {
		for _, v := range h.Vectors {
			if len(v.Values) != len(v.Missing) {
				return nil, fmt.Errorf("%w: %w: company %s year %d", ErrMalformed, model.ErrShapeMismatch, h.CompanyID, v.Year)
			}
		}
	}
	return &msg, nil
}

// DecodeStats deserializes a StatsMsg from JSON bytes
func DecodeStats(data []byte) (*StatsMsg, error) {
	var msg StatsMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.RunID == "" {
		return nil, fmt.Errorf("%w: stats message has no run id", ErrMalformed)
	}
	return &msg, nil
}

// Batch splits histories into messages of at most maxCompanies companies whose
// encoding fits in maxBytes. maxBytes <= 0 disables the size cap. A single
// company that does not fit on its own yields ErrPayloadTooLarge.
func Batch(runID string, histories []model.CompanyHistory, maxCompanies, maxBytes int) ([]HistoryBatchMsg, error) {
	maxCompanies = max(maxCompanies, 1)

	// envelope with the widest seq any batch can carry
	envelope, err := Encode(HistoryBatchMsg{RunID: runID, Seq: len(histories), Histories: []model.CompanyHistory{}})
	if err != nil {
		return nil, err
	}

	var (
		out   []HistoryBatchMsg
		start int
		size  = len(envelope)
	)
	flush := func(end int) {
		out = append(out, HistoryBatchMsg{RunID: runID, Seq: len(out), Histories: histories[start:end]})
		start, size = end, len(envelope)
	}

	for i, h := range histories {
		n := 0
		if maxBytes > 0 {
			data, err := Encode(h)
			if err != nil {
				return nil, err
			}
			n = len(data) + 1 // separating comma
			if len(envelope)+n > maxBytes {
				return nil, fmt.Errorf("%w: company %s encodes to %d bytes, limit %d",
					ErrPayloadTooLarge, h.CompanyID, len(data), maxBytes)
			}
		}

		full := i-start == maxCompanies
		tooBig := maxBytes > 0 && size+n > maxBytes
		if i > start && (full || tooBig) {
			flush(i)
		}
		size += n
	}
	if start < len(histories) {
		flush(len(histories))
	}
	return out, nil
}
