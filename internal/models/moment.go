package models

import "time"

// TableMoment is the storage table for moments.
const TableMoment = "moment"

// MomentType classifies what a moment summarizes.
type MomentType string

const (
	// MomentSessionChunk summarizes a contiguous span of session messages.
	// Successive session_chunk moments form a backward-linked chain.
	MomentSessionChunk MomentType = "session_chunk"
	MomentUpload       MomentType = "upload"
	MomentReminder     MomentType = "reminder"
	MomentMeeting      MomentType = "meeting"
	MomentCheckpoint   MomentType = "checkpoint"
	MomentUserNote     MomentType = "user_note"
)

// Moment is a derived checkpoint: a compacted semantic summary of a span of
// messages or of an external event. Within one session, session_chunk
// moments chain backwards through PreviousMomentKeys (always zero or one
// entry; the list shape is kept for the wire format, not for forked chains).
// Never mutated after creation except by explicit user edit of user-authored
// types, or soft delete.
type Moment struct {
	Base

	Name               string     `json:"name"`
	Summary            string     `json:"summary"`
	MomentType         MomentType `json:"moment_type"`
	SourceSessionID    *string    `json:"source_session_id,omitempty"`
	StartsTimestamp    *time.Time `json:"starts_timestamp,omitempty"`
	EndsTimestamp      *time.Time `json:"ends_timestamp,omitempty"`
	PreviousMomentKeys []string   `json:"previous_moment_keys,omitempty"`
}

// Table implements Record.
func (Moment) Table() string { return TableMoment }

// ChunkIndex returns the moment's position in its session chain, or -1 when
// the moment is not a session chunk.
func (m *Moment) ChunkIndex() int {
	if n, ok := m.Metadata.Int(MetaChunkIndex); ok {
		return n
	}
	return -1
}
