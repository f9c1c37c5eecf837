package models

// TableSession is the storage table for sessions.
const TableSession = "session"

// SessionMode distinguishes what kind of interaction a session carries.
type SessionMode string

const (
	SessionModeChat          SessionMode = "chat"
	SessionModeWorkflow      SessionMode = "workflow"
	SessionModeEval          SessionMode = "eval"
	SessionModeContentUpload SessionMode = "content_upload"
	SessionModeCheckpoint    SessionMode = "checkpoint"
)

// Session is a conversation thread. Created lazily on first write and only
// ever soft-deleted. Metadata accumulates breadcrumbs from every subsystem
// that touches the session (uploads, compaction, moment builds).
type Session struct {
	Base

	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	Agent       string      `json:"agent,omitempty"`
	Mode        SessionMode `json:"mode,omitempty"`
	TotalTokens int         `json:"total_tokens"`
}

// Table implements Record.
func (Session) Table() string { return TableSession }

// LatestMomentID returns the session's most recent moment reference, if the
// builder has recorded one.
func (s *Session) LatestMomentID() string {
	return s.Metadata.String(MetaLatestMomentID)
}

// MomentCount returns how many moments have been built for this session.
func (s *Session) MomentCount() int {
	n, _ := s.Metadata.Int(MetaMomentCount)
	return n
}
