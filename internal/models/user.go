package models

// TableUser is the storage table for users.
const TableUser = "user"

// User is an owner scope for sessions, messages and moments. Email is the
// natural key, so re-upserting the same address is idempotent; it is
// encrypted deterministically so equality lookup still works.
type User struct {
	Base

	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Table implements Record.
func (User) Table() string { return TableUser }
