package models

import "time"

// DetectionRecord is created by the backend for a successful submission.
// The client only caches and displays it.
type DetectionRecord struct {
	ID        int64           `json:"id"`
	Subject   SubjectMetadata `json:"subject"`
	Scores    OceanScores     `json:"scores"`
	ImagePath string          `json:"image_path,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	OwnerID   int64           `json:"owner_id"`
	Owner     *UserRef        `json:"owner,omitempty"`
}

type UserRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is the authenticated principal of a session.
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	IsAdmin   bool   `json:"is_admin"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Privileged reports whether the user may read admin-wide aggregates.
func (u *User) Privileged() bool {
	return u != nil && (u.IsAdmin || u.Role == RoleAdmin)
}
