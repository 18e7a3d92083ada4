package domain

import (
	"slices"
	"time"
)

// Team is a hackathon team competing on the leaderboard.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CaptainID   string    `json:"captain_id"`
	Members     []string  `json:"members"`
	Votes       int       `json:"votes"`
	Image       *string   `json:"image,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasMember reports whether userID is in the team's member set.
func (t Team) HasMember(userID string) bool {
	if userID == "" {
		return false
	}
	return slices.Contains(t.Members, userID)
}

// IsCaptain reports whether userID created the team.
func (t Team) IsCaptain(userID string) bool {
	return userID != "" && t.CaptainID == userID
}

// TeamMember links a user to a team.
type TeamMember struct {
	TeamID   string
	UserID   string
	JoinedAt time.Time
}

// TeamComment is a short update posted by a team member.
type TeamComment struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MemberProfile pairs a member id with their profile, which may not exist yet.
type MemberProfile struct {
	UserID  string   `json:"user_id"`
	Profile *Profile `json:"profile"`
}
