package domain

import "time"

// TopicTeams is the live topic for the team list and leaderboard.
const TopicTeams = "teams"

// Event kinds published after successful mutations.
const (
	EventTeamCreated    = "team_created"
	EventTeamUpdated    = "team_updated"
	EventMemberJoined   = "member_joined"
	EventMemberLeft     = "member_left"
	EventVoteCast       = "vote_cast"
	EventCommentAdded   = "comment_added"
	EventProfileUpdated = "profile_updated"
)

// Event tells subscribers of Topic that the result of their query may have changed.
type Event struct {
	Topic  string    `json:"topic"`
	Kind   string    `json:"kind"`
	TeamID string    `json:"team_id,omitempty"`
	UserID string    `json:"user_id,omitempty"`
	At     time.Time `json:"at"`
}

// EventPublisher delivers events to live subscribers.
type EventPublisher interface {
	Publish(event Event)
}

// TeamTopic is the live topic for one team's record and member list.
func TeamTopic(teamID string) string {
	return "team:" + teamID
}

// TeamCommentsTopic is the live topic for one team's comment feed.
func TeamCommentsTopic(teamID string) string {
	return "team:" + teamID + ":comments"
}

// ProfileTopic is the live topic for one user's profile.
func ProfileTopic(userID string) string {
	return "profile:" + userID
}
