package domain

import "time"

// Profile is the public card a user maintains about themselves.
type Profile struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Image     *string   `json:"image,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileCommandKind tells the store whether to insert or patch.
type ProfileCommandKind int

const (
	ProfileCreate ProfileCommandKind = iota + 1
	ProfilePatch
)

// ProfileCommand is the write decided after looking a profile up.
// For ProfilePatch only the non-nil fields change.
type ProfileCommand struct {
	Kind   ProfileCommandKind
	UserID string
	Name   *string
	Role   *string
	Image  *string
}

// PlanProfileWrite turns an optional existing profile and the requested field
// values into an explicit create or patch command. Unset fields default to "".
func PlanProfileWrite(existing *Profile, userID string, name, role, image *string) ProfileCommand {
	if existing != nil {
		return ProfileCommand{Kind: ProfilePatch, UserID: userID, Name: name, Role: role, Image: image}
	}
	empty := ""
	cmd := ProfileCommand{Kind: ProfileCreate, UserID: userID, Name: &empty, Role: &empty, Image: image}
	if name != nil {
		cmd.Name = name
	}
	if role != nil {
		cmd.Role = role
	}
	return cmd
}

// Apply returns a copy of p with the command's fields written onto it.
func (c ProfileCommand) Apply(p Profile) Profile {
	if c.Name != nil {
		p.Name = *c.Name
	}
	if c.Role != nil {
		p.Role = *c.Role
	}
	if c.Image != nil {
		img := *c.Image
		p.Image = &img
	}
	return p
}
