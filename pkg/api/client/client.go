package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the hackhub API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
		contentType = "application/json"
	}
	return c.send(ctx, method, c.baseURL+path, reader, contentType, token, v)
}

func (c *Client) send(ctx context.Context, method, endpoint string, body io.Reader, contentType, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// LoginResponse captures the token payload emitted by the API.
type LoginResponse struct {
	User   User      `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

// User reflects API user payloads.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// TokenPair includes access and refresh tokens. ExpiresIn is in seconds.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Signup registers an account and returns its first token pair.
func (c *Client) Signup(ctx context.Context, email, password string) (LoginResponse, error) {
	return c.credentials(ctx, "/auth/signup", email, password)
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	return c.credentials(ctx, "/auth/login", email, password)
}

func (c *Client) credentials(ctx context.Context, path, email, password string) (LoginResponse, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, path, body, "", &resp); err != nil {
		return LoginResponse{}, err
	}
	return resp, nil
}

// Refresh trades a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	var resp struct {
		Tokens TokenPair `json:"tokens"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refreshToken}, "", &resp); err != nil {
		return TokenPair{}, err
	}
	return resp.Tokens, nil
}

// Profile is a participant's public card.
type Profile struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Image     *string   `json:"image"`
	ImageURL  string    `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetProfile returns the profile of userID, or the caller's when userID is
// empty. A nil profile means none exists yet.
func (c *Client) GetProfile(ctx context.Context, token, userID string) (*Profile, error) {
	path := "/profile"
	if userID != "" {
		path += "?user_id=" + url.QueryEscape(userID)
	}
	var p *Profile
	if err := c.do(ctx, http.MethodGet, path, nil, token, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProfile sets the caller's name and role.
func (c *Client) UpdateProfile(ctx context.Context, token, name, role string) (Profile, error) {
	var p Profile
	body := map[string]string{"name": name, "role": role}
	if err := c.do(ctx, http.MethodPut, "/profile", body, token, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// UploadTarget is a single-use upload location.
type UploadTarget struct {
	URL       string    `json:"url"`
	Token     string    `json:"token"`
	StorageID string    `json:"storage_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RequestUploadTarget asks the API for an avatar upload target.
func (c *Client) RequestUploadTarget(ctx context.Context, token string) (UploadTarget, error) {
	var target UploadTarget
	if err := c.do(ctx, http.MethodPost, "/profile/upload-target", nil, token, &target); err != nil {
		return UploadTarget{}, err
	}
	return target, nil
}

// Upload sends content to an upload target and returns the stored blob id.
func (c *Client) Upload(ctx context.Context, target UploadTarget, contentType string, content io.Reader) (string, error) {
	var resp struct {
		StorageID string `json:"storage_id"`
	}
	if err := c.send(ctx, http.MethodPost, target.URL, content, contentType, "", &resp); err != nil {
		return "", err
	}
	return resp.StorageID, nil
}

// AttachProfileImage points the caller's avatar at an uploaded blob.
func (c *Client) AttachProfileImage(ctx context.Context, token, storageID string) (Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodPut, "/profile/image", map[string]string{"storage_id": storageID}, token, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Team represents a hackathon team.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CaptainID   string    `json:"captain_id"`
	Members     []string  `json:"members"`
	Votes       int       `json:"votes"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListTeams returns the leaderboard, highest votes first.
func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	var teams []Team
	if err := c.do(ctx, http.MethodGet, "/teams", nil, "", &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// MyTeams returns the teams the caller belongs to.
func (c *Client) MyTeams(ctx context.Context, token string) ([]Team, error) {
	var teams []Team
	if err := c.do(ctx, http.MethodGet, "/teams/mine", nil, token, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// GetTeam fetches one team.
func (c *Client) GetTeam(ctx context.Context, teamID string) (Team, error) {
	var team Team
	if err := c.do(ctx, http.MethodGet, teamPath(teamID, ""), nil, "", &team); err != nil {
		return Team{}, err
	}
	return team, nil
}

// CreateTeam registers a team captained by the caller.
func (c *Client) CreateTeam(ctx context.Context, token, name, description string) (Team, error) {
	var team Team
	body := map[string]string{"name": name, "description": description}
	if err := c.do(ctx, http.MethodPost, "/teams", body, token, &team); err != nil {
		return Team{}, err
	}
	return team, nil
}

// UpdateTeam edits a team's name and description. Captain only.
func (c *Client) UpdateTeam(ctx context.Context, token, teamID, name, description string) (Team, error) {
	var team Team
	body := map[string]string{"name": name, "description": description}
	if err := c.do(ctx, http.MethodPatch, teamPath(teamID, ""), body, token, &team); err != nil {
		return Team{}, err
	}
	return team, nil
}

// JoinTeam adds the caller to a team.
func (c *Client) JoinTeam(ctx context.Context, token, teamID string) error {
	return c.do(ctx, http.MethodPost, teamPath(teamID, "join"), nil, token, nil)
}

// LeaveTeam removes the caller from a team.
func (c *Client) LeaveTeam(ctx context.Context, token, teamID string) error {
	return c.do(ctx, http.MethodPost, teamPath(teamID, "leave"), nil, token, nil)
}

// Vote adds a vote and returns the team's new total.
func (c *Client) Vote(ctx context.Context, token, teamID string) (int, error) {
	var resp struct {
		Votes int `json:"votes"`
	}
	if err := c.do(ctx, http.MethodPost, teamPath(teamID, "vote"), nil, token, &resp); err != nil {
		return 0, err
	}
	return resp.Votes, nil
}

// Member pairs a member id with their profile, nil when they have none.
type Member struct {
	UserID  string   `json:"user_id"`
	Profile *Profile `json:"profile"`
}

// Members returns a team roster in join order.
func (c *Client) Members(ctx context.Context, teamID string) ([]Member, error) {
	var members []Member
	if err := c.do(ctx, http.MethodGet, teamPath(teamID, "members"), nil, "", &members); err != nil {
		return nil, err
	}
	return members, nil
}

// Comment is one entry in a team's feed.
type Comment struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Comments returns a team's feed, empty unless the caller is a member.
func (c *Client) Comments(ctx context.Context, token, teamID string) ([]Comment, error) {
	var comments []Comment
	if err := c.do(ctx, http.MethodGet, teamPath(teamID, "comments"), nil, token, &comments); err != nil {
		return nil, err
	}
	return comments, nil
}

// AddComment posts to a team's feed.
func (c *Client) AddComment(ctx context.Context, token, teamID, content string) (Comment, error) {
	var comment Comment
	if err := c.do(ctx, http.MethodPost, teamPath(teamID, "comments"), map[string]string{"content": content}, token, &comment); err != nil {
		return Comment{}, err
	}
	return comment, nil
}

// AttachTeamImage sets a team's image to an uploaded blob. Captain only.
func (c *Client) AttachTeamImage(ctx context.Context, token, teamID, storageID string) (Team, error) {
	var team Team
	if err := c.do(ctx, http.MethodPut, teamPath(teamID, "image"), map[string]string{"storage_id": storageID}, token, &team); err != nil {
		return Team{}, err
	}
	return team, nil
}

func teamPath(teamID, action string) string {
	path := "/teams/" + url.PathEscape(teamID)
	if action != "" {
		path += "/" + action
	}
	return path
}
