package roomprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tutorhub/backend/internal/models"
)

// Daily provisions rooms through the Daily.co REST API.
type Daily struct {
	APIKey   string
	BaseURL  string
	TokenTTL time.Duration
	HTTP     *http.Client
	Now      func() time.Time
}

func NewDaily(apiKey, baseURL string, ttl time.Duration) *Daily {
	return &Daily{
		APIKey:   apiKey,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		TokenTTL: ttl,
		HTTP:     &http.Client{Timeout: 10 * time.Second},
		Now:      time.Now,
	}
}

type dailyRoomProperties struct {
	MaxParticipants int    `json:"max_participants,omitempty"`
	EnableChat      bool   `json:"enable_chat"`
	EnableRecording string `json:"enable_recording,omitempty"`
	NotBefore       int64  `json:"nbf,omitempty"`
}

type dailyRoomRequest struct {
	Privacy    string              `json:"privacy"`
	Properties dailyRoomProperties `json:"properties"`
}

type dailyRoomResponse struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type dailyTokenProperties struct {
	RoomName string `json:"room_name"`
	UserID   string `json:"user_id"`
	IsOwner  bool   `json:"is_owner"`
	Exp      int64  `json:"exp"`
}

type dailyTokenRequest struct {
	Properties dailyTokenProperties `json:"properties"`
}

type dailyTokenResponse struct {
	Token string `json:"token"`
}

func (d *Daily) ProvisionRoom(ctx context.Context, req RoomRequest) (RoomHandle, error) {
	body := dailyRoomRequest{
		Privacy: "private",
		Properties: dailyRoomProperties{
			MaxParticipants: req.MaxParticipants,
			EnableChat:      req.EnableChat,
		},
	}
	if req.EnableRecording {
		body.Properties.EnableRecording = "cloud"
	}
	if req.NotBefore != nil {
		body.Properties.NotBefore = req.NotBefore.Unix()
	}

	var out dailyRoomResponse
	if err := d.post(ctx, "/rooms", body, &out); err != nil {
		return RoomHandle{}, fmt.Errorf("daily: create room: %w", err)
	}
	if out.Name == "" || out.URL == "" {
		return RoomHandle{}, fmt.Errorf("daily: create room: response missing name or url")
	}
	return RoomHandle{Name: out.Name, URL: out.URL}, nil
}

func (d *Daily) MintJoinToken(ctx context.Context, room RoomHandle, userID string, role models.ParticipantRole) (Credential, error) {
	expires := d.Now().Add(d.TokenTTL)
	body := dailyTokenRequest{Properties: dailyTokenProperties{
		RoomName: room.Name,
		UserID:   userID,
		IsOwner:  role == models.RoleTeacher,
		Exp:      expires.Unix(),
	}}

	var out dailyTokenResponse
	if err := d.post(ctx, "/meeting-tokens", body, &out); err != nil {
		return Credential{}, fmt.Errorf("daily: meeting token: %w", err)
	}
	if out.Token == "" {
		return Credential{}, fmt.Errorf("daily: meeting token: empty token in response")
	}
	return Credential{Token: out.Token, ExpiresAt: expires}, nil
}

func (d *Daily) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+d.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
