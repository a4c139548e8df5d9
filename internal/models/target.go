package models

import (
	"encoding/json"
	"strconv"
)

// UserMetadata holds the string-valued metadata stored on a target user.
type UserMetadata struct {
	BlockedByAdminAt string `json:"blocked_by_admin_at"`
}

// UserUpsertRequest is the body of the target's create and update user calls.
type UserUpsertRequest struct {
	UserID                  string        `json:"user_id"`
	Nickname                string        `json:"nickname"`
	ProfileURL              *string       `json:"profile_url"`
	IssueAccessToken        *bool         `json:"issue_access_token,omitempty"`
	IssueSessionToken       *bool         `json:"issue_session_token,omitempty"`
	SessionTokenExpiresAt   *int64        `json:"session_token_expires_at,omitempty"`
	DiscoveryKeys           []string      `json:"discovery_keys,omitempty"`
	IsActive                *bool         `json:"is_active,omitempty"`
	LastSeenAt              *int64        `json:"last_seen_at,omitempty"`
	PreferredLanguages      []string      `json:"preferred_languages,omitempty"`
	LeaveAllWhenDeactivated *bool         `json:"leave_all_when_deactivated,omitempty"`
	Metadata                *UserMetadata `json:"metadata,omitempty"`
}

// SessionToken is a session token issued by the target for a user.
type SessionToken struct {
	Token     string `json:"session_token"`
	ExpiresAt int64  `json:"expires_at"`
}

// UserResource is a user as returned by the target platform.
type UserResource struct {
	UserID             string         `json:"user_id"`
	Nickname           string         `json:"nickname"`
	ProfileURL         string         `json:"profile_url"`
	AccessToken        string         `json:"access_token,omitempty"`
	SessionTokens      []SessionToken `json:"session_tokens,omitempty"`
	UnreadMessageCount int            `json:"unread_message_count"`
	IsOnline           bool           `json:"is_online"`
	IsActive           bool           `json:"is_active"`
	HasEverLoggedIn    bool           `json:"has_ever_logged_in"`
	CreatedAt          int64          `json:"created_at"`
	LastSeenAt         int64          `json:"last_seen_at"`
	DiscoveryKeys      []string       `json:"discovery_keys,omitempty"`
	PreferredLanguages []string       `json:"preferred_languages,omitempty"`
	Metadata           UserMetadata   `json:"metadata"`
}

// ListingData describes the marketplace listing a channel is about.
type ListingData struct {
	ID    int    `json:"id"`
	Title string `json:"title,omitempty"`
	State int    `json:"state"`
}

// DeletedBy records a member that hid the channel.
type DeletedBy struct {
	UserID    int   `json:"user_id"`
	DeletedAt int64 `json:"deleted_at"`
}

// ChannelData is carried in the channel's free-form data string.
type ChannelData struct {
	IsListingBlocked bool         `json:"is_listing_blocked"`
	ChannelDeletedBy []DeletedBy  `json:"channel_deleted_by,omitempty"`
	Listing          *ListingData `json:"listing,omitempty"`
}

// Encode serialises d into the string form the target stores.
func (d ChannelData) Encode() string {
	b, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(b)
}

// DecodeChannelData parses the data string of a channel. Blank or malformed input yields the zero value.
func DecodeChannelData(s string) ChannelData {
	var d ChannelData
	if s == "" {
		return d
	}
	_ = json.Unmarshal([]byte(s), &d)
	return d
}

// ChannelUpsertRequest is the body of the target's create and update group channel calls.
type ChannelUpsertRequest struct {
	UserIDs    []int  `json:"user_ids"`
	ChannelURL string `json:"channel_url"`
	Name       string `json:"name"`
	CoverURL   string `json:"cover_url,omitempty"`
	Data       string `json:"data,omitempty"`
	Freeze     bool   `json:"freeze"`
	CreatedBy  int    `json:"created_by,omitempty"`
}

// ChannelResource is a group channel as returned by the target platform.
type ChannelResource struct {
	Name               string `json:"name"`
	ChannelURL         string `json:"channel_url"`
	CoverURL           string `json:"cover_url"`
	Data               string `json:"data"`
	MemberCount        int    `json:"member_count"`
	JoinedMemberCount  int    `json:"joined_member_count"`
	Freeze             bool   `json:"freeze"`
	UnreadMessageCount int    `json:"unread_message_count"`
	MaxLengthMessage   int    `json:"max_length_message"`
	CreatedAt          int64  `json:"created_at"`
}

// ChannelMetadata holds the listing identifiers stored as channel metadata. All values are strings on the target.
type ChannelMetadata struct {
	ListingID string `json:"listing_id"`
	BuyerID   string `json:"buyer_id"`
	SellerID  string `json:"seller_id"`
}

// NewChannelMetadata builds the metadata of a channel from its source attributes.
func NewChannelMetadata(a ChannelAttributes) ChannelMetadata {
	return ChannelMetadata{
		ListingID: strconv.Itoa(a.ListingID),
		BuyerID:   strconv.Itoa(a.BuyerID),
		SellerID:  strconv.Itoa(a.SellerID),
	}
}
