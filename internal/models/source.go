package models

import (
	"slices"
	"time"
)

// SourceUser is a user read from the source chat service.
type SourceUser struct {
	ID              string         `json:"id"`
	FriendlyName    string         `json:"friendly_name"`
	ProfileImageURL string         `json:"profile_image_url,omitempty"`
	DateCreated     *time.Time     `json:"date_created,omitempty"`
	DateUpdated     *time.Time     `json:"date_updated,omitempty"`
	Attributes      UserAttributes `json:"attributes"`
}

// UserAttributes is the decoded attributes blob of a [SourceUser].
type UserAttributes struct {
	BlockedByAdminAt *time.Time `json:"blocked_by_admin_at,omitempty"`
	BlockedUsers     []int      `json:"blocked_users,omitempty"`
}

// Clone returns a copy of u that shares no mutable state with it.
func (u SourceUser) Clone() SourceUser {
	c := u
	c.DateCreated = cloneTime(u.DateCreated)
	c.DateUpdated = cloneTime(u.DateUpdated)
	c.Attributes.BlockedByAdminAt = cloneTime(u.Attributes.BlockedByAdminAt)
	c.Attributes.BlockedUsers = slices.Clone(u.Attributes.BlockedUsers)
	return c
}

// SourceChannel is a private channel read from the source chat service.
//
// UniqueName has the shape "<prefix>-<memberID>-<memberID>".
type SourceChannel struct {
	SID          string            `json:"sid"`
	UniqueName   string            `json:"unique_name"`
	FriendlyName string            `json:"friendly_name"`
	MembersCount int               `json:"members_count"`
	DateCreated  *time.Time        `json:"date_created,omitempty"`
	DateUpdated  *time.Time        `json:"date_updated,omitempty"`
	Attributes   ChannelAttributes `json:"attributes"`
}

// ChannelAttributes is the decoded attributes blob of a [SourceChannel].
type ChannelAttributes struct {
	ListingID        int    `json:"listing_id"`
	BuyerID          int    `json:"buyer_id"`
	SellerID         int    `json:"seller_id"`
	ListingTitle     string `json:"listing_title,omitempty"`
	ListingState     int    `json:"listing_state,omitempty"`
	IsListingBlocked bool   `json:"is_listing_blocked,omitempty"`
	IsFrozen         bool   `json:"is_frozen,omitempty"`
}

// Consistent reports whether the channel references at least one listing, buyer or seller.
func (a ChannelAttributes) Consistent() bool {
	return a.ListingID != 0 || a.BuyerID != 0 || a.SellerID != 0
}

// UserChannelRef associates a user with one of their channels. It must be re-fetched as a [SourceChannel].
type UserChannelRef struct {
	UserID     string `json:"user_id"`
	ChannelSID string `json:"channel_sid"`
}

// Member is a channel member as reported by the live member listing.
type Member struct {
	Identity string `json:"identity"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
