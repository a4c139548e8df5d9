// Source chat service client (Twilio Programmable Chat v2 REST API)
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/shared"
)

const (
	sourceBaseURL         = "https://chat.twilio.com/v2"
	sourceDefaultPageSize = 50
)

type sourceMeta struct {
	Page        int     `json:"page"`
	PageSize    int     `json:"page_size"`
	NextPageURL *string `json:"next_page_url"`
}

type sourceUser struct {
	SID          string     `json:"sid"`
	Identity     string     `json:"identity"`
	FriendlyName string     `json:"friendly_name"`
	Attributes   string     `json:"attributes"`
	DateCreated  *time.Time `json:"date_created"`
	DateUpdated  *time.Time `json:"date_updated"`
}

type sourceUserAttributes struct {
	BlockedByAdminAt *time.Time `json:"blocked_by_admin_at"`
	BlockedUsers     []int      `json:"blocked_users"`
	ProfileImageURL  string     `json:"profile_image_url"`
}

type sourceChannel struct {
	SID          string     `json:"sid"`
	UniqueName   string     `json:"unique_name"`
	FriendlyName string     `json:"friendly_name"`
	MembersCount int        `json:"members_count"`
	Attributes   string     `json:"attributes"`
	DateCreated  *time.Time `json:"date_created"`
	DateUpdated  *time.Time `json:"date_updated"`
}

type sourceUserChannel struct {
	ChannelSID string `json:"channel_sid"`
	UserSID    string `json:"user_sid"`
	MemberSID  string `json:"member_sid"`
}

type sourceMember struct {
	SID      string `json:"sid"`
	Identity string `json:"identity"`
}

type sourceError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

type sourcePage struct {
	Meta     sourceMeta      `json:"meta"`
	Users    []sourceUser    `json:"users"`
	Channels json.RawMessage `json:"channels"`
	Members  []sourceMember  `json:"members"`
}

// toModel converts the wire user, decoding the attributes string. Malformed attributes yield empty attributes.
func (u sourceUser) toModel() models.SourceUser {
	var attrs sourceUserAttributes
	if u.Attributes != "" {
		_ = json.Unmarshal([]byte(u.Attributes), &attrs)
	}

	return models.SourceUser{
		ID:              u.Identity,
		FriendlyName:    u.FriendlyName,
		ProfileImageURL: attrs.ProfileImageURL,
		DateCreated:     u.DateCreated,
		DateUpdated:     u.DateUpdated,
		Attributes: models.UserAttributes{
			BlockedByAdminAt: attrs.BlockedByAdminAt,
			BlockedUsers:     attrs.BlockedUsers,
		},
	}
}

func (c sourceChannel) toModel() models.SourceChannel {
	var attrs models.ChannelAttributes
	if c.Attributes != "" {
		_ = json.Unmarshal([]byte(c.Attributes), &attrs)
	}

	return models.SourceChannel{
		SID:          c.SID,
		UniqueName:   c.UniqueName,
		FriendlyName: c.FriendlyName,
		MembersCount: c.MembersCount,
		DateCreated:  c.DateCreated,
		DateUpdated:  c.DateUpdated,
		Attributes:   attrs,
	}
}

// SourceClient implements [SourceReader] for the source chat service.
type SourceClient struct {
	api      *APIService
	pageSize int
	logger   *log.Logger
}

// NewSourceClient creates a [SourceClient] scoped to the configured chat service.
func NewSourceClient(cfg shared.SourceConfig, client *http.Client, logger *log.Logger) *SourceClient {
	base := cfg.BaseURL
	if base == "" {
		base = sourceBaseURL
	}
	base = strings.TrimRight(base, "/") + "/Services/" + url.PathEscape(cfg.ChatServiceSID)

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = sourceDefaultPageSize
	}

	accountSID, authToken := cfg.AccountSID, cfg.AuthToken
	api := NewAPIService(APIOptions{
		BaseURL:    base,
		HTTPClient: client,
		RateLimit:  cfg.RateLimit,
		Authorize:  func(r *http.Request) { r.SetBasicAuth(accountSID, authToken) },
		Logger:     logger,
	})

	return &SourceClient{api: api, pageSize: pageSize, logger: api.logger}
}

// sourceStatus maps a non-2xx source response to the status reported to callers.
func sourceStatus(status int) int {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return http.StatusUnauthorized
	case 0:
		return http.StatusInternalServerError
	default:
		return status
	}
}

// get performs a GET and decodes the body into out on success.
func (s *SourceClient) get(ctx context.Context, path string, query url.Values, out any) (int, string) {
	resp, err := s.api.Get(ctx, path, query)
	if err != nil {
		return transportStatus(err), err.Error()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e sourceError
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if resp.Decode(&e) == nil && e.Message != "" {
			msg = fmt.Sprintf("%s (code %d)", e.Message, e.Code)
		}
		return sourceStatus(resp.StatusCode), msg
	}

	if err := resp.Decode(out); err != nil {
		return http.StatusInternalServerError, err.Error()
	}
	return resp.StatusCode, ""
}

// validUserID reports whether id is a positive integer.
func validUserID(id string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	return err == nil && n > 0
}

// FetchUser retrieves a single user by identity. Identities that are not positive integers are rejected
// with 400 without calling the service.
func (s *SourceClient) FetchUser(ctx context.Context, id string) Result[models.SourceUser] {
	if !validUserID(id) {
		return Fail[models.SourceUser](http.StatusBadRequest, "invalid user id %q", id)
	}

	var u sourceUser
	status, msg := s.get(ctx, "Users/"+url.PathEscape(id), nil, &u)
	if msg != "" {
		return Fail[models.SourceUser](status, "failed to fetch user %s: %s", id, msg)
	}
	return Ok(status, u.toModel())
}

// FetchChannel retrieves a single channel by SID or unique name.
func (s *SourceClient) FetchChannel(ctx context.Context, id string) Result[models.SourceChannel] {
	if strings.TrimSpace(id) == "" {
		return Fail[models.SourceChannel](http.StatusBadRequest, "channel identifier is blank")
	}

	var c sourceChannel
	status, msg := s.get(ctx, "Channels/"+url.PathEscape(id), nil, &c)
	if msg != "" {
		return Fail[models.SourceChannel](status, "failed to fetch channel %s: %s", id, msg)
	}
	return Ok(status, c.toModel())
}

// ListChannelMembers retrieves every member of a channel.
func (s *SourceClient) ListChannelMembers(ctx context.Context, channelID string) Result[[]models.Member] {
	var members []models.Member
	path := "Channels/" + url.PathEscape(channelID) + "/Members"
	query := url.Values{"PageSize": {strconv.Itoa(s.pageSize)}}

	for path != "" {
		var page sourcePage
		status, msg := s.get(ctx, path, query, &page)
		if msg != "" {
			return Fail[[]models.Member](status, "failed to list members of %s: %s", channelID, msg)
		}

		for _, m := range page.Members {
			members = append(members, models.Member{Identity: m.Identity})
		}
		path, query = nextPage(page.Meta)
	}
	return Ok(http.StatusOK, members)
}

// ListUsers streams users of the chat service.
func (s *SourceClient) ListUsers(ctx context.Context, pageSize, limit int) iter.Seq2[models.SourceUser, error] {
	return paginate(ctx, s, "Users", s.query(pageSize, nil), limit, func(p sourcePage) ([]models.SourceUser, error) {
		users := make([]models.SourceUser, 0, len(p.Users))
		for _, u := range p.Users {
			users = append(users, u.toModel())
		}
		return users, nil
	})
}

// ListChannels streams private channels of the chat service.
func (s *SourceClient) ListChannels(ctx context.Context, pageSize, limit int) iter.Seq2[models.SourceChannel, error] {
	query := s.query(pageSize, url.Values{"Type": {"private"}})
	return paginate(ctx, s, "Channels", query, limit, func(p sourcePage) ([]models.SourceChannel, error) {
		var raw []sourceChannel
		if len(p.Channels) > 0 {
			if err := json.Unmarshal(p.Channels, &raw); err != nil {
				return nil, goerr.Wrap(err, "failed to decode channel page")
			}
		}

		channels := make([]models.SourceChannel, 0, len(raw))
		for _, c := range raw {
			channels = append(channels, c.toModel())
		}
		return channels, nil
	})
}

// ListUserChannels streams the channel references of a user.
func (s *SourceClient) ListUserChannels(ctx context.Context, userID string, pageSize, limit int) iter.Seq2[models.UserChannelRef, error] {
	path := "Users/" + url.PathEscape(userID) + "/Channels"
	return paginate(ctx, s, path, s.query(pageSize, nil), limit, func(p sourcePage) ([]models.UserChannelRef, error) {
		var raw []sourceUserChannel
		if len(p.Channels) > 0 {
			if err := json.Unmarshal(p.Channels, &raw); err != nil {
				return nil, goerr.Wrap(err, "failed to decode user channel page", goerr.V("user_id", userID))
			}
		}

		refs := make([]models.UserChannelRef, 0, len(raw))
		for _, c := range raw {
			refs = append(refs, models.UserChannelRef{UserID: userID, ChannelSID: c.ChannelSID})
		}
		return refs, nil
	})
}

func (s *SourceClient) query(pageSize int, extra url.Values) url.Values {
	if pageSize <= 0 {
		pageSize = s.pageSize
	}

	q := url.Values{"PageSize": {strconv.Itoa(pageSize)}}
	for k, v := range extra {
		q[k] = v
	}
	return q
}

// nextPage returns the absolute URL of the next page, or "" on the last page.
func nextPage(meta sourceMeta) (string, url.Values) {
	if meta.NextPageURL == nil || *meta.NextPageURL == "" {
		return "", nil
	}
	return *meta.NextPageURL, nil
}

// paginate walks pages starting at path and yields decoded items until the listing ends,
// limit items were produced (when limit > 0), or an error occurs.
func paginate[T any](ctx context.Context, s *SourceClient, path string, query url.Values, limit int, decode func(sourcePage) ([]T, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		produced := 0

		for path != "" {
			var page sourcePage
			status, msg := s.get(ctx, path, query, &page)
			if msg != "" {
				yield(zero, goerr.Wrap(shared.ErrAPIRequest, msg, goerr.V("path", path), goerr.V("status", status)))
				return
			}

			items, err := decode(page)
			if err != nil {
				yield(zero, err)
				return
			}

			for _, item := range items {
				if !yield(item, nil) {
					return
				}
				produced++
				if limit > 0 && produced >= limit {
					return
				}
			}
			path, query = nextPage(page.Meta)
		}
	}
}
