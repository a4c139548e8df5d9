// Target chat platform client (Sendbird Platform API v3)
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/shared"
)

const (
	targetBaseURLFormat   = "https://api-%s.sendbird.com/v3"
	maxPreferredLanguages = 4
	absentQueryBatch      = 100
)

// Platform error codes that map onto HTTP semantics.
const (
	targetCodeNotFound       = 400201
	targetCodeAlreadyExists  = 400202
	targetCodeBadRequestLow  = 400100
	targetCodeBadRequestHigh = 400199
)

type targetError struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type metadataEnvelope[T any] struct {
	Metadata T     `json:"metadata"`
	Upsert   *bool `json:"upsert,omitempty"`
}

type usersEnvelope struct {
	Users []models.UserResource `json:"users"`
	Next  string                `json:"next"`
}

type blockRequest struct {
	UserIDs []int `json:"user_ids"`
}

type freezeRequest struct {
	Freeze bool `json:"freeze"`
}

// TargetClient implements [TargetWriter] for the target chat platform.
type TargetClient struct {
	api    *APIService
	logger *log.Logger
}

// NewTargetClient creates a [TargetClient]. The base URL is derived from the application id unless set explicitly.
func NewTargetClient(cfg shared.TargetConfig, client *http.Client, logger *log.Logger) *TargetClient {
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf(targetBaseURLFormat, cfg.ApplicationID)
	}

	api := NewAPIService(APIOptions{
		BaseURL:    base,
		HTTPClient: client,
		RateLimit:  cfg.RateLimit,
		Headers:    http.Header{"Api-Token": {cfg.APIToken}},
		Logger:     logger,
	})
	return &TargetClient{api: api, logger: api.logger}
}

// targetStatus maps a platform error code onto the status reported to callers.
func targetStatus(code int) int {
	switch {
	case code == targetCodeNotFound:
		return http.StatusNotFound
	case code == targetCodeAlreadyExists:
		return http.StatusConflict
	case code >= targetCodeBadRequestLow && code <= targetCodeBadRequestHigh:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// call performs a request and decodes a successful body into a T.
func call[T any](ctx context.Context, t *TargetClient, method, path string, query url.Values, body any) Result[T] {
	var out T

	resp, err := t.api.Do(ctx, method, path, query, body)
	if err != nil {
		return Fail[T](transportStatus(err), "%s", err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e targetError
		if resp.Decode(&e) == nil && e.Code != 0 {
			return Fail[T](targetStatus(e.Code), "%s (code %d)", e.Message, e.Code)
		}
		return Fail[T](resp.StatusCode, "%s", http.StatusText(resp.StatusCode))
	}

	if err := resp.Decode(&out); err != nil {
		return Fail[T](http.StatusInternalServerError, "%s", err.Error())
	}
	return Ok(resp.StatusCode, out)
}

// validateUser rejects requests the platform would refuse.
func validateUser(req models.UserUpsertRequest) error {
	if !validUserID(req.UserID) {
		return fmt.Errorf("%w: user id %q must be a positive integer", shared.ErrInvalidInput, req.UserID)
	}
	if req.ProfileURL == nil {
		return fmt.Errorf("%w: profile url is required", shared.ErrInvalidInput)
	}
	if len(req.PreferredLanguages) > maxPreferredLanguages {
		return fmt.Errorf("%w: at most %d preferred languages", shared.ErrInvalidInput, maxPreferredLanguages)
	}
	return nil
}

func validateUserMetadata(userID string, meta models.UserMetadata) error {
	if !validUserID(userID) {
		return fmt.Errorf("%w: user id %q must be a positive integer", shared.ErrInvalidInput, userID)
	}
	if strings.TrimSpace(meta.BlockedByAdminAt) == "" {
		return fmt.Errorf("%w: blocked_by_admin_at is required", shared.ErrInvalidInput)
	}
	return nil
}

func validateChannelMetadata(channelURL string, meta models.ChannelMetadata) error {
	if strings.TrimSpace(channelURL) == "" {
		return fmt.Errorf("%w: channel url is required", shared.ErrInvalidInput)
	}
	if id, err := strconv.Atoi(meta.ListingID); err != nil || id <= 0 {
		return fmt.Errorf("%w: listing id %q must be a positive integer", shared.ErrInvalidInput, meta.ListingID)
	}
	return nil
}

func userPath(id string) string { return "users/" + url.PathEscape(id) }

func channelPath(channelURL string) string { return "group_channels/" + url.PathEscape(channelURL) }

// CreateUser creates a user.
func (t *TargetClient) CreateUser(ctx context.Context, req models.UserUpsertRequest) Result[models.UserResource] {
	if err := validateUser(req); err != nil {
		return Fail[models.UserResource](http.StatusBadRequest, "%s", err.Error())
	}
	return call[models.UserResource](ctx, t, http.MethodPost, "users", nil, req)
}

// UpdateUser updates an existing user; a missing user yields 404.
func (t *TargetClient) UpdateUser(ctx context.Context, req models.UserUpsertRequest) Result[models.UserResource] {
	if err := validateUser(req); err != nil {
		return Fail[models.UserResource](http.StatusBadRequest, "%s", err.Error())
	}
	return call[models.UserResource](ctx, t, http.MethodPut, userPath(req.UserID), nil, req)
}

// CreateUserMetadata creates the metadata of a user.
func (t *TargetClient) CreateUserMetadata(ctx context.Context, userID string, meta models.UserMetadata) Result[models.UserMetadata] {
	if err := validateUserMetadata(userID, meta); err != nil {
		return Fail[models.UserMetadata](http.StatusBadRequest, "%s", err.Error())
	}
	body := metadataEnvelope[models.UserMetadata]{Metadata: meta}
	return call[models.UserMetadata](ctx, t, http.MethodPost, userPath(userID)+"/metadata", nil, body)
}

// UpdateUserMetadata updates the metadata of a user without creating missing keys.
func (t *TargetClient) UpdateUserMetadata(ctx context.Context, userID string, meta models.UserMetadata) Result[models.UserMetadata] {
	if err := validateUserMetadata(userID, meta); err != nil {
		return Fail[models.UserMetadata](http.StatusBadRequest, "%s", err.Error())
	}
	upsert := false
	body := metadataEnvelope[models.UserMetadata]{Metadata: meta, Upsert: &upsert}
	return call[models.UserMetadata](ctx, t, http.MethodPut, userPath(userID)+"/metadata", nil, body)
}

// CreateChannel creates a group channel.
func (t *TargetClient) CreateChannel(ctx context.Context, req models.ChannelUpsertRequest) Result[models.ChannelResource] {
	return call[models.ChannelResource](ctx, t, http.MethodPost, "group_channels", nil, req)
}

// UpdateChannel updates a group channel identified by req.ChannelURL.
func (t *TargetClient) UpdateChannel(ctx context.Context, req models.ChannelUpsertRequest) Result[models.ChannelResource] {
	if strings.TrimSpace(req.ChannelURL) == "" {
		return Fail[models.ChannelResource](http.StatusBadRequest, "channel url is required")
	}
	return call[models.ChannelResource](ctx, t, http.MethodPut, channelPath(req.ChannelURL), nil, req)
}

// CreateChannelMetadata creates the metadata of a channel.
func (t *TargetClient) CreateChannelMetadata(ctx context.Context, channelURL string, meta models.ChannelMetadata) Result[models.ChannelMetadata] {
	if err := validateChannelMetadata(channelURL, meta); err != nil {
		return Fail[models.ChannelMetadata](http.StatusBadRequest, "%s", err.Error())
	}
	body := metadataEnvelope[models.ChannelMetadata]{Metadata: meta}
	return call[models.ChannelMetadata](ctx, t, http.MethodPost, channelPath(channelURL)+"/metadata", nil, body)
}

// UpdateChannelMetadata updates the metadata of a channel.
func (t *TargetClient) UpdateChannelMetadata(ctx context.Context, channelURL string, meta models.ChannelMetadata) Result[models.ChannelMetadata] {
	if err := validateChannelMetadata(channelURL, meta); err != nil {
		return Fail[models.ChannelMetadata](http.StatusBadRequest, "%s", err.Error())
	}
	upsert := false
	body := metadataEnvelope[models.ChannelMetadata]{Metadata: meta, Upsert: &upsert}
	return call[models.ChannelMetadata](ctx, t, http.MethodPut, channelPath(channelURL)+"/metadata", nil, body)
}

// BlockUsers makes originatorID block every user in targetIDs.
func (t *TargetClient) BlockUsers(ctx context.Context, originatorID int, targetIDs []int) Result[[]models.UserResource] {
	if originatorID <= 0 {
		return Fail[[]models.UserResource](http.StatusBadRequest, "originator id %d must be positive", originatorID)
	}

	res := call[usersEnvelope](ctx, t, http.MethodPost, userPath(strconv.Itoa(originatorID))+"/block", nil, blockRequest{UserIDs: targetIDs})
	if !res.IsSuccess() {
		return Retype[[]models.UserResource](res)
	}
	return Ok(res.StatusCode, res.Payload.Users)
}

// FreezeChannel freezes or unfreezes a channel.
func (t *TargetClient) FreezeChannel(ctx context.Context, channelURL string, freeze bool) Result[models.ChannelResource] {
	return call[models.ChannelResource](ctx, t, http.MethodPut, channelPath(channelURL)+"/freeze", nil, freezeRequest{Freeze: freeze})
}

// WhichAreAbsent queries the platform for ids in batches and returns the ones it does not know, in input order.
func (t *TargetClient) WhichAreAbsent(ctx context.Context, ids []int) Result[[]int] {
	absent := []int{}

	for batch := range slices.Chunk(ids, absentQueryBatch) {
		keys := make([]string, len(batch))
		for i, id := range batch {
			keys[i] = strconv.Itoa(id)
		}

		query := url.Values{
			"user_ids": {strings.Join(keys, ",")},
			"limit":    {strconv.Itoa(absentQueryBatch)},
		}
		res := call[usersEnvelope](ctx, t, http.MethodGet, "users", query, nil)
		if !res.IsSuccess() {
			return Retype[[]int](res)
		}

		present := make(map[string]bool, len(res.Payload.Users))
		for _, u := range res.Payload.Users {
			present[u.UserID] = true
		}
		for i, id := range batch {
			if !present[keys[i]] {
				absent = append(absent, id)
			}
		}
	}
	return Ok(http.StatusOK, absent)
}
