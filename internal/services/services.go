// package services defines the source and target chat platform clients consumed by the migrator
package services

import (
	"context"
	"fmt"
	"iter"
	"net/http"

	"github.com/desertthunder/chatmigrate/internal/models"
)

// SourceReader reads users and channels from the source chat service.
//
// Single fetches return a [Result]; listings are streamed and stop at the first error.
type SourceReader interface {
	FetchUser(ctx context.Context, id string) Result[models.SourceUser]
	FetchChannel(ctx context.Context, id string) Result[models.SourceChannel]

	// ListUsers streams users in pages of pageSize, stopping after limit users when limit > 0.
	ListUsers(ctx context.Context, pageSize, limit int) iter.Seq2[models.SourceUser, error]

	// ListChannels streams private channels in pages of pageSize, stopping after limit channels when limit > 0.
	ListChannels(ctx context.Context, pageSize, limit int) iter.Seq2[models.SourceChannel, error]

	ListChannelMembers(ctx context.Context, channelID string) Result[[]models.Member]

	// ListUserChannels streams the channel references of a user.
	ListUserChannels(ctx context.Context, userID string, pageSize, limit int) iter.Seq2[models.UserChannelRef, error]
}

// TargetWriter writes users, channels and their metadata to the target chat platform.
//
// Create and update are distinct calls; callers fall back to create when update reports 404.
type TargetWriter interface {
	CreateUser(ctx context.Context, req models.UserUpsertRequest) Result[models.UserResource]
	UpdateUser(ctx context.Context, req models.UserUpsertRequest) Result[models.UserResource]

	CreateUserMetadata(ctx context.Context, userID string, meta models.UserMetadata) Result[models.UserMetadata]
	UpdateUserMetadata(ctx context.Context, userID string, meta models.UserMetadata) Result[models.UserMetadata]

	CreateChannel(ctx context.Context, req models.ChannelUpsertRequest) Result[models.ChannelResource]
	UpdateChannel(ctx context.Context, req models.ChannelUpsertRequest) Result[models.ChannelResource]

	CreateChannelMetadata(ctx context.Context, channelURL string, meta models.ChannelMetadata) Result[models.ChannelMetadata]
	UpdateChannelMetadata(ctx context.Context, channelURL string, meta models.ChannelMetadata) Result[models.ChannelMetadata]

	// BlockUsers makes originatorID block every user in targetIDs.
	BlockUsers(ctx context.Context, originatorID int, targetIDs []int) Result[[]models.UserResource]

	FreezeChannel(ctx context.Context, channelURL string, freeze bool) Result[models.ChannelResource]

	// WhichAreAbsent returns the subset of ids that do not exist as users on the target.
	WhichAreAbsent(ctx context.Context, ids []int) Result[[]int]
}

// Result is the typed outcome of a single platform call.
//
// Vendor and transport failures are reported through StatusCode and Message, never as Go errors.
type Result[T any] struct {
	StatusCode int
	Payload    T
	Message    string
}

// Ok builds a successful [Result].
func Ok[T any](status int, payload T) Result[T] {
	return Result[T]{StatusCode: status, Payload: payload}
}

// Fail builds a failed [Result] with a formatted message.
func Fail[T any](status int, format string, args ...any) Result[T] {
	return Result[T]{StatusCode: status, Message: fmt.Sprintf(format, args...)}
}

// IsSuccess reports a 2xx status.
func (r Result[T]) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsNotFound reports a 404 status, the signal to fall back from update to create.
func (r Result[T]) IsNotFound() bool {
	return r.StatusCode == http.StatusNotFound
}

// FormattedMessage renders the message and status for diagnostics.
func (r Result[T]) FormattedMessage() string {
	return fmt.Sprintf("message [%s]; status [%d]", r.Message, r.StatusCode)
}

// Retype carries the status and message of r over to a Result of another payload type.
func Retype[U, T any](r Result[T]) Result[U] {
	return Result[U]{StatusCode: r.StatusCode, Message: r.Message}
}
