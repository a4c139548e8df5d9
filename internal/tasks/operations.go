package tasks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/desertthunder/chatmigrate/internal/shared"
)

// MigrateUsers migrates every source user, or the first limit users when limit > 0.
//
// Users are processed in chunks of pageSize (zero means [DefaultPageSize]) with bounded concurrency.
// The returned error is non-nil only for invalid arguments.
func (m *Migrator) MigrateUsers(ctx context.Context, window Window, limit, pageSize int) (*MigrationResult, error) {
	result := NewMigrationResult()
	if err := validatePaging(limit, pageSize); err != nil {
		return result, err
	}
	pageSize = normalizePageSize(pageSize)

	m.sink.Log("migrating users", "window", window, "limit", limit, "page_size", pageSize, "concurrency", m.concurrency)
	m.sendProgress(fetchUsersUpdate(pageSize, limit))

	m.migrateUserChunks(ctx, m.source.ListUsers(ctx, pageSize, limit), window, pageSize, limit, result)

	if result.Message == "" {
		result.Message = "users migration finished"
	}
	m.finish(result)
	return result, nil
}

// MigrateChannels migrates source channels one at a time, stopping after limit channels when limit > 0.
func (m *Migrator) MigrateChannels(ctx context.Context, window Window, limit, pageSize int) (*MigrationResult, error) {
	result := NewMigrationResult()
	if err := validatePaging(limit, pageSize); err != nil {
		return result, err
	}
	pageSize = normalizePageSize(pageSize)

	m.sink.Log("migrating channels", "window", window, "limit", limit, "page_size", pageSize)
	m.sendProgress(fetchChannelsUpdate(pageSize, limit))

	m.migrateChannelStream(ctx, window, limit, pageSize, result)

	if result.Message == "" {
		result.Message = "channels migration finished"
	}
	m.finish(result)
	return result, nil
}

func (m *Migrator) migrateChannelStream(ctx context.Context, window Window, limit, pageSize int, result *MigrationResult) {
	step := 0
	for ch, err := range m.source.ListChannels(ctx, pageSize, limit) {
		if err != nil {
			result.AddError("channels listing aborted: %v", err)
			result.Message = "channels listing failed; result is partial"
			return
		}
		if err := ctx.Err(); err != nil {
			result.AddError("channels migration interrupted: %v", err)
			return
		}

		step++
		m.sendProgress(migrateChannelUpdate(step, limit, ch))
		m.migrateChannel(ctx, ch, window, result)
		if limit > 0 && step >= limit {
			return
		}
	}
}

// MigrateSingleAccount migrates one user without a date window, then every channel they belong to with window
// applied. Channels are only attempted when the user itself was migrated.
func (m *Migrator) MigrateSingleAccount(ctx context.Context, window Window, accountID, limit, pageSize int) (*MigrationResult, error) {
	result := NewMigrationResult()
	if accountID <= 0 {
		result.Message = fmt.Sprintf("invalid account id %d", accountID)
		return result, invalidArgument("account id must be a positive integer", "account_id", accountID)
	}
	if err := validatePaging(limit, pageSize); err != nil {
		return result, err
	}
	pageSize = normalizePageSize(pageSize)
	id := strconv.Itoa(accountID)

	m.sink.Log("migrating account", "id", accountID, "window", window)
	m.sendProgress(migrateAccountUpdate(accountID, "fetching user"))

	fetched := m.source.FetchUser(ctx, id)
	if !fetched.IsSuccess() {
		result.AddError("user %s: fetch failed: %s", id, fetched.FormattedMessage())
	} else {
		m.migrateUser(ctx, fetched.Payload, false, Window{}, result)
	}

	if result.Users.Fetched == 0 || result.Users.Failed > 0 {
		result.Message = fmt.Sprintf("account %d could not be migrated; its channels were not attempted", accountID)
		m.finish(result)
		return result, nil
	}

	m.sendProgress(migrateAccountUpdate(accountID, "migrating channels"))
	step := 0
	for ref, err := range m.source.ListUserChannels(ctx, id, pageSize, limit) {
		if err != nil {
			result.AddError("account %d: channels listing aborted: %v", accountID, err)
			result.Message = "account channels listing failed; result is partial"
			break
		}
		if err := ctx.Err(); err != nil {
			result.AddError("account %d: migration interrupted: %v", accountID, err)
			break
		}

		if limit > 0 && step >= limit {
			break
		}

		step++
		channel := m.source.FetchChannel(ctx, ref.ChannelSID)
		if !channel.IsSuccess() {
			result.AddError("channel %s: fetch failed: %s", ref.ChannelSID, channel.FormattedMessage())
			continue
		}
		m.sendProgress(migrateChannelUpdate(step, limit, channel.Payload))
		m.migrateChannel(ctx, channel.Payload, window, result)
	}

	if result.Message == "" {
		result.Message = fmt.Sprintf("account %d migration finished", accountID)
	}
	m.finish(result)
	return result, nil
}

// MigrateSingleChannel migrates the channel with the given SID or unique name.
//
// A blank identifier or a failed fetch returns an error; the fetch failure is also recorded in the result.
func (m *Migrator) MigrateSingleChannel(ctx context.Context, window Window, channelID string) (*MigrationResult, error) {
	result := NewMigrationResult()
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		result.Message = "channel identifier is required"
		return result, invalidArgument("channel identifier must not be blank", "channel_id", channelID)
	}

	m.sink.Log("migrating channel", "id", channelID, "window", window)

	fetched := m.source.FetchChannel(ctx, channelID)
	if !fetched.IsSuccess() {
		result.AddError("channel %s: fetch failed: %s", channelID, fetched.FormattedMessage())
		result.Message = fmt.Sprintf("channel %s could not be fetched", channelID)
		m.finish(result)
		return result, goerr.Wrap(shared.ErrAPIRequest, "failed to fetch channel",
			goerr.V("channel_id", channelID), goerr.V("status", fetched.StatusCode), goerr.V("message", fetched.Message))
	}

	m.sendProgress(migrateChannelUpdate(1, 1, fetched.Payload))
	m.migrateChannel(ctx, fetched.Payload, window, result)

	result.Message = fmt.Sprintf("channel %s migration finished", channelID)
	m.finish(result)
	return result, nil
}

func (m *Migrator) finish(result *MigrationResult) {
	total := result.Total()
	m.sink.Log(result.Message,
		"fetched", total.Fetched, "success", total.Success, "skipped", total.Skipped, "failed", total.Failed,
		"errors", len(result.ErrorMessages))
	m.sendProgress(completeUpdate(result))
}
