package tasks

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/desertthunder/chatmigrate/internal/models"
)

// Outcome is the result of one phase of a channel write.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	// OutcomeContinuation means the channel was written and its listing metadata is still pending.
	OutcomeContinuation
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeContinuation:
		return "continuation"
	default:
		return "unknown"
	}
}

// MemberIDsFromName extracts member ids from a channel unique name.
// The first dash separated segment is not a member; non-numeric and non-positive segments are dropped.
func MemberIDsFromName(uniqueName string) []int {
	parts := strings.Split(uniqueName, "-")
	if len(parts) < 2 {
		return []int{}
	}

	ids := make([]int, 0, len(parts)-1)
	for _, part := range parts[1:] {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// channelURL is the identifier of ch on the target.
func channelURL(ch models.SourceChannel) string {
	if ch.UniqueName != "" {
		return ch.UniqueName
	}
	return ch.SID
}

// migrateChannel runs the eligibility checks, resolves members and writes ch with its metadata.
func (m *Migrator) migrateChannel(ctx context.Context, ch models.SourceChannel, window Window, result *MigrationResult) models.Disposition {
	kind := models.KindChannels
	url := channelURL(ch)

	switch {
	case ch.MembersCount == 0:
		return m.record(result, kind, url, models.Skipped, "no members")
	case !ch.Attributes.Consistent():
		return m.record(result, kind, url, models.Skipped, "inconsistent attributes")
	case !window.Includes(ch.DateUpdated):
		return m.record(result, kind, url, models.Skipped, "outside date window")
	}

	nameIDs := MemberIDsFromName(ch.UniqueName)
	members := nameIDs
	if ch.MembersCount == 1 {
		members = m.liveMembers(ctx, ch, result)
	}
	if missing := m.resolveMembers(ctx, url, nameIDs, result); len(missing) > 0 {
		members = slices.DeleteFunc(slices.Clone(members), func(id int) bool {
			return slices.Contains(missing, id)
		})
	}

	reason, d := m.migrateChannelWithMetadata(ctx, ch, members, result)
	return m.record(result, kind, url, d, reason)
}

// liveMembers lists the current members of ch. A failed listing yields no members.
func (m *Migrator) liveMembers(ctx context.Context, ch models.SourceChannel, result *MigrationResult) []int {
	res := m.source.ListChannelMembers(ctx, ch.SID)
	if !res.IsSuccess() {
		result.AddError("channel %s: member listing failed: %s", channelURL(ch), res.FormattedMessage())
		return []int{}
	}

	ids := make([]int, 0, len(res.Payload))
	for _, member := range res.Payload {
		id, err := strconv.Atoi(member.Identity)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// resolveMembers migrates the members missing on the target as full users and returns the ones that could
// not be written. The channel is written regardless, without them.
func (m *Migrator) resolveMembers(ctx context.Context, url string, ids []int, result *MigrationResult) []int {
	if len(ids) == 0 {
		return nil
	}

	res := m.target.WhichAreAbsent(ctx, ids)
	if !res.IsSuccess() {
		result.AddError("channel %s: absent member lookup failed: %s", url, res.FormattedMessage())
		return nil
	}
	return m.migrateDependencies(ctx, res.Payload, false, result)
}

// migrateChannelWithMetadata writes the channel, then its listing metadata when the channel references a listing.
func (m *Migrator) migrateChannelWithMetadata(ctx context.Context, ch models.SourceChannel, members []int, result *MigrationResult) (string, models.Disposition) {
	outcome, reason := m.upsertChannel(ctx, ch, members, result)
	switch outcome {
	case OutcomeSuccess:
		return "", models.Success
	case OutcomeFailure:
		return reason, models.Failure
	case OutcomeContinuation:
		if outcome, reason = m.upsertChannelMetadata(ctx, ch, result); outcome == OutcomeSuccess {
			return "", models.Success
		}
		return reason, models.Failure
	default:
		panic(fmt.Sprintf("tasks: unhandled channel outcome %d", outcome))
	}
}

// upsertChannel updates the channel, creating it on 404, then reconciles its freeze state.
func (m *Migrator) upsertChannel(ctx context.Context, ch models.SourceChannel, members []int, result *MigrationResult) (Outcome, string) {
	req := newChannelUpsertRequest(ch, members)

	res := m.target.UpdateChannel(ctx, req)
	if res.IsNotFound() {
		res = m.target.CreateChannel(ctx, req)
	}
	if !res.IsSuccess() {
		result.AddError("channel %s: upsert failed: %s", req.ChannelURL, res.FormattedMessage())
		return OutcomeFailure, res.FormattedMessage()
	}

	if res.Payload.Freeze != ch.Attributes.IsFrozen {
		freeze := m.target.FreezeChannel(ctx, req.ChannelURL, ch.Attributes.IsFrozen)
		if !freeze.IsSuccess() {
			result.AddError("channel %s: freeze=%t failed: %s", req.ChannelURL, ch.Attributes.IsFrozen, freeze.FormattedMessage())
		}
	}

	if ch.Attributes.ListingID > 0 {
		return OutcomeContinuation, ""
	}
	return OutcomeSuccess, ""
}

// upsertChannelMetadata writes the listing metadata of ch, creating it on 404.
func (m *Migrator) upsertChannelMetadata(ctx context.Context, ch models.SourceChannel, result *MigrationResult) (Outcome, string) {
	url := channelURL(ch)
	meta := models.NewChannelMetadata(ch.Attributes)

	res := m.target.UpdateChannelMetadata(ctx, url, meta)
	if res.IsNotFound() {
		res = m.target.CreateChannelMetadata(ctx, url, meta)
	}
	if !res.IsSuccess() {
		result.AddError("channel %s: metadata upsert failed: %s", url, res.FormattedMessage())
		return OutcomeFailure, res.FormattedMessage()
	}
	return OutcomeSuccess, ""
}

func newChannelUpsertRequest(ch models.SourceChannel, members []int) models.ChannelUpsertRequest {
	name := ch.FriendlyName
	if name == "" {
		name = ch.UniqueName
	}

	data := models.ChannelData{IsListingBlocked: ch.Attributes.IsListingBlocked}
	if ch.Attributes.ListingID > 0 {
		data.Listing = &models.ListingData{
			ID:    ch.Attributes.ListingID,
			Title: ch.Attributes.ListingTitle,
			State: ch.Attributes.ListingState,
		}
	}

	return models.ChannelUpsertRequest{
		UserIDs:    members,
		ChannelURL: channelURL(ch),
		Name:       name,
		Data:       data.Encode(),
		Freeze:     ch.Attributes.IsFrozen,
		CreatedBy:  ch.Attributes.BuyerID,
	}
}
