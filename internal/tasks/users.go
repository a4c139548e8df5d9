package tasks

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/services"
)

// migrateUser upserts user on the target and replays their blocks.
//
// With existingOnly set, blocks are only submitted for users that already exist on the target and nothing is
// migrated recursively. Otherwise absent blockees are migrated first, each with existingOnly set, which bounds
// the recursion to one level. Blockees that still could not be written are left out of the bulk block.
func (m *Migrator) migrateUser(ctx context.Context, user models.SourceUser, existingOnly bool, window Window, result *MigrationResult) models.Disposition {
	d, _ := m.writeUser(ctx, user, existingOnly, window, result)
	return d
}

// writeUser is migrateUser that also reports whether the user exists on the target afterwards.
func (m *Migrator) writeUser(ctx context.Context, user models.SourceUser, existingOnly bool, window Window, result *MigrationResult) (models.Disposition, bool) {
	kind := models.KindUsers
	if !window.Includes(user.DateUpdated) {
		return m.record(result, kind, user.ID, models.Skipped, "outside date window"), false
	}

	req := newUserUpsertRequest(user)
	res, created := m.upsertUser(ctx, req)
	if !res.IsSuccess() {
		result.AddError("user %s: upsert failed: %s", user.ID, res.FormattedMessage())
		return m.record(result, kind, user.ID, models.Failure, res.FormattedMessage()), false
	}
	if !created && req.Metadata != nil {
		m.syncUserMetadata(ctx, user.ID, *req.Metadata, result)
	}

	blocked := user.Attributes.BlockedUsers
	if len(blocked) == 0 {
		return m.record(result, kind, user.ID, models.Success, ""), true
	}

	absentRes := m.target.WhichAreAbsent(ctx, blocked)
	if !absentRes.IsSuccess() {
		result.AddError("user %s: absent blockee lookup failed: %s", user.ID, absentRes.FormattedMessage())
		return m.record(result, kind, user.ID, models.Failure, absentRes.FormattedMessage()), true
	}

	unresolved := absentRes.Payload
	if !existingOnly {
		unresolved = m.migrateDependencies(ctx, absentRes.Payload, true, result)
	}
	submit := slices.DeleteFunc(slices.Clone(blocked), func(id int) bool {
		return slices.Contains(unresolved, id)
	})
	if len(submit) == 0 {
		return m.record(result, kind, user.ID, models.Success, "no existing blockees"), true
	}

	originator, err := strconv.Atoi(user.ID)
	if err != nil {
		result.AddError("user %s: identifier is not numeric", user.ID)
		return m.record(result, kind, user.ID, models.Failure, "identifier is not numeric"), true
	}

	blockRes := m.target.BlockUsers(ctx, originator, submit)
	if !blockRes.IsSuccess() {
		result.AddError("user %s: blocking %v failed: %s", user.ID, submit, blockRes.FormattedMessage())
		return m.record(result, kind, user.ID, models.Failure, blockRes.FormattedMessage()), true
	}
	return m.record(result, kind, user.ID, models.Success, ""), true
}

// migrateDependencies migrates every id with [Migrator.migrateDependency] and returns the ids that are still
// missing on the target.
func (m *Migrator) migrateDependencies(ctx context.Context, ids []int, existingOnly bool, parent *MigrationResult) []int {
	var missing []int
	for _, id := range ids {
		if !m.migrateDependency(ctx, strconv.Itoa(id), existingOnly, parent) {
			missing = append(missing, id)
		}
	}
	return missing
}

// migrateDependency fetches and migrates a user another entity depends on, without a date window.
// Only its error messages reach parent; its counters are discarded. It reports whether the user exists on the
// target afterwards.
func (m *Migrator) migrateDependency(ctx context.Context, id string, existingOnly bool, parent *MigrationResult) bool {
	fetched := m.source.FetchUser(ctx, id)
	if !fetched.IsSuccess() {
		parent.AddError("user %s: fetch failed: %s", id, fetched.FormattedMessage())
		return false
	}

	child := NewMigrationResult()
	d, written := m.writeUser(ctx, fetched.Payload, existingOnly, Window{}, child)
	if d == models.Failure {
		m.sink.Log("dependency migration failed", "user", id)
	}
	parent.ErrorMessages = append(parent.ErrorMessages, child.ErrorMessages...)
	return written
}

// upsertUser updates req and falls back to a single create when the user does not exist.
func (m *Migrator) upsertUser(ctx context.Context, req models.UserUpsertRequest) (services.Result[models.UserResource], bool) {
	res := m.target.UpdateUser(ctx, req)
	if res.IsNotFound() {
		return m.target.CreateUser(ctx, req), true
	}
	return res, false
}

// syncUserMetadata writes the admin block timestamp of an existing user. Failures are reported only.
func (m *Migrator) syncUserMetadata(ctx context.Context, userID string, meta models.UserMetadata, result *MigrationResult) {
	res := m.target.UpdateUserMetadata(ctx, userID, meta)
	if res.IsNotFound() {
		res = m.target.CreateUserMetadata(ctx, userID, meta)
	}
	if !res.IsSuccess() {
		result.AddError("user %s: metadata sync failed: %s", userID, res.FormattedMessage())
	}
}

func newUserUpsertRequest(u models.SourceUser) models.UserUpsertRequest {
	profileURL := u.ProfileImageURL
	issueSessionToken := true

	req := models.UserUpsertRequest{
		UserID:            u.ID,
		Nickname:          u.FriendlyName,
		ProfileURL:        &profileURL,
		IssueSessionToken: &issueSessionToken,
	}
	if at := u.Attributes.BlockedByAdminAt; at != nil {
		req.Metadata = &models.UserMetadata{BlockedByAdminAt: at.UTC().Format(time.RFC3339)}
	}
	return req
}
