package tasks

import (
	"context"
	"net/http"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/desertthunder/chatmigrate/internal/models"
	tu "github.com/desertthunder/chatmigrate/internal/testing"
	"github.com/desertthunder/chatmigrate/internal/testing/fakes"
)

func TestMemberIDsFromName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []int
	}{
		{"two members", "L77-12-34", []int{12, 34}},
		{"prefix only", "L77", []int{}},
		{"blank", "", []int{}},
		{"drops non numeric", "L77-abc-34", []int{34}},
		{"drops zero and blank segments", "L77-0--5-9", []int{5, 9}},
		{"numeric prefix is not a member", "77-12", []int{12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Equal(t, MemberIDsFromName(tt.in), tt.want)
		})
	}
}

func TestOutcomeString(t *testing.T) {
	gt.Equal(t, OutcomeSuccess.String(), "success")
	gt.Equal(t, OutcomeFailure.String(), "failure")
	gt.Equal(t, OutcomeContinuation.String(), "continuation")
}

func TestMigrateChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("no members is skipped without calls", func(t *testing.T) {
		src, tgt := fakes.NewSource(), fakes.NewTarget()
		m, _ := newTestMigrator(src, tgt, 1)
		result := NewMigrationResult()

		d := m.migrateChannel(ctx, sourceChannel("CH1", "L1-1-2", 0, 5), Window{}, result)

		gt.Equal(t, d, models.Skipped)
		gt.Equal(t, len(tgt.Calls()), 0)
		gt.Equal(t, len(src.Calls()), 0)
		gt.Equal(t, result.Channels, models.Counters{Fetched: 1, Skipped: 1})
	})

	t.Run("inconsistent attributes are skipped", func(t *testing.T) {
		src, tgt := fakes.NewSource(), fakes.NewTarget()
		m, _ := newTestMigrator(src, tgt, 1)
		ch := sourceChannel("CH1", "L1-1-2", 2, 0)
		ch.Attributes = models.ChannelAttributes{}

		d := m.migrateChannel(ctx, ch, Window{}, NewMigrationResult())

		gt.Equal(t, d, models.Skipped)
		gt.Equal(t, len(tgt.Calls()), 0)
	})

	t.Run("outside the window is skipped", func(t *testing.T) {
		src, tgt := fakes.NewSource(), fakes.NewTarget()
		m, _ := newTestMigrator(src, tgt, 1)
		after := tu.MustParseTime(t, "2024-06-01T00:00:00Z")
		updated := tu.MustParseTime(t, "2024-01-01T00:00:00Z")
		ch := sourceChannel("CH1", "L1-1-2", 2, 5)
		ch.DateUpdated = &updated

		d := m.migrateChannel(ctx, ch, NewWindow(nil, &after), NewMigrationResult())

		gt.Equal(t, d, models.Skipped)
		gt.Equal(t, len(tgt.Calls()), 0)
	})

	t.Run("new channel with listing is created with metadata", func(t *testing.T) {
		src, tgt := fakes.NewSource(), fakes.NewTarget(1, 2)
		m, _ := newTestMigrator(src, tgt, 1)
		result := NewMigrationResult()

		d := m.migrateChannel(ctx, sourceChannel("CH1", "L5-1-2", 2, 5), Window{}, result)

		gt.Equal(t, d, models.Success)
		gt.Equal(t, result.Channels, models.Counters{Fetched: 1, Success: 1})
		gt.Equal(t, tgt.Calls(), []fakes.Call{
			{Method: "WhichAreAbsent", Key: "[1 2]"},
			{Method: "UpdateChannel", Key: "L5-1-2"},
			{Method: "CreateChannel", Key: "L5-1-2"},
			{Method: "UpdateChannelMetadata", Key: "L5-1-2"},
			{Method: "CreateChannelMetadata", Key: "L5-1-2"},
		})

		written, ok := tgt.Channel("L5-1-2")
		gt.True(t, ok)
		gt.Equal(t, written.UserIDs, []int{1, 2})
		gt.Equal(t, written.Name, "Channel CH1")
		gt.Equal(t, written.CreatedBy, 1)

		data := models.DecodeChannelData(written.Data)
		gt.V(t, data.Listing).NotNil()
		gt.Equal(t, data.Listing.ID, 5)
		gt.Equal(t, data.Listing.Title, "Bike")

		meta, ok := tgt.ChannelMetadata("L5-1-2")
		gt.True(t, ok)
		gt.Equal(t, meta, models.ChannelMetadata{ListingID: "5", BuyerID: "1", SellerID: "2"})
	})

	t.Run("channel without listing skips the metadata phase", func(t *testing.T) {
		src, tgt := fakes.NewSource(), fakes.NewTarget(1, 2)
		tgt.AddChannel("L0-1-2", false)
		m, _ := newTestMigrator(src, tgt, 1)

		d := m.migrateChannel(ctx, sourceChannel("CH1", "L0-1-2", 2, 0), Window{}, NewMigrationResult())

		gt.Equal(t, d, models.Success)
		gt.Equal(t, tgt.Count("CreateChannel"), 0)
		gt.Equal(t, tgt.Count("UpdateChannelMetadata"), 0)
	})

	t.Run("absent member is migrated once before the channel", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(sourceUser("2"))
		tgt := fakes.NewTarget(1)
		m, _ := newTestMigrator(src, tgt, 1)

		d := m.migrateChannel(ctx, sourceChannel("CH1", "L5-1-2", 2, 5), Window{}, NewMigrationResult())

		gt.Equal(t, d, models.Success)
		gt.Equal(t, src.Count("FetchUser"), 1)
		gt.Equal(t, src.Count("FetchUser", "2"), 1)
		gt.Equal(t, tgt.Count("CreateUser", "2"), 1)

		calls := tgt.Calls()
		gt.True(t, indexOf(calls, "CreateUser", "2") < indexOf(calls, "UpdateChannel", "L5-1-2"))
	})

	t.Run("members are migrated as full users", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(sourceUser("2", 9), sourceUser("9"))
		tgt := fakes.NewTarget(1)
		m, _ := newTestMigrator(src, tgt, 1)

		m.migrateChannel(ctx, sourceChannel("CH1", "L5-1-2", 2, 5), Window{}, NewMigrationResult())

		gt.True(t, tgt.HasUser("9"))
		gt.Equal(t, tgt.Blocked(2), []int{9})
	})

	t.Run("member failure does not flip the channel", func(t *testing.T) {
		src, tgt := fakes.NewSource(), fakes.NewTarget(1)
		m, _ := newTestMigrator(src, tgt, 1)
		result := NewMigrationResult()

		d := m.migrateChannel(ctx, sourceChannel("CH1", "L5-1-2", 2, 5), Window{}, result)

		gt.Equal(t, d, models.Success)
		gt.Equal(t, result.Users.Fetched, 0)
		gt.Equal(t, result.Channels, models.Counters{Fetched: 1, Success: 1})
		gt.Equal(t, len(result.ErrorMessages), 1)
		gt.S(t, result.ErrorMessages[0]).Contains("user 2: fetch failed")

		gt.False(t, tgt.HasUser("2"))
		written, ok := tgt.Channel("L5-1-2")
		gt.True(t, ok)
		gt.Equal(t, written.UserIDs, []int{1})
	})

	t.Run("member rejected by the target is left out of the channel", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(sourceUser("2"))
		tgt := fakes.NewTarget(1)
		tgt.FailWith("CreateUser", "2", http.StatusBadRequest)
		m, _ := newTestMigrator(src, tgt, 1)
		result := NewMigrationResult()

		d := m.migrateChannel(ctx, sourceChannel("CH1", "L5-1-2", 2, 5), Window{}, result)

		gt.Equal(t, d, models.Success)
		written, _ := tgt.Channel("L5-1-2")
		gt.Equal(t, written.UserIDs, []int{1})
		gt.S(t, result.ErrorMessages[0]).Contains("user 2: upsert failed")
	})

	t.Run("channel write naming an unknown user fails", func(t *testing.T) {
		src, tgt := fakes.NewSource(), fakes.NewTarget(1)
		m, _ := newTestMigrator(src, tgt, 1)
		result := NewMigrationResult()

		outcome, _ := m.upsertChannel(ctx, sourceChannel("CH1", "L5-1-2", 2, 5), []int{1, 2}, result)

		gt.Equal(t, outcome, OutcomeFailure)
		gt.Equal(t, tgt.Count("CreateChannel", "L5-1-2"), 1)
		_, ok := tgt.Channel("L5-1-2")
		gt.False(t, ok)
	})

	t.Run("single member channel uses the live member listing", func(t *testing.T) {
		src := fakes.NewSource().SetMembers("CH1", "5", "bot")
		tgt := fakes.NewTarget(1, 2, 5)
		m, _ := newTestMigrator(src, tgt, 1)

		d := m.migrateChannel(ctx, sourceChannel("CH1", "L5-1-2", 1, 5), Window{}, NewMigrationResult())

		gt.Equal(t, d, models.Success)
		written, _ := tgt.Channel("L5-1-2")
		gt.Equal(t, written.UserIDs, []int{5})
		gt.Equal(t, tgt.Count("WhichAreAbsent", "[1 2]"), 1)
	})

	t.Run("failed live member listing falls back to no members", func(t *testing.T) {
		src := fakes.NewSource()
		src.FailWith("ListChannelMembers", "CH1", http.StatusInternalServerError)
		tgt := fakes.NewTarget(1, 2)
		m, _ := newTestMigrator(src, tgt, 1)
		result := NewMigrationResult()

		d := m.migrateChannel(ctx, sourceChannel("CH1", "L5-1-2", 1, 5), Window{}, result)

		gt.Equal(t, d, models.Success)
		written, _ := tgt.Channel("L5-1-2")
		gt.Equal(t, len(written.UserIDs), 0)
		gt.S(t, result.ErrorMessages[0]).Contains("member listing failed")
	})

	t.Run("channel upsert failure stops before metadata", func(t *testing.T) {
		src, tgt := fakes.NewSource(), fakes.NewTarget(1, 2)
		tgt.FailWith("UpdateChannel", "*", http.StatusBadRequest)
		m, _ := newTestMigrator(src, tgt, 1)
		result := NewMigrationResult()

		d := m.migrateChannel(ctx, sourceChannel("CH1", "L5-1-2", 2, 5), Window{}, result)

		gt.Equal(t, d, models.Failure)
		gt.Equal(t, result.Channels, models.Counters{Fetched: 1, Failed: 1})
		gt.Equal(t, tgt.Count("CreateChannel"), 0)
		gt.Equal(t, tgt.Count("UpdateChannelMetadata"), 0)
	})

	t.Run("metadata failure fails the channel", func(t *testing.T) {
		src, tgt := fakes.NewSource(), fakes.NewTarget(1, 2)
		tgt.FailWith("UpdateChannelMetadata", "*", http.StatusInternalServerError)
		m, _ := newTestMigrator(src, tgt, 1)

		d := m.migrateChannel(ctx, sourceChannel("CH1", "L5-1-2", 2, 5), Window{}, NewMigrationResult())

		gt.Equal(t, d, models.Failure)
		gt.Equal(t, tgt.Count("CreateChannelMetadata"), 0)
	})

	t.Run("freeze state is reconciled", func(t *testing.T) {
		tests := []struct {
			name        string
			existing    bool
			frozen      bool
			source      bool
			freezeCalls int
		}{
			{"new frozen channel is frozen", false, false, true, 1},
			{"existing frozen channel is unfrozen", true, true, false, 1},
			{"matching state is left alone", true, true, true, 0},
			{"new open channel is left alone", false, false, false, 0},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				src, tgt := fakes.NewSource(), fakes.NewTarget(1, 2)
				if tt.existing {
					tgt.AddChannel("L5-1-2", tt.frozen)
				}
				m, _ := newTestMigrator(src, tgt, 1)
				ch := sourceChannel("CH1", "L5-1-2", 2, 5)
				ch.Attributes.IsFrozen = tt.source

				d := m.migrateChannel(ctx, ch, Window{}, NewMigrationResult())

				gt.Equal(t, d, models.Success)
				gt.Equal(t, tgt.Count("FreezeChannel"), tt.freezeCalls)
				gt.Equal(t, tgt.Frozen("L5-1-2"), tt.source)
			})
		}
	})

	t.Run("freeze failure only adds a message", func(t *testing.T) {
		src, tgt := fakes.NewSource(), fakes.NewTarget(1, 2)
		tgt.FailWith("FreezeChannel", "*", http.StatusInternalServerError)
		m, _ := newTestMigrator(src, tgt, 1)
		ch := sourceChannel("CH1", "L5-1-2", 2, 5)
		ch.Attributes.IsFrozen = true
		result := NewMigrationResult()

		d := m.migrateChannel(ctx, ch, Window{}, result)

		gt.Equal(t, d, models.Success)
		gt.Equal(t, len(result.ErrorMessages), 1)
		gt.S(t, result.ErrorMessages[0]).Contains("freeze=true failed")
	})
}
