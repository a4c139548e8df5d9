package tasks

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/shared"
	tu "github.com/desertthunder/chatmigrate/internal/testing"
	"github.com/desertthunder/chatmigrate/internal/testing/fakes"
)

func numberedUsers(n int) []models.SourceUser {
	users := make([]models.SourceUser, 0, n)
	for i := 1; i <= n; i++ {
		users = append(users, sourceUser(strconv.Itoa(i)))
	}
	return users
}

func numberedIDs(n int) []int {
	ids := make([]int, 0, n)
	for i := 1; i <= n; i++ {
		ids = append(ids, i)
	}
	return ids
}

func TestNewMigrator(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, MaxConcurrency},
		{-3, MaxConcurrency},
		{1, 1},
		{4, 4},
		{25, MaxConcurrency},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("concurrency %d", tt.in), func(t *testing.T) {
			m := NewMigrator(MigratorOpts{Source: fakes.NewSource(), Target: fakes.NewTarget(), Concurrency: tt.in})
			gt.Equal(t, m.Concurrency(), tt.want)
		})
	}
}

func TestMigrateUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("zero limit and page size fetch everything with the default page size", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(numberedUsers(250)...)
		tgt := fakes.NewTarget()
		m, _ := newTestMigrator(src, tgt, 0)

		result, err := m.MigrateUsers(ctx, Window{}, 0, 0)
		gt.NoError(t, err).Required()

		gt.Equal(t, src.Count("ListUsers", strconv.Itoa(DefaultPageSize)), 1)
		gt.Equal(t, result.Users, models.Counters{Fetched: 250, Success: 250})
		gt.Equal(t, result.Channels, models.Counters{})
		gt.True(t, tgt.HasUser("250"))
	})

	t.Run("limit bounds the number of users", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(numberedUsers(20)...)
		m, _ := newTestMigrator(src, fakes.NewTarget(), 3)

		result, err := m.MigrateUsers(ctx, Window{}, 5, 2)
		gt.NoError(t, err).Required()
		gt.Equal(t, result.Users.Fetched, 5)
		gt.True(t, result.Balanced())
	})

	t.Run("one failing user across concurrent chunks", func(t *testing.T) {
		for _, concurrency := range []int{1, 2, 10} {
			t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
				src := fakes.NewSource().AddUsers(numberedUsers(4)...)
				tgt := fakes.NewTarget(numberedIDs(4)...)
				tgt.FailWith("UpdateUser", "3", http.StatusInternalServerError)
				m, _ := newTestMigrator(src, tgt, concurrency)

				result, err := m.MigrateUsers(ctx, Window{}, 0, 2)
				gt.NoError(t, err).Required()

				gt.Equal(t, result.Users, models.Counters{Fetched: 4, Success: 3, Failed: 1})
				gt.Equal(t, len(result.ErrorMessages), 1)
			})
		}
	})

	t.Run("every fetched user has one disposition", func(t *testing.T) {
		cutoff := tu.MustParseTime(t, "2024-01-01T00:00:00Z")
		old := tu.MustParseTime(t, "2023-01-01T00:00:00Z")
		users := numberedUsers(37)
		for i := range users {
			if i%5 == 0 {
				users[i].DateUpdated = &old
			}
		}
		src := fakes.NewSource().AddUsers(users...)
		tgt := fakes.NewTarget()
		tgt.FailWith("CreateUser", "7", http.StatusBadRequest)
		tgt.FailWith("CreateUser", "12", http.StatusBadRequest)
		m, sink := newTestMigrator(src, tgt, 4)

		result, err := m.MigrateUsers(ctx, NewWindow(nil, &cutoff), 0, 3)
		gt.NoError(t, err).Required()

		gt.Equal(t, result.Users.Fetched, 37)
		gt.Equal(t, result.Users.Skipped, 8)
		gt.Equal(t, result.Users.Failed, 2)
		gt.Equal(t, result.Users.Success, 27)
		gt.True(t, result.Balanced())
		gt.Equal(t, len(sink.Records()), 37)
	})

	t.Run("blocked ids survive the chunk path", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(sourceUser("1", 2), sourceUser("2"))
		tgt := fakes.NewTarget(1, 2)
		m, _ := newTestMigrator(src, tgt, 2)

		_, err := m.MigrateUsers(ctx, Window{}, 0, 1)
		gt.NoError(t, err).Required()
		gt.Equal(t, tgt.Blocked(1), []int{2})
	})

	t.Run("stream error returns the partial result", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(numberedUsers(10)...).FailStreamAfter(3, errors.New("page fetch exploded"))
		m, _ := newTestMigrator(src, fakes.NewTarget(), 2)

		result, err := m.MigrateUsers(ctx, Window{}, 0, 2)
		gt.NoError(t, err).Required()

		gt.Equal(t, result.Users.Fetched, 3)
		gt.S(t, result.Message).Contains("partial")
		gt.A(t, result.ErrorMessages).Longer(0)
		gt.S(t, result.ErrorMessages[0]).Contains("page fetch exploded")
	})

	t.Run("cancelled context migrates nothing", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(numberedUsers(10)...)
		tgt := fakes.NewTarget()
		m, _ := newTestMigrator(src, tgt, 2)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		result, err := m.MigrateUsers(cctx, Window{}, 0, 2)
		gt.NoError(t, err).Required()
		gt.Equal(t, result.Users.Fetched, 0)
		gt.Equal(t, len(tgt.Calls()), 0)
		gt.S(t, result.ErrorMessages[0]).Contains("interrupted")
	})

	t.Run("negative limit is a validation error", func(t *testing.T) {
		src := fakes.NewSource()
		m, _ := newTestMigrator(src, fakes.NewTarget(), 1)

		result, err := m.MigrateUsers(ctx, Window{}, -1, 0)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, shared.ErrInvalidArgument))
		gt.B(t, goerr.HasTag(err, ErrTagValidation)).True()
		gt.V(t, result).NotNil()
		gt.Equal(t, len(src.Calls()), 0)
	})

	t.Run("progress reaches a listener and never blocks", func(t *testing.T) {
		progress := make(chan ProgressUpdate, 64)
		src := fakes.NewSource().AddUsers(numberedUsers(6)...)
		m := NewMigrator(MigratorOpts{Source: src, Target: fakes.NewTarget(), Concurrency: 2, Progress: progress})

		_, err := m.MigrateUsers(ctx, Window{}, 0, 2)
		gt.NoError(t, err).Required()
		close(progress)

		var phases []Phase
		for update := range progress {
			phases = append(phases, update.Phase)
		}
		gt.Equal(t, phases[0], FetchUsers)
		gt.Equal(t, phases[len(phases)-1], Complete)

		blocked := NewMigrator(MigratorOpts{Source: src, Target: fakes.NewTarget(), Progress: make(chan ProgressUpdate)})
		result, err := blocked.MigrateUsers(ctx, Window{}, 0, 2)
		gt.NoError(t, err).Required()
		gt.Equal(t, result.Users.Fetched, 6)
	})
}

func TestMigrateChannels(t *testing.T) {
	ctx := context.Background()

	t.Run("sequential pass over mixed channels", func(t *testing.T) {
		empty := sourceChannel("CH1", "L1-1-2", 0, 1)
		broken := sourceChannel("CH2", "L2-1-2", 2, 0)
		broken.Attributes = models.ChannelAttributes{}
		good := sourceChannel("CH3", "L3-1-2", 2, 3)
		failing := sourceChannel("CH4", "L4-1-2", 2, 4)

		src := fakes.NewSource().AddChannels(empty, broken, good, failing)
		tgt := fakes.NewTarget(1, 2)
		tgt.FailWith("UpdateChannel", "L4-1-2", http.StatusInternalServerError)
		m, _ := newTestMigrator(src, tgt, 1)

		result, err := m.MigrateChannels(ctx, Window{}, 0, 0)
		gt.NoError(t, err).Required()

		gt.Equal(t, result.Channels, models.Counters{Fetched: 4, Success: 1, Skipped: 2, Failed: 1})
		gt.Equal(t, result.Users, models.Counters{})
		gt.Equal(t, src.Count("ListChannels", strconv.Itoa(DefaultPageSize)), 1)
	})

	t.Run("limit stops the pass", func(t *testing.T) {
		src := fakes.NewSource().AddChannels(
			sourceChannel("CH1", "L1-1-2", 2, 0),
			sourceChannel("CH2", "L2-1-2", 2, 0),
			sourceChannel("CH3", "L3-1-2", 2, 0),
		)
		m, _ := newTestMigrator(src, fakes.NewTarget(1, 2), 1)

		result, err := m.MigrateChannels(ctx, Window{}, 2, 10)
		gt.NoError(t, err).Required()
		gt.Equal(t, result.Channels.Fetched, 2)
	})

	t.Run("stream error keeps what was migrated", func(t *testing.T) {
		src := fakes.NewSource().AddChannels(
			sourceChannel("CH1", "L1-1-2", 2, 0),
			sourceChannel("CH2", "L2-1-2", 2, 0),
		).FailStreamAfter(1, errors.New("listing broke"))
		m, _ := newTestMigrator(src, fakes.NewTarget(1, 2), 1)

		result, err := m.MigrateChannels(ctx, Window{}, 0, 0)
		gt.NoError(t, err).Required()
		gt.Equal(t, result.Channels, models.Counters{Fetched: 1, Success: 1})
		gt.S(t, result.Message).Contains("partial")
	})
}

// unboundedChannels lists every channel of a user whatever limit is asked for.
type unboundedChannels struct {
	*fakes.Source
}

func (u unboundedChannels) ListUserChannels(ctx context.Context, userID string, pageSize, limit int) iter.Seq2[models.UserChannelRef, error] {
	return u.Source.ListUserChannels(ctx, userID, pageSize, 0)
}

func TestMigrateSingleAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("non positive id is a structured error without calls", func(t *testing.T) {
		for _, id := range []int{0, -4} {
			src, tgt := fakes.NewSource(), fakes.NewTarget()
			m, _ := newTestMigrator(src, tgt, 1)

			result, err := m.MigrateSingleAccount(ctx, Window{}, id, 0, 0)
			gt.Error(t, err)
			gt.True(t, errors.Is(err, shared.ErrInvalidArgument))
			gt.B(t, goerr.HasTag(err, ErrTagValidation)).True()
			gt.V(t, goerr.Values(err)["account_id"]).Equal(id)
			gt.V(t, result).NotNil()
			gt.Equal(t, len(src.Calls())+len(tgt.Calls()), 0)
		}
	})

	t.Run("unknown user aborts before channels", func(t *testing.T) {
		src := fakes.NewSource()
		m, _ := newTestMigrator(src, fakes.NewTarget(), 1)

		result, err := m.MigrateSingleAccount(ctx, Window{}, 9, 0, 0)
		gt.NoError(t, err).Required()
		gt.Equal(t, result.Users.Fetched, 0)
		gt.Equal(t, src.Count("ListUserChannels"), 0)
		gt.S(t, result.Message).Contains("account 9")
	})

	t.Run("failed user aborts before channels", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(sourceUser("9")).AddUserChannels("9", "CH1")
		tgt := fakes.NewTarget()
		tgt.FailWith("CreateUser", "9", http.StatusBadRequest)
		m, _ := newTestMigrator(src, tgt, 1)

		result, err := m.MigrateSingleAccount(ctx, Window{}, 9, 0, 0)
		gt.NoError(t, err).Required()
		gt.Equal(t, result.Users, models.Counters{Fetched: 1, Failed: 1})
		gt.Equal(t, src.Count("ListUserChannels"), 0)
	})

	t.Run("user ignores the window and channels honour it", func(t *testing.T) {
		old := tu.MustParseTime(t, "2020-01-01T00:00:00Z")
		recent := tu.MustParseTime(t, "2024-08-01T00:00:00Z")
		after := tu.MustParseTime(t, "2024-01-01T00:00:00Z")

		user := sourceUser("9")
		user.DateUpdated = &old
		stale := sourceChannel("CH1", "L1-9-2", 2, 1)
		stale.DateUpdated = &old
		fresh := sourceChannel("CH2", "L2-9-2", 2, 2)
		fresh.DateUpdated = &recent

		src := fakes.NewSource().
			AddUsers(user, sourceUser("2")).
			AddChannels(stale, fresh).
			AddUserChannels("9", "CH1", "CH2", "CH404")
		tgt := fakes.NewTarget()
		m, _ := newTestMigrator(src, tgt, 1)

		result, err := m.MigrateSingleAccount(ctx, NewWindow(nil, &after), 9, 0, 0)
		gt.NoError(t, err).Required()

		gt.Equal(t, result.Users, models.Counters{Fetched: 1, Success: 1})
		gt.Equal(t, result.Channels, models.Counters{Fetched: 2, Success: 1, Skipped: 1})
		gt.True(t, tgt.HasUser("2"))
		gt.Equal(t, src.Count("FetchChannel", "CH404"), 1)
		gt.Equal(t, len(result.ErrorMessages), 1)
		gt.S(t, result.ErrorMessages[0]).Contains("CH404")

		_, ok := tgt.Channel("L2-9-2")
		gt.True(t, ok)
	})

	t.Run("failed channel fetches count towards the limit", func(t *testing.T) {
		src := fakes.NewSource().
			AddUsers(sourceUser("9")).
			AddChannels(sourceChannel("CH1", "L1-9", 1, 0)).
			AddUserChannels("9", "CH404", "CH1")
		tgt := fakes.NewTarget()
		m := NewMigrator(MigratorOpts{Source: unboundedChannels{src}, Target: tgt, Sink: &recordingSink{}, Concurrency: 1})

		result, err := m.MigrateSingleAccount(ctx, Window{}, 9, 1, 0)
		gt.NoError(t, err).Required()

		gt.Equal(t, src.Count("FetchChannel"), 1)
		gt.Equal(t, src.Count("FetchChannel", "CH1"), 0)
		gt.Equal(t, result.Channels, models.Counters{})
		gt.S(t, result.ErrorMessages[0]).Contains("CH404")
	})
}

func TestMigrateSingleChannel(t *testing.T) {
	ctx := context.Background()

	t.Run("blank identifier is a structured error", func(t *testing.T) {
		src := fakes.NewSource()
		m, _ := newTestMigrator(src, fakes.NewTarget(), 1)

		_, err := m.MigrateSingleChannel(ctx, Window{}, "   ")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, shared.ErrInvalidArgument))
		gt.Equal(t, len(src.Calls()), 0)
	})

	t.Run("fetch failure is an error and a message", func(t *testing.T) {
		m, _ := newTestMigrator(fakes.NewSource(), fakes.NewTarget(), 1)

		result, err := m.MigrateSingleChannel(ctx, Window{}, "CH404")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, shared.ErrAPIRequest))
		gt.V(t, goerr.Values(err)["status"]).Equal(http.StatusNotFound)
		gt.Equal(t, len(result.ErrorMessages), 1)
		gt.Equal(t, result.Channels.Fetched, 0)
	})

	t.Run("channel found by unique name is migrated", func(t *testing.T) {
		src := fakes.NewSource().AddChannels(sourceChannel("CH1", "L1-1-2", 2, 1))
		tgt := fakes.NewTarget(1, 2)
		m, _ := newTestMigrator(src, tgt, 1)

		result, err := m.MigrateSingleChannel(ctx, Window{}, "L1-1-2")
		gt.NoError(t, err).Required()
		gt.Equal(t, result.Channels, models.Counters{Fetched: 1, Success: 1})
		_, ok := tgt.ChannelMetadata("L1-1-2")
		gt.True(t, ok)
	})
}
