package runs

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/repositories"
	"github.com/desertthunder/chatmigrate/internal/shared"
	"github.com/desertthunder/chatmigrate/internal/tasks"
	"github.com/desertthunder/chatmigrate/internal/testing/fakes"
)

type recordingNotifier struct {
	mu   sync.Mutex
	runs []*models.MigrationRun
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, run *models.MigrationRun) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, run)
	return n.err
}

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(":memory:")
	gt.NoError(t, err).Required()
	shared.ConfigureDatabase(db, 1, 1)
	gt.NoError(t, shared.RunMigrations(db)).Required()
	t.Cleanup(func() { db.Close() })
	return db
}

func user(id string, blocked ...int) models.SourceUser {
	return models.SourceUser{ID: id, FriendlyName: "user " + id, Attributes: models.UserAttributes{BlockedUsers: blocked}}
}

func channel(sid, uniqueName string) models.SourceChannel {
	return models.SourceChannel{
		SID:          sid,
		UniqueName:   uniqueName,
		FriendlyName: "Channel " + sid,
		MembersCount: 2,
		Attributes:   models.ChannelAttributes{ListingID: 7, BuyerID: 1, SellerID: 2},
	}
}

func newService(t *testing.T, src *fakes.Source, tgt *fakes.Target, db *sql.DB, notifier Notifier) (*Service, *bytes.Buffer) {
	t.Helper()
	var console bytes.Buffer
	opts := Opts{
		Source:      src,
		Target:      tgt,
		Logger:      shared.NewLogger(&console),
		Concurrency: 2,
		MaxPageSize: 1000,
		LogDir:      filepath.Join(t.TempDir(), "Logs"),
	}
	if db != nil {
		opts.Runs = repositories.NewRunRepository(db)
		opts.Outcomes = repositories.NewOutcomeRepository(db)
	}
	if notifier != nil {
		opts.Notifier = notifier
	}
	return NewService(opts), &console
}

func TestExecute(t *testing.T) {
	t.Run("users run is stored with outcomes", func(t *testing.T) {
		db := setupDB(t)
		src := fakes.NewSource().AddUsers(user("1"), user("2"), user("3"))
		tgt := fakes.NewTarget()
		tgt.FailWith("CreateUser", "3", 500)
		notifier := &recordingNotifier{}
		svc, _ := newService(t, src, tgt, db, notifier)

		exec, err := svc.Execute(context.Background(), Request{Operation: models.OperationUsers, PageSize: 2}, nil)
		gt.NoError(t, err).Required()

		gt.Equal(t, exec.Result.Users, models.Counters{Fetched: 3, Success: 2, Failed: 1})
		gt.S(t, exec.Statistics).Contains("users failed: 1")
		gt.Equal(t, exec.Run.Status(), models.RunStatusFailed)

		stored, err := repositories.NewRunRepository(db).Get(exec.Run.ID())
		gt.NoError(t, err).Required()
		gt.Equal(t, stored.Users(), exec.Result.Users)
		gt.Equal(t, stored.PageSize(), 2)
		gt.V(t, stored.FinishedAt()).NotNil()

		counts, err := repositories.NewOutcomeRepository(db).CountByDisposition(exec.Run.ID())
		gt.NoError(t, err).Required()
		gt.Equal(t, counts[models.Success], 2)
		gt.Equal(t, counts[models.Failure], 1)

		gt.Equal(t, len(notifier.runs), 1)
		gt.Equal(t, notifier.runs[0].ID(), exec.Run.ID())
	})

	t.Run("works without history or notifier", func(t *testing.T) {
		src := fakes.NewSource().AddChannels(channel("CH1", "L7-1-2"))
		svc, _ := newService(t, src, fakes.NewTarget(1, 2), nil, nil)

		exec, err := svc.Execute(context.Background(), Request{Operation: models.OperationChannel, TargetID: "CH1"}, nil)
		gt.NoError(t, err).Required()
		gt.Equal(t, exec.Result.Channels, models.Counters{Fetched: 1, Success: 1})
		gt.Equal(t, exec.Run.Status(), models.RunStatusCompleted)
		gt.Equal(t, exec.Run.ID(), "")
	})

	t.Run("log files are written when requested", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(user("1"))
		svc, _ := newService(t, src, fakes.NewTarget(), nil, nil)

		exec, err := svc.Execute(context.Background(), Request{Operation: models.OperationUsers, LogToFile: true}, nil)
		gt.NoError(t, err).Required()
		gt.Equal(t, len(exec.LogFiles), 2)
		gt.S(t, exec.LogFiles[0]).Contains("migration_log_")
		gt.S(t, exec.LogFiles[1]).Contains("successful_entities_")
	})

	t.Run("invalid account id fails the run", func(t *testing.T) {
		db := setupDB(t)
		src := fakes.NewSource()
		svc, _ := newService(t, src, fakes.NewTarget(), db, nil)

		exec, err := svc.Execute(context.Background(), Request{Operation: models.OperationAccount, TargetID: "abc"}, nil)
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, tasks.ErrTagValidation))
		gt.True(t, errors.Is(err, shared.ErrInvalidArgument))
		gt.Equal(t, len(src.Calls()), 0)

		stored, gerr := repositories.NewRunRepository(db).Get(exec.Run.ID())
		gt.NoError(t, gerr).Required()
		gt.Equal(t, stored.Status(), models.RunStatusFailed)
		gt.S(t, stored.Message()).Contains("positive integer")
	})

	t.Run("unknown operation is rejected before a run starts", func(t *testing.T) {
		svc, _ := newService(t, fakes.NewSource(), fakes.NewTarget(), nil, nil)

		exec, err := svc.Execute(context.Background(), Request{Operation: "messages"}, nil)
		gt.Error(t, err)
		gt.V(t, exec).Nil()
	})

	t.Run("oversized page size falls back to the default", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(user("1"))
		svc, console := newService(t, src, fakes.NewTarget(), nil, nil)

		_, err := svc.Execute(context.Background(), Request{Operation: models.OperationUsers, PageSize: 5000}, nil)
		gt.NoError(t, err).Required()
		gt.Equal(t, src.Count("ListUsers", "100"), 1)
		gt.S(t, console.String()).Contains("page size too large")
	})

	t.Run("notification failures are logged", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(user("1"))
		svc, console := newService(t, src, fakes.NewTarget(), nil, &recordingNotifier{err: errors.New("webhook down")})

		_, err := svc.Execute(context.Background(), Request{Operation: models.OperationUsers}, nil)
		gt.NoError(t, err)
		gt.S(t, console.String()).Contains("run notification failed")
	})

	t.Run("progress reaches the channel", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(user("1"), user("2"))
		svc, _ := newService(t, src, fakes.NewTarget(), nil, nil)
		progress := make(chan tasks.ProgressUpdate, 32)

		_, err := svc.Execute(context.Background(), Request{Operation: models.OperationUsers}, progress)
		gt.NoError(t, err).Required()
		close(progress)

		var last tasks.ProgressUpdate
		for u := range progress {
			last = u
		}
		gt.Equal(t, last.Phase, tasks.Complete)
	})
}

func TestExecuteFromFile(t *testing.T) {
	t.Run("users are migrated as accounts", func(t *testing.T) {
		src := fakes.NewSource().AddUsers(user("1"), user("2"), user("3"))
		tgt := fakes.NewTarget()
		svc, _ := newService(t, src, tgt, nil, nil)

		ids := ReadBatches(strings.NewReader("1\n\n2\nnope\n3\n"), 2)
		exec, err := svc.Execute(context.Background(), Request{Operation: models.OperationUsers, IDs: ids}, nil)
		gt.NoError(t, err).Required()

		gt.Equal(t, exec.Result.Users, models.Counters{Fetched: 3, Success: 3})
		gt.Equal(t, len(exec.Result.ErrorMessages), 1)
		gt.S(t, exec.Result.ErrorMessages[0]).Contains("user nope")
		gt.Equal(t, src.Count("ListUsers"), 0)
		gt.Equal(t, src.Count("ListUserChannels"), 3)
		gt.True(t, tgt.HasUser("2"))
	})

	t.Run("channels honour the limit", func(t *testing.T) {
		src := fakes.NewSource().AddChannels(channel("CH1", "L7-1-2"), channel("CH2", "L8-1-2"), channel("CH3", "L9-1-2"))
		svc, _ := newService(t, src, fakes.NewTarget(1, 2), nil, nil)

		ids := ReadBatches(strings.NewReader("CH1\nCH2\nCH3\n"), 2)
		exec, err := svc.Execute(context.Background(), Request{Operation: models.OperationChannels, IDs: ids, Limit: 2}, nil)
		gt.NoError(t, err).Required()

		gt.Equal(t, exec.Result.Channels, models.Counters{Fetched: 2, Success: 2})
		gt.Equal(t, src.Count("FetchChannel", "CH3"), 0)
	})

	t.Run("unknown channels add messages", func(t *testing.T) {
		src := fakes.NewSource().AddChannels(channel("CH1", "L7-1-2"))
		svc, _ := newService(t, src, fakes.NewTarget(1, 2), nil, nil)

		ids := ReadBatches(strings.NewReader("CH1\nCH404\n"), 0)
		exec, err := svc.Execute(context.Background(), Request{Operation: models.OperationChannels, IDs: ids}, nil)
		gt.NoError(t, err).Required()

		gt.Equal(t, exec.Result.Channels, models.Counters{Fetched: 1, Success: 1})
		gt.Equal(t, len(exec.Result.ErrorMessages), 1)
		gt.S(t, exec.Result.ErrorMessages[0]).Contains("CH404")
	})

	t.Run("missing file leaves a partial result", func(t *testing.T) {
		svc, _ := newService(t, fakes.NewSource(), fakes.NewTarget(), nil, nil)

		ids := ReadBatchesFromFile(filepath.Join(t.TempDir(), "missing.txt"), 0)
		exec, err := svc.Execute(context.Background(), Request{Operation: models.OperationUsers, IDs: ids}, nil)
		gt.NoError(t, err).Required()
		gt.S(t, exec.Result.Message).Contains("could not be read")
	})
}

func TestReadBatches(t *testing.T) {
	var batches [][]string
	for batch, err := range ReadBatches(strings.NewReader(" a \nb\n\nc\nd\ne\n"), 2) {
		gt.NoError(t, err).Required()
		batches = append(batches, batch)
	}

	gt.Equal(t, batches, [][]string{{"a", "b"}, {"c", "d"}, {"e"}})

	count := 0
	for range ReadBatches(strings.NewReader("\n\n"), 2) {
		count++
	}
	gt.Equal(t, count, 0)
}

func TestParseAccountID(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"42", 42, false},
		{" 7 ", 7, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAccountID(tt.in)
			if tt.wantErr {
				gt.Error(t, err)
				return
			}
			gt.NoError(t, err)
			gt.Equal(t, got, tt.want)
		})
	}
}
