package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/shared"
)

func finishedRun() *models.MigrationRun {
	run := models.NewMigrationRun(models.OperationChannel, "CH123")
	run.SetID("run-1")
	run.SetSequence(4)
	run.Finish(models.Counters{Fetched: 2, Success: 2}, models.Counters{Fetched: 1, Failed: 1}, "channel migration finished", 1)
	return run
}

func TestSlackNotifier(t *testing.T) {
	t.Run("disabled without webhook", func(t *testing.T) {
		n := NewSlackNotifier(shared.NotifyConfig{}, shared.NewLogger(&bytes.Buffer{}))

		gt.False(t, n.Enabled())
		gt.NoError(t, n.Notify(context.Background(), finishedRun()))
	})

	t.Run("posts summary to webhook", func(t *testing.T) {
		var body map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(data, &body)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		n := NewSlackNotifier(shared.NotifyConfig{SlackWebhookURL: srv.URL, SlackChannel: "#migrations"}, shared.NewLogger(&bytes.Buffer{}))
		gt.True(t, n.Enabled())
		gt.NoError(t, n.Notify(context.Background(), finishedRun())).Required()

		gt.V(t, body).NotNil()
		gt.Equal(t, body["channel"], any("#migrations"))
		gt.S(t, body["text"].(string)).Contains("channel CH123 run #4 failed")

		blocks, ok := body["blocks"].([]any)
		gt.True(t, ok)
		gt.A(t, blocks).Longer(2)
	})

	t.Run("webhook errors are returned", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		n := NewSlackNotifier(shared.NotifyConfig{SlackWebhookURL: srv.URL}, shared.NewLogger(&bytes.Buffer{}))
		err := n.Notify(context.Background(), finishedRun())

		gt.Error(t, err)
		gt.S(t, err.Error()).Contains("failed to post run summary")
	})
}

func TestBuildRunMessage(t *testing.T) {
	msg := BuildRunMessage(finishedRun())

	gt.Equal(t, msg.Text, "chatmigrate channel CH123 run #4 failed")
	gt.Equal(t, len(msg.Blocks.BlockSet), 4)

	data, err := json.Marshal(msg)
	gt.NoError(t, err).Required()
	gt.S(t, string(data)).Contains("total fetched from source: 3")
	gt.S(t, string(data)).Contains("channel migration finished")
}
