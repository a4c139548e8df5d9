// package notify posts run summaries to a Slack incoming webhook
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"

	"github.com/desertthunder/chatmigrate/internal/formatter"
	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/shared"
)

// SlackNotifier posts the statistics block of a finished run to an incoming webhook.
//
// A notifier without a webhook URL is disabled and Notify returns immediately.
type SlackNotifier struct {
	webhookURL string
	channel    string
	client     *http.Client
	logger     *log.Logger
}

// NewSlackNotifier creates a notifier from the notify config section.
func NewSlackNotifier(cfg shared.NotifyConfig, logger *log.Logger) *SlackNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &SlackNotifier{
		webhookURL: strings.TrimSpace(cfg.SlackWebhookURL),
		channel:    cfg.SlackChannel,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *SlackNotifier) Enabled() bool { return n.webhookURL != "" }

// Notify posts the summary of run. Errors are returned for the caller to log; they never change the
// outcome of the run.
func (n *SlackNotifier) Notify(ctx context.Context, run *models.MigrationRun) error {
	if !n.Enabled() {
		return nil
	}

	msg := BuildRunMessage(run)
	msg.Channel = n.channel

	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		return goerr.Wrap(err, "failed to post run summary to slack",
			goerr.V("run_id", run.ID()),
			goerr.V("operation", string(run.Operation())))
	}

	n.logger.Debug("posted run summary", "run_id", run.ID(), "status", run.Status())
	return nil
}

// BuildRunMessage renders run as a webhook message: a header, a context line and the statistics block.
func BuildRunMessage(run *models.MigrationRun) *slack.WebhookMessage {
	title := fmt.Sprintf("chatmigrate %s run #%d %s", run.Operation(), run.Sequence(), run.Status())
	if run.TargetID() != "" {
		title = fmt.Sprintf("chatmigrate %s %s run #%d %s", run.Operation(), run.TargetID(), run.Sequence(), run.Status())
	}

	details := fmt.Sprintf("run `%s` took %s", run.ID(), run.Duration().Round(time.Millisecond))
	if run.ErrorCount() > 0 {
		details += fmt.Sprintf(" • %d error(s)", run.ErrorCount())
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, title, false, false)),
		slack.NewContextBlock("", slack.NewTextBlockObject(slack.MarkdownType, details, false, false)),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "```"+formatter.StatisticsBlock(run.Users(), run.Channels())+"```", false, false),
			nil,
			nil,
		),
	}
	if run.Message() != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, run.Message(), false, false),
			nil,
			nil,
		))
	}

	return &slack.WebhookMessage{
		Text:   title,
		Blocks: &slack.Blocks{BlockSet: blocks},
	}
}
