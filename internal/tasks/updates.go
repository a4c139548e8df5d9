package tasks

import (
	"fmt"

	"github.com/desertthunder/chatmigrate/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, zero when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchUsers Phase = iota
	MigrateUserChunk
	FetchChannels
	MigrateChannel
	MigrateAccount
	Complete
)

func (p Phase) String() string {
	switch p {
	case FetchUsers:
		return "fetch_users"
	case MigrateUserChunk:
		return "migrate_user_chunk"
	case FetchChannels:
		return "fetch_channels"
	case MigrateChannel:
		return "migrate_channel"
	case MigrateAccount:
		return "migrate_account"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func fetchUsersUpdate(pageSize, limit int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchUsers,
		Total:   limit,
		Message: fmt.Sprintf("Fetching source users in pages of %d...", pageSize),
	}
}

// migrateChunksUpdate carries a snapshot of the running user counters.
func migrateChunksUpdate(merged, launched int, result *MigrationResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MigrateUserChunk,
		Step:    merged,
		Total:   launched,
		Message: fmt.Sprintf("[%d/%d] chunks merged, %d users processed", merged, launched, result.Users.Fetched),
		Data:    result.Users,
	}
}

func fetchChannelsUpdate(pageSize, limit int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchChannels,
		Total:   limit,
		Message: fmt.Sprintf("Fetching source channels in pages of %d...", pageSize),
	}
}

func migrateChannelUpdate(step, total int, ch models.SourceChannel) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MigrateChannel,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d] Migrating channel %s...", step, channelURL(ch)),
		Data:    ch,
	}
}

func migrateAccountUpdate(accountID int, message string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MigrateAccount,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Account %d: %s", accountID, message),
	}
}

func completeUpdate(result *MigrationResult) ProgressUpdate {
	total := result.Total()
	return ProgressUpdate{
		Phase:   Complete,
		Step:    total.Fetched,
		Total:   total.Fetched,
		Message: fmt.Sprintf("Done: %d succeeded, %d skipped, %d failed", total.Success, total.Skipped, total.Failed),
		Data:    result,
	}
}
