package tasks

import (
	"slices"
	"sync"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/testing/fakes"
)

type recorded struct {
	Kind        models.EntityKind
	ID          string
	Disposition models.Disposition
}

type recordingSink struct {
	mu      sync.Mutex
	records []recorded
	lines   []string
}

func (s *recordingSink) Log(msg string, _ ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, msg)
}

func (s *recordingSink) Record(kind models.EntityKind, id string, d models.Disposition, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, recorded{Kind: kind, ID: id, Disposition: d})
}

func (s *recordingSink) Records() []recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

func newTestMigrator(src *fakes.Source, tgt *fakes.Target, concurrency int) (*Migrator, *recordingSink) {
	sink := &recordingSink{}
	return NewMigrator(MigratorOpts{Source: src, Target: tgt, Sink: sink, Concurrency: concurrency}), sink
}

func sourceUser(id string, blocked ...int) models.SourceUser {
	return models.SourceUser{
		ID:           id,
		FriendlyName: "user " + id,
		Attributes:   models.UserAttributes{BlockedUsers: blocked},
	}
}

func sourceChannel(sid, uniqueName string, members, listingID int) models.SourceChannel {
	return models.SourceChannel{
		SID:          sid,
		UniqueName:   uniqueName,
		FriendlyName: "Channel " + sid,
		MembersCount: members,
		Attributes: models.ChannelAttributes{
			ListingID:    listingID,
			BuyerID:      1,
			SellerID:     2,
			ListingTitle: "Bike",
			ListingState: 1,
		},
	}
}

// indexOf returns the position of the first call matching method and key, or -1.
func indexOf(calls []fakes.Call, method, key string) int {
	return slices.Index(calls, fakes.Call{Method: method, Key: key})
}
