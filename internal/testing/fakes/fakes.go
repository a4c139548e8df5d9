// package fakes provides in-memory doubles of the platform clients for tests
package fakes

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"slices"
	"strconv"
	"sync"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/services"
)

// Call is one recorded client invocation.
type Call struct {
	Method string
	Key    string
}

type recorder struct {
	mu     sync.Mutex
	calls  []Call
	forced map[Call]int
}

func (r *recorder) record(method, key string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Method: method, Key: key})

	status, ok := r.forced[Call{Method: method, Key: key}]
	if !ok {
		status, ok = r.forced[Call{Method: method, Key: "*"}]
	}
	return status, ok
}

// FailWith forces method to return status for key. Key "*" matches every key.
func (r *recorder) FailWith(method, key string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forced == nil {
		r.forced = make(map[Call]int)
	}
	r.forced[Call{Method: method, Key: key}] = status
}

// Calls returns a copy of the recorded calls in invocation order.
func (r *recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Count returns how many times method was called, optionally restricted to key.
func (r *recorder) Count(method string, key ...string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.calls {
		if c.Method != method {
			continue
		}
		if len(key) > 0 && c.Key != key[0] {
			continue
		}
		n++
	}
	return n
}

// Source is an in-memory [services.SourceReader].
type Source struct {
	recorder

	users        map[string]models.SourceUser
	userOrder    []string
	channels     map[string]models.SourceChannel
	channelOrder []string
	members      map[string][]models.Member
	userChannels map[string][]models.UserChannelRef

	streamErr      error
	streamErrAfter int
}

// NewSource creates an empty [Source].
func NewSource() *Source {
	return &Source{
		users:        make(map[string]models.SourceUser),
		channels:     make(map[string]models.SourceChannel),
		members:      make(map[string][]models.Member),
		userChannels: make(map[string][]models.UserChannelRef),
	}
}

// AddUsers registers users in listing order.
func (s *Source) AddUsers(users ...models.SourceUser) *Source {
	for _, u := range users {
		if _, ok := s.users[u.ID]; !ok {
			s.userOrder = append(s.userOrder, u.ID)
		}
		s.users[u.ID] = u
	}
	return s
}

// AddChannels registers channels in listing order. They can be fetched by SID or unique name.
func (s *Source) AddChannels(channels ...models.SourceChannel) *Source {
	for _, c := range channels {
		if _, ok := s.channels[c.SID]; !ok {
			s.channelOrder = append(s.channelOrder, c.SID)
		}
		s.channels[c.SID] = c
	}
	return s
}

// SetMembers sets the live member listing of a channel.
func (s *Source) SetMembers(channelSID string, identities ...string) *Source {
	members := make([]models.Member, 0, len(identities))
	for _, id := range identities {
		members = append(members, models.Member{Identity: id})
	}
	s.members[channelSID] = members
	return s
}

// AddUserChannels associates channels with a user for ListUserChannels.
func (s *Source) AddUserChannels(userID string, channelSIDs ...string) *Source {
	for _, sid := range channelSIDs {
		s.userChannels[userID] = append(s.userChannels[userID], models.UserChannelRef{UserID: userID, ChannelSID: sid})
	}
	return s
}

// FailStreamAfter makes every listing yield err after n items.
func (s *Source) FailStreamAfter(n int, err error) *Source {
	s.streamErr, s.streamErrAfter = err, n
	return s
}

func (s *Source) FetchUser(ctx context.Context, id string) services.Result[models.SourceUser] {
	if status, ok := s.record("FetchUser", id); ok {
		return services.Fail[models.SourceUser](status, "forced failure for user %s", id)
	}

	u, ok := s.users[id]
	if !ok {
		return services.Fail[models.SourceUser](http.StatusNotFound, "user %s not found", id)
	}
	return services.Ok(http.StatusOK, u.Clone())
}

func (s *Source) FetchChannel(ctx context.Context, id string) services.Result[models.SourceChannel] {
	if status, ok := s.record("FetchChannel", id); ok {
		return services.Fail[models.SourceChannel](status, "forced failure for channel %s", id)
	}

	if c, ok := s.channels[id]; ok {
		return services.Ok(http.StatusOK, c)
	}
	for _, c := range s.channels {
		if c.UniqueName == id {
			return services.Ok(http.StatusOK, c)
		}
	}
	return services.Fail[models.SourceChannel](http.StatusNotFound, "channel %s not found", id)
}

func (s *Source) ListChannelMembers(ctx context.Context, channelID string) services.Result[[]models.Member] {
	if status, ok := s.record("ListChannelMembers", channelID); ok {
		return services.Fail[[]models.Member](status, "forced failure for members of %s", channelID)
	}
	return services.Ok(http.StatusOK, slices.Clone(s.members[channelID]))
}

func (s *Source) ListUsers(ctx context.Context, pageSize, limit int) iter.Seq2[models.SourceUser, error] {
	s.record("ListUsers", strconv.Itoa(pageSize))
	items := make([]models.SourceUser, 0, len(s.userOrder))
	for _, id := range s.userOrder {
		items = append(items, s.users[id].Clone())
	}
	return stream(items, limit, s.streamErr, s.streamErrAfter)
}

func (s *Source) ListChannels(ctx context.Context, pageSize, limit int) iter.Seq2[models.SourceChannel, error] {
	s.record("ListChannels", strconv.Itoa(pageSize))
	items := make([]models.SourceChannel, 0, len(s.channelOrder))
	for _, sid := range s.channelOrder {
		items = append(items, s.channels[sid])
	}
	return stream(items, limit, s.streamErr, s.streamErrAfter)
}

func (s *Source) ListUserChannels(ctx context.Context, userID string, pageSize, limit int) iter.Seq2[models.UserChannelRef, error] {
	s.record("ListUserChannels", userID)
	return stream(slices.Clone(s.userChannels[userID]), limit, s.streamErr, s.streamErrAfter)
}

func stream[T any](items []T, limit int, err error, errAfter int) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		for i, item := range items {
			if err != nil && i == errAfter {
				yield(zero, err)
				return
			}
			if limit > 0 && i >= limit {
				return
			}
			if !yield(item, nil) {
				return
			}
		}
		if err != nil && errAfter >= len(items) {
			yield(zero, err)
		}
	}
}

// Target is an in-memory [services.TargetWriter]. Users and channels that exist on it are tracked so that
// update calls report 404 for unknown entities, like the real platform.
type Target struct {
	recorder

	users       map[string]models.UserUpsertRequest
	userMeta    map[string]models.UserMetadata
	channels    map[string]models.ChannelUpsertRequest
	channelMeta map[string]models.ChannelMetadata
	frozen      map[string]bool
	blocks      map[int][]int
}

// NewTarget creates a [Target] on which the given user ids already exist.
func NewTarget(existing ...int) *Target {
	t := &Target{
		users:       make(map[string]models.UserUpsertRequest),
		userMeta:    make(map[string]models.UserMetadata),
		channels:    make(map[string]models.ChannelUpsertRequest),
		channelMeta: make(map[string]models.ChannelMetadata),
		frozen:      make(map[string]bool),
		blocks:      make(map[int][]int),
	}
	for _, id := range existing {
		key := strconv.Itoa(id)
		t.users[key] = models.UserUpsertRequest{UserID: key}
	}
	return t
}

// AddChannel makes a channel exist on the target, optionally frozen.
func (t *Target) AddChannel(url string, frozen bool) *Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channels[url] = models.ChannelUpsertRequest{ChannelURL: url, Freeze: frozen}
	t.frozen[url] = frozen
	return t
}

// HasUser reports whether a user exists on the target.
func (t *Target) HasUser(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.users[id]
	return ok
}

// User returns the last request written for a user.
func (t *Target) User(id string) (models.UserUpsertRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.users[id]
	return u, ok
}

// Channel returns the last request written for a channel.
func (t *Target) Channel(url string) (models.ChannelUpsertRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.channels[url]
	return c, ok
}

// ChannelMetadata returns the metadata written for a channel.
func (t *Target) ChannelMetadata(url string) (models.ChannelMetadata, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.channelMeta[url]
	return m, ok
}

// Frozen reports the freeze state of a channel.
func (t *Target) Frozen(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frozen[url]
}

// Blocked returns the ids blocked by originator.
func (t *Target) Blocked(originator int) []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.blocks[originator])
}

func (t *Target) resource(req models.UserUpsertRequest) models.UserResource {
	return models.UserResource{UserID: req.UserID, Nickname: req.Nickname}
}

func (t *Target) CreateUser(ctx context.Context, req models.UserUpsertRequest) services.Result[models.UserResource] {
	if status, ok := t.record("CreateUser", req.UserID); ok {
		return services.Fail[models.UserResource](status, "forced failure creating user %s", req.UserID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.users[req.UserID]; ok {
		return services.Fail[models.UserResource](http.StatusConflict, "user %s already exists", req.UserID)
	}
	t.users[req.UserID] = req
	return services.Ok(http.StatusCreated, t.resource(req))
}

func (t *Target) UpdateUser(ctx context.Context, req models.UserUpsertRequest) services.Result[models.UserResource] {
	if status, ok := t.record("UpdateUser", req.UserID); ok {
		return services.Fail[models.UserResource](status, "forced failure updating user %s", req.UserID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.users[req.UserID]; !ok {
		return services.Fail[models.UserResource](http.StatusNotFound, "user %s not found", req.UserID)
	}
	t.users[req.UserID] = req
	return services.Ok(http.StatusOK, t.resource(req))
}

func (t *Target) CreateUserMetadata(ctx context.Context, userID string, meta models.UserMetadata) services.Result[models.UserMetadata] {
	if status, ok := t.record("CreateUserMetadata", userID); ok {
		return services.Fail[models.UserMetadata](status, "forced failure creating metadata of %s", userID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.userMeta[userID] = meta
	return services.Ok(http.StatusCreated, meta)
}

func (t *Target) UpdateUserMetadata(ctx context.Context, userID string, meta models.UserMetadata) services.Result[models.UserMetadata] {
	if status, ok := t.record("UpdateUserMetadata", userID); ok {
		return services.Fail[models.UserMetadata](status, "forced failure updating metadata of %s", userID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.userMeta[userID]; !ok {
		return services.Fail[models.UserMetadata](http.StatusNotFound, "metadata of %s not found", userID)
	}
	t.userMeta[userID] = meta
	return services.Ok(http.StatusOK, meta)
}

func (t *Target) channelResource(req models.ChannelUpsertRequest) models.ChannelResource {
	return models.ChannelResource{
		Name:        req.Name,
		ChannelURL:  req.ChannelURL,
		Data:        req.Data,
		MemberCount: len(req.UserIDs),
		Freeze:      t.frozen[req.ChannelURL],
	}
}

// missingMember returns the first of ids that is not a user on the target. The caller holds t.mu.
func (t *Target) missingMember(ids []int) (int, bool) {
	for _, id := range ids {
		if _, ok := t.users[strconv.Itoa(id)]; !ok {
			return id, true
		}
	}
	return 0, false
}

func (t *Target) CreateChannel(ctx context.Context, req models.ChannelUpsertRequest) services.Result[models.ChannelResource] {
	if status, ok := t.record("CreateChannel", req.ChannelURL); ok {
		return services.Fail[models.ChannelResource](status, "forced failure creating channel %s", req.ChannelURL)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.channels[req.ChannelURL]; ok {
		return services.Fail[models.ChannelResource](http.StatusConflict, "channel %s already exists", req.ChannelURL)
	}
	if id, ok := t.missingMember(req.UserIDs); ok {
		return services.Fail[models.ChannelResource](http.StatusNotFound, "user %d not found", id)
	}
	t.channels[req.ChannelURL] = req
	return services.Ok(http.StatusCreated, t.channelResource(req))
}

func (t *Target) UpdateChannel(ctx context.Context, req models.ChannelUpsertRequest) services.Result[models.ChannelResource] {
	if status, ok := t.record("UpdateChannel", req.ChannelURL); ok {
		return services.Fail[models.ChannelResource](status, "forced failure updating channel %s", req.ChannelURL)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.channels[req.ChannelURL]; !ok {
		return services.Fail[models.ChannelResource](http.StatusNotFound, "channel %s not found", req.ChannelURL)
	}
	if id, ok := t.missingMember(req.UserIDs); ok {
		return services.Fail[models.ChannelResource](http.StatusNotFound, "user %d not found", id)
	}
	t.channels[req.ChannelURL] = req
	return services.Ok(http.StatusOK, t.channelResource(req))
}

func (t *Target) CreateChannelMetadata(ctx context.Context, url string, meta models.ChannelMetadata) services.Result[models.ChannelMetadata] {
	if status, ok := t.record("CreateChannelMetadata", url); ok {
		return services.Fail[models.ChannelMetadata](status, "forced failure creating metadata of %s", url)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.channelMeta[url] = meta
	return services.Ok(http.StatusCreated, meta)
}

func (t *Target) UpdateChannelMetadata(ctx context.Context, url string, meta models.ChannelMetadata) services.Result[models.ChannelMetadata] {
	if status, ok := t.record("UpdateChannelMetadata", url); ok {
		return services.Fail[models.ChannelMetadata](status, "forced failure updating metadata of %s", url)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.channelMeta[url]; !ok {
		return services.Fail[models.ChannelMetadata](http.StatusNotFound, "metadata of %s not found", url)
	}
	t.channelMeta[url] = meta
	return services.Ok(http.StatusOK, meta)
}

func (t *Target) BlockUsers(ctx context.Context, originatorID int, targetIDs []int) services.Result[[]models.UserResource] {
	key := strconv.Itoa(originatorID)
	if status, ok := t.record("BlockUsers", key); ok {
		return services.Fail[[]models.UserResource](status, "forced failure blocking for %d", originatorID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	blocked := make([]models.UserResource, 0, len(targetIDs))
	for _, id := range targetIDs {
		if _, ok := t.users[strconv.Itoa(id)]; !ok {
			return services.Fail[[]models.UserResource](http.StatusNotFound, "user %d not found", id)
		}
		blocked = append(blocked, models.UserResource{UserID: strconv.Itoa(id)})
	}
	t.blocks[originatorID] = append(t.blocks[originatorID], targetIDs...)
	return services.Ok(http.StatusOK, blocked)
}

func (t *Target) FreezeChannel(ctx context.Context, url string, freeze bool) services.Result[models.ChannelResource] {
	if status, ok := t.record("FreezeChannel", url); ok {
		return services.Fail[models.ChannelResource](status, "forced failure freezing %s", url)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.channels[url]
	if !ok {
		return services.Fail[models.ChannelResource](http.StatusNotFound, "channel %s not found", url)
	}
	t.frozen[url] = freeze
	return services.Ok(http.StatusOK, t.channelResource(req))
}

func (t *Target) WhichAreAbsent(ctx context.Context, ids []int) services.Result[[]int] {
	if status, ok := t.record("WhichAreAbsent", fmt.Sprint(ids)); ok {
		return services.Fail[[]int](status, "forced failure querying %v", ids)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	absent := []int{}
	for _, id := range ids {
		if _, ok := t.users[strconv.Itoa(id)]; !ok {
			absent = append(absent, id)
		}
	}
	return services.Ok(http.StatusOK, absent)
}

var (
	_ services.SourceReader = (*Source)(nil)
	_ services.TargetWriter = (*Target)(nil)
)
