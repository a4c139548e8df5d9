package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/desertthunder/chatmigrate/internal/models"
	"github.com/desertthunder/chatmigrate/internal/shared"
)

func newSourceServer(t *testing.T, handler http.HandlerFunc) (*SourceClient, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := shared.SourceConfig{
		AccountSID:     "AC1",
		AuthToken:      "token",
		ChatServiceSID: "IS1",
		BaseURL:        server.URL,
	}
	return NewSourceClient(cfg, server.Client(), nil), server
}

func TestSourceClient(t *testing.T) {
	t.Run("FetchUser", func(t *testing.T) {
		t.Run("Decodes Attributes", func(t *testing.T) {
			client, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/Services/IS1/Users/42" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				fmt.Fprint(w, `{
					"identity": "42",
					"friendly_name": "Alice",
					"attributes": "{\"blocked_users\":[7,8],\"blocked_by_admin_at\":\"2021-05-01T10:00:00Z\",\"profile_image_url\":\"https://img/a.png\"}",
					"date_created": "2020-01-01T00:00:00Z",
					"date_updated": "2021-06-01T00:00:00Z"
				}`)
			})

			res := client.FetchUser(context.Background(), "42")
			if !res.IsSuccess() {
				t.Fatalf("expected success, got %s", res.FormattedMessage())
			}

			user := res.Payload
			if user.ID != "42" || user.FriendlyName != "Alice" {
				t.Errorf("unexpected user %+v", user)
			}
			if len(user.Attributes.BlockedUsers) != 2 || user.Attributes.BlockedByAdminAt == nil {
				t.Errorf("attributes not decoded: %+v", user.Attributes)
			}
			if user.ProfileImageURL != "https://img/a.png" {
				t.Errorf("expected profile image url, got %q", user.ProfileImageURL)
			}
			if user.DateUpdated == nil || user.DateUpdated.Year() != 2021 {
				t.Errorf("unexpected date_updated %v", user.DateUpdated)
			}
		})

		t.Run("Invalid Id Makes No Request", func(t *testing.T) {
			var calls atomic.Int32
			client, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
			})

			for _, id := range []string{"", "abc", "0", "-3"} {
				res := client.FetchUser(context.Background(), id)
				if res.StatusCode != http.StatusBadRequest {
					t.Errorf("FetchUser(%q) status = %d, want 400", id, res.StatusCode)
				}
			}
			if calls.Load() != 0 {
				t.Errorf("expected no requests, got %d", calls.Load())
			}
		})

		t.Run("Maps Auth Failure", func(t *testing.T) {
			client, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprint(w, `{"code": 20003, "message": "Authenticate", "status": 403}`)
			})

			res := client.FetchUser(context.Background(), "42")
			if res.StatusCode != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", res.StatusCode)
			}
			if !strings.Contains(res.Message, "Authenticate") {
				t.Errorf("expected vendor message, got %q", res.Message)
			}
		})

		t.Run("Passes Through Not Found", func(t *testing.T) {
			client, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			})

			if res := client.FetchUser(context.Background(), "42"); !res.IsNotFound() {
				t.Errorf("expected 404, got %d", res.StatusCode)
			}
		})
	})

	t.Run("FetchChannel", func(t *testing.T) {
		client, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{
				"sid": "CH1",
				"unique_name": "chat-42-43",
				"members_count": 2,
				"attributes": "{\"listing_id\":9,\"buyer_id\":42,\"seller_id\":43,\"is_frozen\":true}"
			}`)
		})

		res := client.FetchChannel(context.Background(), "CH1")
		if !res.IsSuccess() {
			t.Fatalf("expected success, got %s", res.FormattedMessage())
		}
		if res.Payload.Attributes.ListingID != 9 || !res.Payload.Attributes.IsFrozen {
			t.Errorf("attributes not decoded: %+v", res.Payload.Attributes)
		}

		if blank := client.FetchChannel(context.Background(), "  "); blank.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400 for blank identifier, got %d", blank.StatusCode)
		}
	})

	t.Run("ListUsers", func(t *testing.T) {
		t.Run("Follows Pages", func(t *testing.T) {
			var server *httptest.Server
			client, server := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("Page") == "1" {
					fmt.Fprint(w, `{"users":[{"identity":"3"}],"meta":{"next_page_url":null}}`)
					return
				}
				if r.URL.Query().Get("PageSize") != "2" {
					t.Errorf("expected PageSize=2, got %s", r.URL.RawQuery)
				}
				fmt.Fprintf(w, `{"users":[{"identity":"1"},{"identity":"2"}],"meta":{"next_page_url":"%s/Services/IS1/Users?PageSize=2&Page=1"}}`, server.URL)
			})

			var ids []string
			for user, err := range client.ListUsers(context.Background(), 2, 0) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				ids = append(ids, user.ID)
			}
			if strings.Join(ids, ",") != "1,2,3" {
				t.Errorf("expected users 1,2,3, got %v", ids)
			}
		})

		t.Run("Stops At Limit", func(t *testing.T) {
			client, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"users":[{"identity":"1"},{"identity":"2"},{"identity":"3"}],"meta":{}}`)
			})

			count := 0
			for _, err := range client.ListUsers(context.Background(), 0, 2) {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				count++
			}
			if count != 2 {
				t.Errorf("expected 2 users, got %d", count)
			}
		})

		t.Run("Yields Error", func(t *testing.T) {
			client, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			})

			var gotErr error
			for _, err := range client.ListUsers(context.Background(), 0, 0) {
				gotErr = err
			}
			if gotErr == nil {
				t.Error("expected streaming error")
			}
		})
	})

	t.Run("ListChannels", func(t *testing.T) {
		client, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("Type") != "private" {
				t.Errorf("expected Type=private, got %s", r.URL.RawQuery)
			}
			fmt.Fprint(w, `{"channels":[{"sid":"CH1","unique_name":"c-1-2","members_count":2}],"meta":{}}`)
		})

		var channels []models.SourceChannel
		for c, err := range client.ListChannels(context.Background(), 10, 0) {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			channels = append(channels, c)
		}
		if len(channels) != 1 || channels[0].UniqueName != "c-1-2" {
			t.Errorf("unexpected channels %+v", channels)
		}
	})

	t.Run("ListUserChannels", func(t *testing.T) {
		client, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/Services/IS1/Users/42/Channels" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			fmt.Fprint(w, `{"channels":[{"channel_sid":"CH1"},{"channel_sid":"CH2"}],"meta":{}}`)
		})

		var refs []models.UserChannelRef
		for ref, err := range client.ListUserChannels(context.Background(), "42", 0, 0) {
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			refs = append(refs, ref)
		}
		if len(refs) != 2 || refs[1].ChannelSID != "CH2" || refs[0].UserID != "42" {
			t.Errorf("unexpected refs %+v", refs)
		}
	})

	t.Run("ListChannelMembers", func(t *testing.T) {
		client, _ := newSourceServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"members":[{"identity":"42"}],"meta":{}}`)
		})

		res := client.ListChannelMembers(context.Background(), "CH1")
		if !res.IsSuccess() || len(res.Payload) != 1 || res.Payload[0].Identity != "42" {
			t.Errorf("unexpected members result %+v", res)
		}
	})
}
