package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelpest/fieldsync/internal/domain"
)

func TestSubmitPlacement(t *testing.T) {
	var gotBody placementRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/placements", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]int64{"id": 501})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "secret-token", 5*time.Second)
	serverID, err := c.SubmitPlacement(context.Background(), &domain.PendingPlacement{
		ClientRef:  "ref-1",
		NaturalKey: "BOX-0001",
		SiteID:     7,
		TypeID:     2,
		CreatedAt:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(501), serverID)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "ref-1", gotBody.ClientRef)
	assert.Equal(t, "BOX-0001", gotBody.Code)
	assert.Equal(t, int64(7), gotBody.SiteID)
}

func TestSubmitObservationCarriesPhoto(t *testing.T) {
	var gotBody observationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/observations", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]int64{"id": 9001})
	}))
	t.Cleanup(srv.Close)

	photo := []byte{0xff, 0xd8, 0xff, 0xe0}
	c := NewClient(srv.URL, "", 5*time.Second)
	serverID, err := c.SubmitObservation(context.Background(), &domain.PendingObservation{
		ClientRef: "ref-2",
		TargetID:  501,
		Status:    "activity",
		Photo:     photo,
		PhotoMime: "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9001), serverID)
	assert.Equal(t, int64(501), gotBody.PlacementID)
	assert.Equal(t, photo, gotBody.Photo) // round-trips through base64
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		class  domain.RemoteClass
	}{
		{"bad request", http.StatusBadRequest, domain.RemoteValidation},
		{"unprocessable", http.StatusUnprocessableEntity, domain.RemoteValidation},
		{"conflict", http.StatusConflict, domain.RemoteConflict},
		{"server error", http.StatusInternalServerError, domain.RemoteServer},
		{"bad gateway", http.StatusBadGateway, domain.RemoteServer},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
			}))
			t.Cleanup(srv.Close)

			c := NewClient(srv.URL, "", 5*time.Second)
			_, err := c.SubmitPlacement(context.Background(), &domain.PendingPlacement{NaturalKey: "BOX-0001"})
			require.Error(t, err)
			assert.Equal(t, tc.class, domain.RemoteClassOf(err))

			var re *domain.RemoteError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tc.status, re.Status)
			assert.Equal(t, "nope", re.Message)
		})
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, "", time.Second)
	_, err := c.SubmitObservation(context.Background(), &domain.PendingObservation{TargetID: 1, Status: "clean"})
	require.Error(t, err)
	assert.Equal(t, domain.RemoteNetwork, domain.RemoteClassOf(err))

	var re *domain.RemoteError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.Transient())
}

func TestFetchReferenceEntities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/reference/placement", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"entities": []map[string]any{
				{"id": 501, "code": "BOX-0001", "name": "Dock bait station"},
				{"id": 502, "code": "BOX-0002", "name": "Cellar trap"},
			},
		})
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "", 5*time.Second)
	entities, err := c.FetchReferenceEntities(context.Background(), domain.RefPlacement)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, int64(501), entities[0].ServerID)
	assert.Equal(t, "BOX-0001", entities[0].NaturalKey)
	assert.Equal(t, domain.RefPlacement, entities[0].Kind)
}
