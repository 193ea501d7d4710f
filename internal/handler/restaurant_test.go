package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/whataybo/api/internal/database"
	"github.com/whataybo/api/internal/enum"
	"github.com/whataybo/api/internal/handler"
	"github.com/whataybo/api/internal/middleware"
	"github.com/whataybo/api/internal/realtime"
)

type mockRestaurantStore struct {
	restaurants map[uuid.UUID]database.Restaurant
	zoneWrites  int
}

func newMockRestaurantStore(rs ...database.Restaurant) *mockRestaurantStore {
	m := &mockRestaurantStore{restaurants: make(map[uuid.UUID]database.Restaurant)}
	for _, r := range rs {
		m.restaurants[r.ID] = r
	}
	return m
}

func (m *mockRestaurantStore) GetRestaurantByID(_ context.Context, id uuid.UUID) (database.Restaurant, error) {
	r, ok := m.restaurants[id]
	if !ok {
		return database.Restaurant{}, pgx.ErrNoRows
	}
	return r, nil
}

func (m *mockRestaurantStore) SetRestaurantBusy(_ context.Context, arg database.SetRestaurantBusyParams) (database.Restaurant, error) {
	r, ok := m.restaurants[arg.ID]
	if !ok {
		return database.Restaurant{}, pgx.ErrNoRows
	}
	r.IsBusy = arg.IsBusy
	m.restaurants[r.ID] = r
	return r, nil
}

func (m *mockRestaurantStore) UpdateRestaurantDeliveryZones(_ context.Context, arg database.UpdateRestaurantDeliveryZonesParams) (database.Restaurant, error) {
	r, ok := m.restaurants[arg.ID]
	if !ok {
		return database.Restaurant{}, pgx.ErrNoRows
	}
	m.zoneWrites++
	r.DeliveryZones = arg.DeliveryZones
	m.restaurants[r.ID] = r
	return r, nil
}

func newRestaurantRouter(store *mockRestaurantStore, events realtime.Publisher) *chi.Mux {
	h := handler.NewRestaurantHandler(store, events)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testSecret))
		r.Route("/restaurant", func(r chi.Router) {
			h.RegisterRoutes(r, middleware.RequireRole(enum.UserRoleOwner, enum.UserRoleManager))
		})
	})
	return r
}

func TestRestaurantGet(t *testing.T) {
	restaurant := nileBitesRestaurant()
	router := newRestaurantRouter(newMockRestaurantStore(restaurant), realtime.Nop{})

	rr := doAuthRequest(t, router, "GET", "/restaurant", nil, testClaims(restaurant.ID, enum.UserRoleStaff))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	if resp["slug"] != "nile-bites" || resp["is_busy"] != false {
		t.Errorf("got %v", resp)
	}
	if resp["default_delivery_fee"] != nil {
		t.Errorf("default_delivery_fee: got %v, want null", resp["default_delivery_fee"])
	}
}

func TestRestaurantSetBusy(t *testing.T) {
	restaurant := nileBitesRestaurant()
	store := newMockRestaurantStore(restaurant)
	events := &realtime.Recorder{}
	router := newRestaurantRouter(store, events)
	claims := testClaims(restaurant.ID, enum.UserRoleManager)

	rr := doAuthRequest(t, router, "PATCH", "/restaurant/busy", map[string]bool{"is_busy": true}, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if !store.restaurants[restaurant.ID].IsBusy {
		t.Error("restaurant not marked busy")
	}
	types := events.Types(realtime.RestaurantRoom(restaurant.ID))
	if len(types) != 1 || types[0] != realtime.EventRestaurantUpdated {
		t.Errorf("events: got %v", types)
	}

	// Explicit false is honoured, missing field is not.
	rr = doAuthRequest(t, router, "PATCH", "/restaurant/busy", map[string]bool{"is_busy": false}, claims)
	if rr.Code != http.StatusOK || store.restaurants[restaurant.ID].IsBusy {
		t.Errorf("unset busy: status %d busy=%v", rr.Code, store.restaurants[restaurant.ID].IsBusy)
	}
	rr = doAuthRequest(t, router, "PATCH", "/restaurant/busy", map[string]string{}, claims)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing is_busy: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRestaurantSetBusy_StaffForbidden(t *testing.T) {
	restaurant := nileBitesRestaurant()
	store := newMockRestaurantStore(restaurant)
	router := newRestaurantRouter(store, realtime.Nop{})

	rr := doAuthRequest(t, router, "PATCH", "/restaurant/busy", map[string]bool{"is_busy": true},
		testClaims(restaurant.ID, enum.UserRoleStaff))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusForbidden)
	}
	if store.restaurants[restaurant.ID].IsBusy {
		t.Error("staff toggled busy")
	}
}

func TestRestaurantDeliveryZones(t *testing.T) {
	restaurant := nileBitesRestaurant()
	claims := testClaims(restaurant.ID, enum.UserRoleOwner)

	tests := []struct {
		name   string
		body   interface{}
		status int
		field  string
	}{
		{"valid", []map[string]interface{}{
			{"name": "Zone 1", "fee": 10, "radius": 3},
			{"name": "Zone 2", "fee": 17.5},
		}, http.StatusOK, ""},
		{"empty list", []interface{}{}, http.StatusOK, ""},
		{"negative fee", []map[string]interface{}{{"name": "Zone 1", "fee": -1}}, http.StatusBadRequest, "0.fee"},
		{"missing fee", []map[string]interface{}{{"name": "Zone 1"}}, http.StatusBadRequest, ""},
		{"blank name", []map[string]interface{}{{"name": "   ", "fee": 5}}, http.StatusBadRequest, "0.name"},
		{"unknown field", []map[string]interface{}{{"name": "Zone 1", "fee": 5, "color": "red"}}, http.StatusBadRequest, ""},
		{"duplicate name", []map[string]interface{}{
			{"name": "Zone 1", "fee": 5},
			{"name": " zone 1 ", "fee": 7},
		}, http.StatusBadRequest, "1.name"},
		{"not an array", map[string]interface{}{"name": "Zone 1", "fee": 5}, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockRestaurantStore(restaurant)
			router := newRestaurantRouter(store, realtime.Nop{})

			rr := doAuthRequest(t, router, "PUT", "/restaurant/delivery-zones", tt.body, claims)
			if rr.Code != tt.status {
				t.Fatalf("status: got %d, want %d; body: %s", rr.Code, tt.status, rr.Body.String())
			}
			if tt.status != http.StatusOK {
				if store.zoneWrites != 0 {
					t.Error("zones written despite validation failure")
				}
				if tt.field != "" {
					if fields := detailFields(decodeResponse(t, rr)); !containsString(fields, tt.field) {
						t.Errorf("details: got %v, want %q", fields, tt.field)
					}
				}
			}
		})
	}
}
