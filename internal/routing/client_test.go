package routing

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"driverassist/internal/geo"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, devMode bool, localKey string) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.Client(), server.URL, "test-secret", localKey, devMode, nil, 5*time.Second)
}

func TestResolvePlace(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps/place-coordinates" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		switch r.URL.Query().Get("placeName") {
		case "KLCC":
			io.WriteString(w, `{"status":"OK","coordinates":{"latitude":3.1579,"longitude":101.7116}}`)
		default:
			io.WriteString(w, `{"status":"ZERO_RESULTS"}`)
		}
	}, false, "")

	point, err := client.ResolvePlace(context.Background(), "KLCC")
	if err != nil {
		t.Fatalf("ResolvePlace: %v", err)
	}
	if point.Lat != 3.1579 || point.Lng != 101.7116 {
		t.Fatalf("unexpected point: %+v", point)
	}

	if _, err := client.ResolvePlace(context.Background(), "nowhere"); !errors.Is(err, ErrPlaceNotFound) {
		t.Fatalf("expected ErrPlaceNotFound, got %v", err)
	}
}

func TestGetRouteParsesStepsAndPolyline(t *testing.T) {
	body := `{"routes":[{"overview_polyline":{"points":"_p~iF~ps|U_ulLnnqC"},"legs":[{
		"distance":{"text":"5.2 km","value":5200},
		"duration":{"text":"12 mins"},
		"steps":[
			{"html_instructions":"Head <b>north</b><div style=\"font-size:0.9em\">Toll road</div>","distance":{"text":"300 m","value":300},"end_location":{"lat":3.16,"lng":101.71}},
			{"html_instructions":"Turn <b>left</b>","end_location":{"lat":3.17,"lng":101.72}}
		]}]}]}`
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps/directions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("origin") == "" || r.URL.Query().Get("destination") == "" {
			t.Fatalf("missing origin/destination params")
		}
		io.WriteString(w, body)
	}, false, "")

	route, err := client.GetRoute(context.Background(), geo.Point{Lat: 3.15, Lng: 101.70}, geo.Point{Lat: 3.17, Lng: 101.72})
	if err != nil {
		t.Fatalf("GetRoute: %v", err)
	}
	if len(route.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(route.Steps))
	}
	if route.Steps[0].Instruction != "Head north" {
		t.Fatalf("html not stripped: %q", route.Steps[0].Instruction)
	}
	if route.Steps[0].DistanceMeters != 300 {
		t.Fatalf("unexpected step distance: %d", route.Steps[0].DistanceMeters)
	}
	// missing distance falls back to zero values instead of failing
	if route.Steps[1].DistanceMeters != 0 || route.Steps[1].DistanceText != "" {
		t.Fatalf("expected zero-value distance for step without one: %+v", route.Steps[1])
	}
	if len(route.Polyline) != 2 {
		t.Fatalf("expected 2 polyline points, got %d", len(route.Polyline))
	}
	if route.DistanceText != "5.2 km" || route.DurationText != "12 mins" {
		t.Fatalf("unexpected leg summary: %q %q", route.DistanceText, route.DurationText)
	}
}

func TestGetRouteEmptyLegs(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"routes":[{"legs":[]}]}`)
	}, false, "")

	if _, err := client.GetRoute(context.Background(), geo.Point{}, geo.Point{Lat: 1, Lng: 1}); !errors.Is(err, ErrInvalidRoute) {
		t.Fatalf("expected ErrInvalidRoute, got %v", err)
	}
}

func TestGetRouteUpstreamFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream down")
	}, false, "")

	_, err := client.GetRoute(context.Background(), geo.Point{}, geo.Point{Lat: 1, Lng: 1})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestAPIKeyLocalFirst(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("remote fetch should not happen when a local key exists")
	}, false, "local-key")

	key, err := client.APIKey(context.Background())
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if key != "local-key" {
		t.Fatalf("unexpected key: %s", key)
	}
}

func TestAPIKeyRemoteFetch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/maps/google-maps-key" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			t.Fatalf("missing bearer token: %q", auth)
		}
		io.WriteString(w, `{"api_key":"remote-key"}`)
	}, false, "")

	key, err := client.APIKey(context.Background())
	if err != nil {
		t.Fatalf("APIKey: %v", err)
	}
	if key != "remote-key" {
		t.Fatalf("unexpected key: %s", key)
	}
}

func TestAPIKeyDevModePlaceholder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, true, "")

	key, err := client.APIKey(context.Background())
	if err != nil {
		t.Fatalf("dev mode should not propagate the failure: %v", err)
	}
	if key != "PLACEHOLDER_API_KEY" {
		t.Fatalf("unexpected placeholder: %s", key)
	}
}

func TestAPIKeyProdModePropagates(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, false, "")

	if _, err := client.APIKey(context.Background()); err == nil {
		t.Fatalf("expected error outside dev mode")
	}
}

func TestStripInstructionHTML(t *testing.T) {
	cases := map[string]string{
		"Head <b>north</b>": "Head north",
		"Merge onto <b>E1</b><div style=\"font-size:0.9em\">Partial toll road</div>": "Merge onto E1",
		"Continue straight": "Continue straight",
		"Keep <b>right</b> at the fork &amp; follow signs": "Keep right at the fork & follow signs",
	}
	for in, want := range cases {
		if got := stripInstructionHTML(in); got != want {
			t.Fatalf("stripInstructionHTML(%q) = %q, want %q", in, got, want)
		}
	}
}
