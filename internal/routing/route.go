package routing

import (
	"html"
	"regexp"
	"strings"

	"driverassist/internal/geo"
)

// RouteStep is one maneuver of a parsed route.
type RouteStep struct {
	Instruction    string    `json:"instruction"`
	DistanceText   string    `json:"distance_text"`
	DistanceMeters int       `json:"distance_meters"`
	EndLocation    geo.Point `json:"end_location"`
}

// Route is the active navigation plan. The step slice is replaced wholesale
// on every fetch, never mutated in place.
type Route struct {
	Steps        []RouteStep `json:"steps"`
	Polyline     []geo.Point `json:"polyline"`
	DistanceText string      `json:"distance_text"`
	DurationText string      `json:"duration_text"`
}

var (
	divBlockRe = regexp.MustCompile(`(?s)<div[^>]*>.*?</div>`)
	htmlTagRe  = regexp.MustCompile(`<[^>]*>`)
)

// stripInstructionHTML turns a provider html_instructions value into plain
// text: embedded <div> blocks (secondary hints) are dropped entirely, the
// remaining markup is removed.
func stripInstructionHTML(s string) string {
	s = divBlockRe.ReplaceAllString(s, " ")
	s = htmlTagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(html.UnescapeString(s))
}

type directionsResponse struct {
	Routes []struct {
		OverviewPolyline struct {
			Points string `json:"points"`
		} `json:"overview_polyline"`
		Legs []struct {
			Distance struct {
				Text  string `json:"text"`
				Value int    `json:"value"`
			} `json:"distance"`
			Duration struct {
				Text string `json:"text"`
			} `json:"duration"`
			Steps []struct {
				HTMLInstructions string `json:"html_instructions"`
				Distance         struct {
					Text  string `json:"text"`
					Value int    `json:"value"`
				} `json:"distance"`
				EndLocation struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"end_location"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

func parseDirections(resp directionsResponse) (Route, error) {
	if len(resp.Routes) == 0 || len(resp.Routes[0].Legs) == 0 {
		return Route{}, ErrInvalidRoute
	}
	leg := resp.Routes[0].Legs[0]
	if len(leg.Steps) == 0 {
		return Route{}, ErrInvalidRoute
	}

	steps := make([]RouteStep, 0, len(leg.Steps))
	for _, s := range leg.Steps {
		// unknown step distance stays at its zero value rather than
		// failing the whole parse
		steps = append(steps, RouteStep{
			Instruction:    stripInstructionHTML(s.HTMLInstructions),
			DistanceText:   s.Distance.Text,
			DistanceMeters: s.Distance.Value,
			EndLocation:    geo.Point{Lat: s.EndLocation.Lat, Lng: s.EndLocation.Lng},
		})
	}

	polyline, err := geo.DecodePolyline(resp.Routes[0].OverviewPolyline.Points)
	if err != nil {
		return Route{}, err
	}

	return Route{
		Steps:        steps,
		Polyline:     polyline,
		DistanceText: leg.Distance.Text,
		DurationText: leg.Duration.Text,
	}, nil
}
