package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders, makeResponseJSON)
	wsMiddleware := alice.New(app.recoverPanic, app.logRequest)

	mux := pat.New()

	// Session
	mux.Post("/session/power", standardMiddleware.ThenFunc(app.powerOn))
	mux.Get("/session/state", standardMiddleware.ThenFunc(app.sessionState))

	// Ride request
	mux.Post("/ride/approve", standardMiddleware.ThenFunc(app.approveRide))
	mux.Post("/ride/decline", standardMiddleware.ThenFunc(app.declineRide))

	// Voice capture
	mux.Post("/voice/start", standardMiddleware.ThenFunc(app.startVoice))
	mux.Post("/voice/stop", standardMiddleware.ThenFunc(app.stopVoice))
	mux.Get("/voice/status", standardMiddleware.ThenFunc(app.voiceStatus))

	// Recordings
	mux.Get("/recordings", standardMiddleware.ThenFunc(app.listRecordings))
	mux.Del("/recordings/:name", standardMiddleware.ThenFunc(app.deleteRecording))

	// Maps
	mux.Get("/maps/key", standardMiddleware.ThenFunc(app.mapsKey))

	// State feed
	mux.Get("/ws/state", wsMiddleware.ThenFunc(app.stateWebSocket))

	return mux
}
