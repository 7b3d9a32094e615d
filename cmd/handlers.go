package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"driverassist/internal/ride"
	"driverassist/internal/voice"
)

func (app *application) serverError(w http.ResponseWriter, err error) {
	app.errorLog.Output(2, err.Error())
	app.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}

func (app *application) clientError(w http.ResponseWriter, status int, err error) {
	app.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (app *application) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.errorLog.Printf("write response: %v", err)
	}
}

func (app *application) powerOn(w http.ResponseWriter, r *http.Request) {
	if err := app.machine.PowerOn(); err != nil {
		app.rideError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, app.machine.Snapshot())
}

func (app *application) approveRide(w http.ResponseWriter, r *http.Request) {
	if err := app.machine.Approve(); err != nil {
		app.rideError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, app.machine.Snapshot())
}

func (app *application) declineRide(w http.ResponseWriter, r *http.Request) {
	if err := app.machine.Decline(); err != nil {
		app.rideError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, app.machine.Snapshot())
}

func (app *application) rideError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ride.ErrInvalidPhase):
		app.clientError(w, http.StatusConflict, err)
	case errors.Is(err, ride.ErrStopped):
		app.clientError(w, http.StatusServiceUnavailable, err)
	default:
		// gateway failures keep the session phase; the caller sees why
		app.clientError(w, http.StatusBadGateway, err)
	}
}

func (app *application) sessionState(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, http.StatusOK, struct {
		Ride  ride.Snapshot `json:"ride"`
		Voice voice.Status  `json:"voice"`
	}{
		Ride:  app.machine.Snapshot(),
		Voice: app.voice.Status(),
	})
}

func (app *application) startVoice(w http.ResponseWriter, r *http.Request) {
	if err := app.voice.Start(); err != nil {
		switch {
		case errors.Is(err, voice.ErrMicPermission):
			app.clientError(w, http.StatusForbidden, err)
		case errors.Is(err, voice.ErrDeviceBusy):
			app.clientError(w, http.StatusConflict, err)
		default:
			app.serverError(w, err)
		}
		return
	}
	app.writeJSON(w, http.StatusOK, app.voice.Status())
}

func (app *application) stopVoice(w http.ResponseWriter, r *http.Request) {
	if err := app.voice.Stop(); err != nil {
		app.clientError(w, http.StatusConflict, err)
		return
	}
	app.writeJSON(w, http.StatusOK, app.voice.Status())
}

func (app *application) voiceStatus(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, http.StatusOK, app.voice.Status())
}

func (app *application) listRecordings(w http.ResponseWriter, r *http.Request) {
	infos, err := app.store.List()
	if err != nil {
		app.serverError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, map[string]interface{}{"recordings": infos})
}

func (app *application) deleteRecording(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get(":name")
	if err := app.store.Delete(name); err != nil {
		if errors.Is(err, voice.ErrRecordingNotFound) {
			app.clientError(w, http.StatusNotFound, err)
			return
		}
		app.clientError(w, http.StatusBadRequest, err)
		return
	}
	app.writeJSON(w, http.StatusOK, map[string]string{"deleted": name})
}

func (app *application) mapsKey(w http.ResponseWriter, r *http.Request) {
	key, err := app.router.APIKey(r.Context())
	if err != nil {
		app.clientError(w, http.StatusBadGateway, err)
		return
	}
	app.writeJSON(w, http.StatusOK, map[string]string{"api_key": key})
}
