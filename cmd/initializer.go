package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"driverassist/internal/assistant"
	"driverassist/internal/config"
	"driverassist/internal/geo"
	"driverassist/internal/location"
	"driverassist/internal/ride"
	"driverassist/internal/routing"
	"driverassist/internal/voice"
)

// simulated session start position (Almaty city center)
var startPoint = geo.Point{Lat: 43.238949, Lng: 76.889709}

type application struct {
	errorLog  *log.Logger
	infoLog   *log.Logger
	cfg       config.Config
	router    *routing.Client
	machine   *ride.Machine
	voice     *voice.Controller
	store     *voice.Store
	stateHub  *StateHub
	simSource *location.SimSource
}

type appLogger struct {
	info *log.Logger
	err  *log.Logger
}

func (l appLogger) Infof(format string, args ...interface{})  { l.info.Printf(format, args...) }
func (l appLogger) Errorf(format string, args ...interface{}) { l.err.Printf(format, args...) }

func initializeApp(ctx context.Context, cfg config.Config, errorLog, infoLog *log.Logger) (*application, error) {
	logger := appLogger{info: infoLog, err: errorLog}
	httpClient := &http.Client{Timeout: 35 * time.Second}

	router := routing.NewClient(httpClient, cfg.Backend.BaseURL, cfg.Backend.TokenSecret,
		cfg.Maps.APIKey, cfg.Backend.DevMode, openRedis(cfg.Redis.Addr), cfg.Ride.RoutingTimeout)
	backend := assistant.NewClient(httpClient, cfg.Backend.BaseURL, cfg.Voice.InteractTimeout)

	store, err := voice.NewStore(cfg.Voice.RecordingsDir)
	if err != nil {
		return nil, err
	}

	hub := NewStateHub(errorLog)

	simSource := location.NewSimSource(startPoint, cfg.Location.SimSpeedKPH, time.Second)
	stream := location.NewStream(simSource)

	customer := ride.Customer{
		Name:            cfg.Customer.Name,
		Rating:          cfg.Customer.Rating,
		OriginName:      cfg.Customer.OriginName,
		DestinationName: cfg.Customer.DestinationName,
		Fare:            cfg.Customer.Fare,
	}
	rideCfg := ride.Config{
		RequestDelay:      cfg.Ride.RequestDelay,
		ProximityPoll:     cfg.Ride.ProximityPoll,
		PickupCountdown:   cfg.Ride.PickupCountdown,
		PaymentDelay:      cfg.Ride.PaymentDelay,
		SettleDelay:       cfg.Ride.SettleDelay,
		ArrivalRadius:     cfg.Ride.ArrivalRadius,
		StepAdvanceRadius: cfg.Ride.StepAdvanceRadius,
		RoutingTimeout:    cfg.Ride.RoutingTimeout,
	}
	startRegion := geo.Region{Center: startPoint, LatDelta: 0.05, LngDelta: 0.05}

	var lastRoute *routing.Route
	machine := ride.NewMachine(rideCfg, customer, router, stream, startRegion, logger, func(s ride.Snapshot) {
		// drive the simulated GPS along each newly loaded route
		if s.Route != lastRoute {
			lastRoute = s.Route
			if s.Route != nil {
				simSource.SetPath(routePath(s.Route))
			}
		}
		hub.BroadcastRide(s)
	})

	voiceCfg := voice.ControllerConfig{
		ChunkInterval:    cfg.Voice.ChunkInterval,
		SilentChunkLimit: cfg.Voice.SilentChunkLimit,
	}
	recorder := voice.NewSimRecorder(os.TempDir())
	player, err := assistant.NewFilePlayer(httpClient, cfg.Backend.BaseURL, filepath.Join(cfg.Voice.RecordingsDir, "responses"))
	if err != nil {
		return nil, err
	}
	controller := voice.NewController(voiceCfg, recorder, backend, store, player, logger,
		func() *geo.Point {
			p := machine.Region().Center
			return &p
		},
		func() *assistant.OrderContext {
			snap := machine.Snapshot()
			if snap.Customer == nil {
				return nil
			}
			return &assistant.OrderContext{
				CustomerName:    snap.Customer.Name,
				OriginName:      snap.Customer.OriginName,
				DestinationName: snap.Customer.DestinationName,
				Fare:            snap.Customer.Fare,
			}
		},
		func(st voice.Status) { hub.BroadcastVoice(st) })

	if err := machine.Start(ctx, cfg.Location.MinMoveMeters); err != nil {
		return nil, err
	}

	return &application{
		errorLog:  errorLog,
		infoLog:   infoLog,
		cfg:       cfg,
		router:    router,
		machine:   machine,
		voice:     controller,
		store:     store,
		stateHub:  hub,
		simSource: simSource,
	}, nil
}

// routePath prefers the overview polyline; step end points are the fallback
// when the backend sent none.
func routePath(route *routing.Route) []geo.Point {
	if len(route.Polyline) > 0 {
		return route.Polyline
	}
	path := make([]geo.Point, 0, len(route.Steps))
	for _, step := range route.Steps {
		path = append(path, step.EndLocation)
	}
	return path
}

func openRedis(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr})
}
