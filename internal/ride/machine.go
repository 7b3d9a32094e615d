package ride

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"driverassist/internal/geo"
	"driverassist/internal/location"
	"driverassist/internal/routing"
)

// ErrStopped is returned for commands issued after the session shut down.
var ErrStopped = errors.New("ride: session stopped")

// ErrInvalidPhase is returned when a command does not apply to the current
// phase.
var ErrInvalidPhase = errors.New("ride: invalid phase for command")

// Customer is the rider attached to a surfaced ride request.
type Customer struct {
	Name            string `json:"name"`
	Rating          string `json:"rating"`
	OriginName      string `json:"origin_name"`
	DestinationName string `json:"destination_name"`
	Fare            string `json:"fare"`
}

// Router resolves place names and fetches driving routes.
type Router interface {
	ResolvePlace(ctx context.Context, name string) (geo.Point, error)
	GetRoute(ctx context.Context, origin, destination geo.Point) (routing.Route, error)
}

// Logger is the minimal logging surface the machine needs.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// Config holds the timing and distance knobs of the ride lifecycle.
type Config struct {
	RequestDelay      time.Duration
	ProximityPoll     time.Duration
	PickupCountdown   time.Duration
	PaymentDelay      time.Duration
	SettleDelay       time.Duration
	ArrivalRadius     float64
	StepAdvanceRadius float64
	RoutingTimeout    time.Duration
}

func (c *Config) normalize() {
	if c.RequestDelay <= 0 {
		c.RequestDelay = 2 * time.Second
	}
	if c.ProximityPoll <= 0 {
		c.ProximityPoll = 2 * time.Second
	}
	if c.PickupCountdown <= 0 {
		c.PickupCountdown = 5 * time.Second
	}
	if c.PaymentDelay <= 0 {
		c.PaymentDelay = 5 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 10 * time.Second
	}
	if c.ArrivalRadius <= 0 {
		c.ArrivalRadius = 50
	}
	if c.StepAdvanceRadius <= 0 {
		c.StepAdvanceRadius = 50
	}
	if c.RoutingTimeout <= 0 {
		c.RoutingTimeout = 10 * time.Second
	}
}

// Snapshot is the externally visible session state, published after every
// change.
type Snapshot struct {
	Phase            string         `json:"phase"`
	RequestAvailable bool           `json:"request_available"`
	Customer         *Customer      `json:"customer,omitempty"`
	Pickup           *geo.Point     `json:"pickup,omitempty"`
	Destination      *geo.Point     `json:"destination,omitempty"`
	Route            *routing.Route `json:"route,omitempty"`
	StepIndex        int            `json:"step_index"`
	NextInstruction  string         `json:"next_instruction,omitempty"`
	Region           geo.Region     `json:"region"`
	LastError        string         `json:"last_error,omitempty"`
}

const (
	slotRequest   = "request"
	slotProximity = "proximity"
	slotCountdown = "countdown"
	slotPayment   = "payment"
	slotSettle    = "settle"
)

// Machine drives the ride lifecycle. All state changes run on a single event
// loop, so transition handlers finish before the next command is handled.
type Machine struct {
	cfg      Config
	customer Customer
	router   Router
	stream   *location.Stream
	logger   Logger
	notify   func(Snapshot)

	events chan func()
	done   chan struct{}

	regionMu sync.RWMutex
	region   geo.Region

	snapMu   sync.RWMutex
	lastSnap Snapshot

	// owned by the event loop
	phase            string
	requestAvailable bool
	route            *routing.Route
	pickup           *geo.Point
	destination      *geo.Point
	stepIdx          int
	lastErr          string
	sub              *location.Subscription
	timers           map[string]*time.Timer
}

// NewMachine constructs a ride machine starting in the idle phase at the given
// region. notify may be nil.
func NewMachine(cfg Config, customer Customer, router Router, stream *location.Stream, start geo.Region, logger Logger, notify func(Snapshot)) *Machine {
	cfg.normalize()
	if logger == nil {
		logger = nopLogger{}
	}
	return &Machine{
		cfg:      cfg,
		customer: customer,
		router:   router,
		stream:   stream,
		logger:   logger,
		notify:   notify,
		events:   make(chan func(), 64),
		done:     make(chan struct{}),
		region:   start,
		phase:    PhaseIdle,
		timers:   make(map[string]*time.Timer),
	}
}

// Start subscribes to the position feed and launches the event loop. A denied
// location permission is terminal and surfaced to the caller.
func (m *Machine) Start(ctx context.Context, minMoveMeters int) error {
	sub, err := m.stream.Start(ctx, minMoveMeters, func(s location.Sample) {
		m.post(func() { m.handleSample(s) })
	})
	if err != nil {
		m.logger.Errorf("ride: position feed unavailable: %v", err)
		return err
	}
	m.sub = sub
	m.publish()
	go m.run(ctx)
	return nil
}

func (m *Machine) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// unblock queued posters first: Cancel below waits for any
			// in-flight delivery, and a delivery stuck in post would
			// otherwise wait right back on this loop
			close(m.done)
			m.shutdown()
			return
		case fn := <-m.events:
			fn()
		}
	}
}

func (m *Machine) shutdown() {
	for slot, t := range m.timers {
		t.Stop()
		delete(m.timers, slot)
	}
	if m.sub != nil {
		m.sub.Cancel()
	}
}

func (m *Machine) post(fn func()) {
	select {
	case m.events <- fn:
	case <-m.done:
	}
}

func (m *Machine) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case m.events <- func() { reply <- fn() }:
	case <-m.done:
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return ErrStopped
	}
}

// Region returns the current map viewport. Safe for concurrent use.
func (m *Machine) Region() geo.Region {
	m.regionMu.RLock()
	defer m.regionMu.RUnlock()
	return m.region
}

func (m *Machine) setCenter(center geo.Point) {
	m.regionMu.Lock()
	m.region = m.region.Recentered(center)
	m.regionMu.Unlock()
}

// Customer returns the rider configured for this session.
func (m *Machine) Customer() Customer {
	return m.customer
}

// Snapshot returns the last published session state. Safe for concurrent use.
func (m *Machine) Snapshot() Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.lastSnap
}

// PowerOn moves an idle session to request-pending; a ride request is surfaced
// after the configured delay.
func (m *Machine) PowerOn() error {
	return m.do(func() error {
		if m.phase != PhaseIdle {
			return fmt.Errorf("%w: power on while %s", ErrInvalidPhase, m.phase)
		}
		m.setPhase(PhaseRequestPending)
		m.setTimer(slotRequest, m.cfg.RequestDelay, m.surfaceRequest)
		return nil
	})
}

func (m *Machine) surfaceRequest() {
	if m.phase != PhaseRequestPending || m.requestAvailable {
		return
	}
	m.requestAvailable = true
	m.logger.Infof("ride: request surfaced for %s (%s -> %s)", m.customer.Name, m.customer.OriginName, m.customer.DestinationName)
	m.publish()
}

// Approve accepts the surfaced request: the pickup place is resolved, a route
// to it is fetched, and navigation starts. On a gateway failure the session
// stays request-pending and the error is surfaced. When the destination leg
// failed to load after the pickup countdown, Approve re-triggers it.
func (m *Machine) Approve() error {
	return m.do(func() error {
		switch {
		case m.phase == PhaseRequestPending && m.requestAvailable:
			return m.startPickupLeg()
		case m.phase == PhaseAwaitingPickupConfirmation:
			// the countdown fired once and is never re-armed; this is
			// the manual retry after a surfaced gateway failure
			return m.startDestinationLeg()
		default:
			return fmt.Errorf("%w: no ride request to approve", ErrInvalidPhase)
		}
	})
}

func (m *Machine) startPickupLeg() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RoutingTimeout)
	defer cancel()

	pickup, err := m.router.ResolvePlace(ctx, m.customer.OriginName)
	if err != nil {
		m.failTransition("resolve pickup", err)
		return err
	}
	route, err := m.router.GetRoute(ctx, m.Region().Center, pickup)
	if err != nil {
		m.failTransition("route to pickup", err)
		return err
	}

	m.pickup = &pickup
	m.route = &route
	m.stepIdx = 0
	m.requestAvailable = false
	m.lastErr = ""
	m.setPhase(PhaseNavigatingToPickup)
	m.setTimer(slotProximity, m.cfg.ProximityPoll, m.pollProximity)
	return nil
}

// Decline rejects the pending request and returns the session to idle.
func (m *Machine) Decline() error {
	return m.do(func() error {
		if m.phase != PhaseRequestPending {
			return fmt.Errorf("%w: no ride request to decline", ErrInvalidPhase)
		}
		m.logger.Infof("ride: request declined")
		m.resetToIdle()
		return nil
	})
}

func (m *Machine) pollProximity() {
	switch m.phase {
	case PhaseNavigatingToPickup:
		if m.pickup != nil && m.Region().Center.DistanceTo(*m.pickup) <= m.cfg.ArrivalRadius {
			m.clearTimer(slotProximity)
			m.setPhase(PhaseAwaitingPickupConfirmation)
			m.setTimer(slotCountdown, m.cfg.PickupCountdown, func() { _ = m.startDestinationLeg() })
			return
		}
	case PhaseNavigatingToDestination:
		if m.destination != nil && m.Region().Center.DistanceTo(*m.destination) <= m.cfg.ArrivalRadius {
			m.clearTimer(slotProximity)
			m.setPhase(PhaseArrived)
			m.setTimer(slotPayment, m.cfg.PaymentDelay, m.startSettlement)
			return
		}
	default:
		return
	}
	m.setTimer(slotProximity, m.cfg.ProximityPoll, m.pollProximity)
}

func (m *Machine) startDestinationLeg() error {
	if m.phase != PhaseAwaitingPickupConfirmation {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.RoutingTimeout)
	defer cancel()

	dest, err := m.router.ResolvePlace(ctx, m.customer.DestinationName)
	if err != nil {
		m.failTransition("resolve destination", err)
		return err
	}
	origin := m.Region().Center
	if m.pickup != nil {
		origin = *m.pickup
	}
	route, err := m.router.GetRoute(ctx, origin, dest)
	if err != nil {
		m.failTransition("route to destination", err)
		return err
	}

	m.destination = &dest
	m.route = &route
	m.stepIdx = 0
	m.lastErr = ""
	m.setPhase(PhaseNavigatingToDestination)
	m.setTimer(slotProximity, m.cfg.ProximityPoll, m.pollProximity)
	return nil
}

func (m *Machine) startSettlement() {
	if m.phase != PhaseArrived {
		return
	}
	m.setPhase(PhaseSettlingPayment)
	m.setTimer(slotSettle, m.cfg.SettleDelay, m.completeRide)
}

func (m *Machine) completeRide() {
	if m.phase != PhaseSettlingPayment {
		return
	}
	m.logger.Infof("ride: completed, session back to idle")
	m.resetToIdle()
}

// resetToIdle clears all ride state; idle sessions carry no route or markers.
func (m *Machine) resetToIdle() {
	for slot, t := range m.timers {
		t.Stop()
		delete(m.timers, slot)
	}
	m.requestAvailable = false
	m.route = nil
	m.pickup = nil
	m.destination = nil
	m.stepIdx = 0
	m.lastErr = ""
	m.setPhase(PhaseIdle)
}

func (m *Machine) failTransition(op string, err error) {
	m.logger.Errorf("ride: %s failed, staying in %s: %v", op, m.phase, err)
	m.lastErr = fmt.Sprintf("%s: %v", op, err)
	m.publish()
}

func (m *Machine) handleSample(s location.Sample) {
	m.setCenter(s.Point)
	m.advanceStep(s.Point)
	m.publish()
}

// advanceStep moves the instruction cursor forward when the driver comes
// within the step-advance radius of the current step's end. The cursor never
// moves backwards and never passes the last step.
func (m *Machine) advanceStep(pos geo.Point) {
	if m.route == nil || len(m.route.Steps) == 0 {
		return
	}
	if m.phase != PhaseNavigatingToPickup && m.phase != PhaseNavigatingToDestination {
		return
	}
	for m.stepIdx < len(m.route.Steps)-1 {
		if pos.DistanceTo(m.route.Steps[m.stepIdx].EndLocation) > m.cfg.StepAdvanceRadius {
			break
		}
		m.stepIdx++
	}
}

func (m *Machine) setPhase(to string) {
	if !CanTransition(m.phase, to) {
		m.logger.Errorf("ride: blocked phase change %s -> %s", m.phase, to)
		return
	}
	if m.phase != to {
		m.logger.Infof("ride: phase %s -> %s", m.phase, to)
	}
	m.phase = to
	m.publish()
}

func (m *Machine) setTimer(slot string, d time.Duration, fn func()) {
	if t, ok := m.timers[slot]; ok {
		t.Stop()
	}
	m.timers[slot] = time.AfterFunc(d, func() {
		m.post(fn)
	})
}

func (m *Machine) clearTimer(slot string) {
	if t, ok := m.timers[slot]; ok {
		t.Stop()
		delete(m.timers, slot)
	}
}

func (m *Machine) publish() {
	snap := Snapshot{
		Phase:            m.phase,
		RequestAvailable: m.requestAvailable,
		Pickup:           m.pickup,
		Destination:      m.destination,
		Route:            m.route,
		StepIndex:        m.stepIdx,
		Region:           m.Region(),
		LastError:        m.lastErr,
	}
	if m.phase != PhaseIdle {
		c := m.customer
		snap.Customer = &c
	}
	if m.route != nil && m.stepIdx < len(m.route.Steps) {
		snap.NextInstruction = m.route.Steps[m.stepIdx].Instruction
	}

	m.snapMu.Lock()
	m.lastSnap = snap
	m.snapMu.Unlock()

	if m.notify != nil {
		m.notify(snap)
	}
}
