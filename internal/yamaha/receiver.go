package yamaha

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/strefethen/yamaha-remote-go/internal/yamaha/ync"
)

// DefaultWriteTimeout bounds the deferred volume write.
const DefaultWriteTimeout = 5 * time.Second

// Options configures a Receiver.
type Options struct {
	Logger *log.Logger
	// Deferrer coalesces volume writes. Defaults to a zero-delay TimerSlot.
	Deferrer     Deferrer
	WriteTimeout time.Duration
	Menu         MenuOptions
}

type subscription struct {
	property Property // empty for all properties
	fn       Listener
}

// Receiver is the cached mirror of one receiver's state. Operations are
// serialized; getters never wait on an in-flight exchange.
type Receiver struct {
	exec         Executor
	logger       *log.Logger
	catalog      *Catalog
	menu         *Menu
	deferrer     Deferrer
	writeTimeout time.Duration

	opMu sync.Mutex

	mu            sync.RWMutex
	state         State
	pendingVolume float64
	volumePending bool
	// writingVolume is the level of a volume PUT in flight.
	writingVolume float64
	volumeWriting bool

	listenersMu sync.RWMutex
	listeners   map[int]subscription
	nextID      int
}

// NewReceiver creates a Receiver with an unknown state. Call Refresh to sync.
func NewReceiver(exec Executor, options Options) *Receiver {
	logger := options.Logger
	if logger == nil {
		logger = log.Default()
	}
	deferrer := options.Deferrer
	if deferrer == nil {
		deferrer = NewTimerSlot(0)
	}
	writeTimeout := options.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	r := &Receiver{
		exec:         exec,
		logger:       logger,
		catalog:      NewCatalog(exec),
		deferrer:     deferrer,
		writeTimeout: writeTimeout,
		listeners:    make(map[int]subscription),
	}
	r.menu = newMenu(exec, r, &r.opMu, options.Menu, logger)
	return r
}

// Catalog returns the receiver's input catalog.
func (r *Receiver) Catalog() *Catalog {
	return r.catalog
}

// Menu returns the on-screen menu engine for the active source.
func (r *Receiver) Menu() *Menu {
	return r.menu
}

// Subscribe registers fn for changes of one property.
func (r *Receiver) Subscribe(prop Property, fn Listener) (unsubscribe func()) {
	return r.addListener(subscription{property: prop, fn: fn})
}

// SubscribeAll registers fn for changes of every property.
func (r *Receiver) SubscribeAll(fn Listener) (unsubscribe func()) {
	return r.addListener(subscription{fn: fn})
}

func (r *Receiver) addListener(sub subscription) func() {
	r.listenersMu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = sub
	r.listenersMu.Unlock()

	return func() {
		r.listenersMu.Lock()
		delete(r.listeners, id)
		r.listenersMu.Unlock()
	}
}

func (r *Receiver) notify(change Change) {
	r.listenersMu.RLock()
	targets := make([]Listener, 0, len(r.listeners))
	for id := 0; id < r.nextID; id++ {
		sub, ok := r.listeners[id]
		if !ok {
			continue
		}
		if sub.property == "" || sub.property == change.Property {
			targets = append(targets, sub.fn)
		}
	}
	r.listenersMu.RUnlock()

	for _, fn := range targets {
		fn(change)
	}
}

// setField stores value and notifies listeners when it differs from the
// cached one.
func setField[T comparable](r *Receiver, prop Property, field *T, value T) bool {
	r.mu.Lock()
	if *field == value {
		r.mu.Unlock()
		return false
	}
	*field = value
	r.mu.Unlock()

	r.notify(Change{Property: prop, Value: value})
	return true
}

// Snapshot returns a copy of the cached state.
func (r *Receiver) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Receiver) Power() bool {
	return r.Snapshot().Power
}

func (r *Receiver) Volume() float64 {
	return r.Snapshot().Volume
}

func (r *Receiver) Muted() bool {
	return r.Snapshot().Muted
}

func (r *Receiver) Source() string {
	return r.Snapshot().Source
}

func (r *Receiver) Shuffle() PlayMode {
	return r.Snapshot().Shuffle
}

func (r *Receiver) Repeat() PlayMode {
	return r.Snapshot().Repeat
}

// ZonePath returns the zone path of the active source, or "" if unknown.
func (r *Receiver) ZonePath() string {
	return r.catalog.ZonePath(r.Source())
}

func (r *Receiver) get(ctx context.Context, fragment string) (*ync.Response, error) {
	return r.exec.Execute(ctx, ync.Get, fragment, r.ZonePath())
}

func (r *Receiver) put(ctx context.Context, fragment string) error {
	_, err := r.exec.Execute(ctx, ync.Put, fragment, r.ZonePath())
	return err
}

// Refresh pulls the receiver's basic status into the cache, loads the input
// catalog on first use, and re-derives play modes for the active source.
func (r *Receiver) Refresh(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	resp, err := r.get(ctx, ync.BasicStatusQuery())
	if err != nil {
		return err
	}
	status, err := resp.BasicStatus()
	if err != nil {
		return fmt.Errorf("decode basic status: %w", err)
	}

	if status.HasVolume {
		setField(r, PropertyVolume, &r.state.Volume, status.Volume)
	}
	if status.HasMute {
		setField(r, PropertyMuted, &r.state.Muted, status.Muted)
	}
	if status.HasPower {
		setField(r, PropertyPower, &r.state.Power, status.Power)
	}
	if status.HasInput {
		setField(r, PropertySource, &r.state.Source, status.Input)
	}

	if r.catalog.Empty() {
		if _, err := r.catalog.Refresh(ctx); err != nil {
			return err
		}
	}

	return r.refreshPlayModes(ctx)
}

// refreshPlayModes reads shuffle/repeat for sources that support them and
// marks both inapplicable otherwise. Values read from the receiver are
// cached without being written back.
func (r *Receiver) refreshPlayModes(ctx context.Context) error {
	source := r.Source()
	if source == "" {
		return nil
	}

	if !HasPlayModes(source) {
		setField(r, PropertyShuffle, &r.state.Shuffle, PlayModeNone)
		setField(r, PropertyRepeat, &r.state.Repeat, PlayModeNone)
		return nil
	}

	resp, err := r.get(ctx, ync.ShuffleQuery())
	if err != nil {
		return err
	}
	if mode, ok, err := resp.Shuffle(); err != nil {
		return fmt.Errorf("decode shuffle: %w", err)
	} else if ok {
		setField(r, PropertyShuffle, &r.state.Shuffle, PlayMode(mode))
	}

	resp, err = r.get(ctx, ync.RepeatQuery())
	if err != nil {
		return err
	}
	if mode, ok, err := resp.Repeat(); err != nil {
		return fmt.Errorf("decode repeat: %w", err)
	} else if ok {
		setField(r, PropertyRepeat, &r.state.Repeat, PlayMode(mode))
	}
	return nil
}

// NetworkName returns the name the receiver announces on the network.
func (r *Receiver) NetworkName(ctx context.Context) (string, error) {
	resp, err := r.exec.Execute(ctx, ync.Get, ync.NetworkNameQuery(), "")
	if err != nil {
		return "", err
	}
	return resp.NetworkName()
}

// Sources refreshes the catalog and returns the selectable input IDs.
func (r *Receiver) Sources(ctx context.Context) ([]string, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.catalog.Refresh(ctx)
}

// SetPower switches the receiver on or to standby.
func (r *Receiver) SetPower(ctx context.Context, on bool) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if r.Power() == on {
		return nil
	}
	if err := r.put(ctx, ync.SetPower(on)); err != nil {
		return err
	}
	setField(r, PropertyPower, &r.state.Power, on)
	return nil
}

// SetMuted mutes or unmutes the main zone.
func (r *Receiver) SetMuted(ctx context.Context, muted bool) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if r.Muted() == muted {
		return nil
	}
	if err := r.put(ctx, ync.SetMute(muted)); err != nil {
		return err
	}
	setField(r, PropertyMuted, &r.state.Muted, muted)
	return nil
}

// SetVolume requests a new level and returns the quantized value. The write
// is deferred: calls made before it runs replace the pending value, so only
// the last request reaches the receiver.
func (r *Receiver) SetVolume(db float64) (float64, error) {
	if math.IsNaN(db) {
		return 0, ErrInvalidVolume
	}
	target := QuantizeVolume(db)

	r.mu.Lock()
	current := r.state.Volume
	if r.volumeWriting {
		current = r.writingVolume
	}
	r.pendingVolume = target
	r.volumePending = target != current
	r.mu.Unlock()

	if target == current {
		r.deferrer.Cancel()
		return target, nil
	}
	r.deferrer.Defer(r.commitVolume)
	return target, nil
}

func (r *Receiver) commitVolume() {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := r.FlushVolume(ctx); err != nil {
		r.logger.Printf("RECEIVER: volume write failed: %v", err)
	}
}

// FlushVolume writes a pending volume request immediately.
func (r *Receiver) FlushVolume(ctx context.Context) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	r.mu.Lock()
	target := r.pendingVolume
	pending := r.volumePending && target != r.state.Volume
	r.volumePending = false
	if pending {
		r.writingVolume = target
		r.volumeWriting = true
	}
	r.mu.Unlock()

	if !pending {
		return nil
	}
	err := r.put(ctx, ync.SetVolume(target))

	// The cached level and the in-flight marker change together, so a
	// concurrent SetVolume never compares against a stale level.
	r.mu.Lock()
	r.volumeWriting = false
	changed := err == nil && r.state.Volume != target
	if changed {
		r.state.Volume = target
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if changed {
		r.notify(Change{Property: PropertyVolume, Value: target})
	}
	return nil
}

// SetSource switches the main zone input. Once the catalog is loaded only
// writable inputs are accepted.
func (r *Receiver) SetSource(ctx context.Context, source string) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	if r.Source() == source {
		return nil
	}
	if !r.catalog.Empty() && !r.catalog.Selectable(source) {
		return &SourceNotSelectableError{Source: source}
	}
	if err := r.put(ctx, ync.SelectInput(source)); err != nil {
		return err
	}
	setField(r, PropertySource, &r.state.Source, source)
	return r.refreshPlayModes(ctx)
}

// SetShuffle changes the shuffle mode. PlayModeNone only updates the cache.
func (r *Receiver) SetShuffle(ctx context.Context, mode PlayMode) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.setShuffle(ctx, mode)
}

func (r *Receiver) setShuffle(ctx context.Context, mode PlayMode) error {
	if r.Shuffle() == mode {
		return nil
	}
	if mode != PlayModeNone {
		if err := r.put(ctx, ync.SetShuffle(string(mode))); err != nil {
			return err
		}
	}
	setField(r, PropertyShuffle, &r.state.Shuffle, mode)
	return nil
}

// SetRepeat changes the repeat mode. PlayModeNone only updates the cache.
func (r *Receiver) SetRepeat(ctx context.Context, mode PlayMode) error {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	return r.setRepeat(ctx, mode)
}

func (r *Receiver) setRepeat(ctx context.Context, mode PlayMode) error {
	if r.Repeat() == mode {
		return nil
	}
	if mode != PlayModeNone {
		if err := r.put(ctx, ync.SetRepeat(string(mode))); err != nil {
			return err
		}
	}
	setField(r, PropertyRepeat, &r.state.Repeat, mode)
	return nil
}

// CycleShuffle advances to the next shuffle mode for the active source.
// It does nothing when shuffle is not applicable.
func (r *Receiver) CycleShuffle(ctx context.Context) (PlayMode, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	current := r.Shuffle()
	if current == PlayModeNone {
		return PlayModeNone, nil
	}
	next := nextMode(ShuffleModes(r.Source()), current)
	if err := r.setShuffle(ctx, next); err != nil {
		return current, err
	}
	return next, nil
}

// CycleRepeat advances Off -> One -> All -> Off. It does nothing when repeat
// is not applicable.
func (r *Receiver) CycleRepeat(ctx context.Context) (PlayMode, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	current := r.Repeat()
	if current == PlayModeNone {
		return PlayModeNone, nil
	}
	next := nextMode(RepeatModes(), current)
	if err := r.setRepeat(ctx, next); err != nil {
		return current, err
	}
	return next, nil
}

// Close writes any pending volume request and stops the deferrer.
func (r *Receiver) Close(ctx context.Context) error {
	r.deferrer.Cancel()
	return r.FlushVolume(ctx)
}
