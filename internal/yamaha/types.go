package yamaha

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/strefethen/yamaha-remote-go/internal/yamaha/ync"
)

// Executor performs one YNC exchange. *ync.Client implements it.
type Executor interface {
	Execute(ctx context.Context, cmd ync.Command, fragment, zonePath string) (*ync.Response, error)
}

// Property names a tracked piece of receiver state.
type Property string

const (
	PropertyPower   Property = "power"
	PropertyVolume  Property = "volume"
	PropertyMuted   Property = "muted"
	PropertySource  Property = "source"
	PropertyShuffle Property = "shuffle"
	PropertyRepeat  Property = "repeat"
)

// Properties lists every tracked property in a stable order.
var Properties = []Property{
	PropertyPower,
	PropertyVolume,
	PropertyMuted,
	PropertySource,
	PropertyShuffle,
	PropertyRepeat,
}

// PlayMode is a shuffle or repeat setting. PlayModeNone means the current
// source has no such mode.
type PlayMode string

const (
	PlayModeNone PlayMode = ""

	ShuffleOff    PlayMode = "Off"
	ShuffleOn     PlayMode = "On"
	ShuffleSongs  PlayMode = "Songs"
	ShuffleAlbums PlayMode = "Albums"

	RepeatOff PlayMode = "Off"
	RepeatOne PlayMode = "One"
	RepeatAll PlayMode = "All"
)

// Volume limits in dB.
const (
	MinVolume  = -80.0
	MaxVolume  = 16.0
	VolumeStep = 0.5
)

// State is a snapshot of the cached receiver state.
type State struct {
	Power   bool     `json:"power"`
	Volume  float64  `json:"volume"`
	Muted   bool     `json:"muted"`
	Source  string   `json:"source"`
	Shuffle PlayMode `json:"shuffle"`
	Repeat  PlayMode `json:"repeat"`
}

// Value returns the value of one property.
func (s State) Value(prop Property) any {
	switch prop {
	case PropertyPower:
		return s.Power
	case PropertyVolume:
		return s.Volume
	case PropertyMuted:
		return s.Muted
	case PropertySource:
		return s.Source
	case PropertyShuffle:
		return s.Shuffle
	case PropertyRepeat:
		return s.Repeat
	default:
		return nil
	}
}

// Change is delivered to listeners after a property changed.
type Change struct {
	Property Property `json:"property"`
	Value    any      `json:"value"`
}

// Listener observes property changes. It runs synchronously on the goroutine
// that made the change and must not call back into Receiver setters.
type Listener func(Change)

var (
	menuSources     = map[string]bool{"USB": true, "NET RADIO": true, "SERVER": true}
	playModeSources = map[string]bool{"USB": true, "iPod_USB": true, "SERVER": true}
	onOffShuffle    = map[string]bool{"SERVER": true, "USB": true, "NET RADIO": true}
)

// HasMenu reports whether a source supports the list/navigation commands.
func HasMenu(source string) bool {
	return menuSources[source]
}

// HasPlayModes reports whether a source exposes shuffle and repeat.
func HasPlayModes(source string) bool {
	return playModeSources[source]
}

// ShuffleModes returns the shuffle cycle for a source.
func ShuffleModes(source string) []PlayMode {
	if onOffShuffle[source] {
		return []PlayMode{ShuffleOff, ShuffleOn}
	}
	return []PlayMode{ShuffleOff, ShuffleSongs, ShuffleAlbums}
}

// RepeatModes returns the repeat cycle.
func RepeatModes() []PlayMode {
	return []PlayMode{RepeatOff, RepeatOne, RepeatAll}
}

func nextMode(modes []PlayMode, current PlayMode) PlayMode {
	for i, mode := range modes {
		if mode == current {
			return modes[(i+1)%len(modes)]
		}
	}
	return modes[0]
}

// QuantizeVolume clamps db to the receiver's range and rounds it to the
// nearest half decibel.
func QuantizeVolume(db float64) float64 {
	db = math.Max(MinVolume, math.Min(MaxVolume, db))
	return math.Round(db/VolumeStep) * VolumeStep
}

// ErrInvalidVolume is returned for NaN volume requests.
var ErrInvalidVolume = errors.New("volume must be a number")

// ErrInvalidLine is returned for menu lines below 1.
var ErrInvalidLine = errors.New("menu line must be 1 or greater")

// SourceNotSelectableError is returned when asked to switch to an input the
// catalog does not list as writable.
type SourceNotSelectableError struct {
	Source string
}

func (e *SourceNotSelectableError) Error() string {
	return fmt.Sprintf("source %q is not selectable", e.Source)
}
