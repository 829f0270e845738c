package yamaha

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/yamaha-remote-go/internal/api"
	"github.com/strefethen/yamaha-remote-go/internal/apperrors"
	"github.com/strefethen/yamaha-remote-go/internal/yamaha/ync"
)

// RegisterRoutes wires receiver routes to the router.
func RegisterRoutes(router chi.Router, receiver *Receiver, names DisplayNames) {
	router.Route("/v1/receiver", func(rcv chi.Router) {
		rcv.Method(http.MethodGet, "/", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			return api.WriteResource(w, http.StatusOK, stateResource(receiver))
		}))

		rcv.Method(http.MethodPost, "/refresh", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			if err := receiver.Refresh(r.Context()); err != nil {
				return receiverError(err, "Failed to refresh receiver state")
			}
			return api.WriteResource(w, http.StatusOK, stateResource(receiver))
		}))

		rcv.Method(http.MethodGet, "/network-name", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			name, err := receiver.NetworkName(r.Context())
			if err != nil {
				return receiverError(err, "Failed to read network name")
			}
			return api.WriteResource(w, http.StatusOK, map[string]any{
				"object": "network_name",
				"name":   name,
			})
		}))

		rcv.Method(http.MethodPut, "/power", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			var body struct {
				On *bool `json:"on"`
			}
			if err := api.DecodeJSON(r, &body); err != nil || body.On == nil {
				return apperrors.NewValidationError("on is required", nil)
			}
			if err := receiver.SetPower(r.Context(), *body.On); err != nil {
				return receiverError(err, "Failed to set power")
			}
			return api.WriteResource(w, http.StatusOK, stateResource(receiver))
		}))

		rcv.Method(http.MethodPut, "/volume", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			var body struct {
				DB *float64 `json:"db"`
			}
			if err := api.DecodeJSON(r, &body); err != nil || body.DB == nil || math.IsNaN(*body.DB) {
				return apperrors.NewValidationError("db is required", nil)
			}
			requested, err := receiver.SetVolume(*body.DB)
			if err != nil {
				return apperrors.NewValidationError(err.Error(), nil)
			}
			return api.WriteAction(w, http.StatusAccepted, map[string]any{
				"object":       "volume_request",
				"requested_db": requested,
				"committed_db": receiver.Volume(),
				"requested_at": api.RFC3339Millis(time.Now()),
			})
		}))

		rcv.Method(http.MethodPut, "/mute", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			var body struct {
				Muted *bool `json:"muted"`
			}
			if err := api.DecodeJSON(r, &body); err != nil || body.Muted == nil {
				return apperrors.NewValidationError("muted is required", nil)
			}
			if err := receiver.SetMuted(r.Context(), *body.Muted); err != nil {
				return receiverError(err, "Failed to set mute")
			}
			return api.WriteResource(w, http.StatusOK, stateResource(receiver))
		}))

		rcv.Method(http.MethodPut, "/source", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			var body struct {
				Source string `json:"source"`
			}
			if err := api.DecodeJSON(r, &body); err != nil || body.Source == "" {
				return apperrors.NewValidationError("source is required", nil)
			}
			if err := receiver.SetSource(r.Context(), body.Source); err != nil {
				return receiverError(err, "Failed to select source")
			}
			return api.WriteResource(w, http.StatusOK, stateResource(receiver))
		}))

		rcv.Method(http.MethodPost, "/shuffle/cycle", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			mode, err := receiver.CycleShuffle(r.Context())
			if err != nil {
				return receiverError(err, "Failed to change shuffle mode")
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object":  "play_mode",
				"shuffle": mode,
			})
		}))

		rcv.Method(http.MethodPost, "/repeat/cycle", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			mode, err := receiver.CycleRepeat(r.Context())
			if err != nil {
				return receiverError(err, "Failed to change repeat mode")
			}
			return api.WriteAction(w, http.StatusOK, map[string]any{
				"object": "play_mode",
				"repeat": mode,
			})
		}))

		rcv.Method(http.MethodGet, "/sources", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
			if _, err := receiver.Sources(r.Context()); err != nil {
				return receiverError(err, "Failed to list sources")
			}

			includeAll := r.URL.Query().Get("all") == "true"
			data := []map[string]any{}
			for _, source := range receiver.Catalog().All() {
				if !source.Writable && !includeAll {
					continue
				}
				data = append(data, map[string]any{
					"object":       "source",
					"id":           source.ID,
					"display_name": names.Label(source.ID),
					"title":        source.Title,
					"zone_path":    source.ZonePath,
					"writable":     source.Writable,
					"has_menu":     HasMenu(source.ID),
					"active":       source.ID == receiver.Source(),
				})
			}
			return api.WriteList(w, "/v1/receiver/sources", data, false)
		}))

		rcv.Route("/menu", func(menu chi.Router) {
			menu.Method(http.MethodGet, "/", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
				m := receiver.Menu()
				name, err := m.Name(r.Context())
				if err != nil {
					return receiverError(err, "Failed to read menu")
				}
				entries, err := m.List(r.Context())
				if err != nil {
					return receiverError(err, "Failed to read menu")
				}
				title, _ := headingText(name)
				if title == "" {
					title = names.Label(receiver.Source())
				}
				return api.WriteResource(w, http.StatusOK, map[string]any{
					"object":    "menu",
					"source":    receiver.Source(),
					"available": m.Available(),
					"name":      title,
					"entries":   menuEntries(entries),
				})
			}))

			menu.Method(http.MethodGet, "/current", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
				info, ok, err := receiver.Menu().Current(r.Context())
				if err != nil {
					return receiverError(err, "Failed to read menu")
				}
				if !ok {
					return apperrors.NewAppError(apperrors.ErrorCodeMenuUnavailable, "Menu is not available", http.StatusConflict, nil)
				}
				return api.WriteResource(w, http.StatusOK, map[string]any{
					"object":       "menu_page",
					"status":       info.Status,
					"name":         info.Name,
					"layer":        info.Layer,
					"current_line": info.CurrentLine,
					"max_line":     info.MaxLine,
					"entries":      menuEntries(info.Entries),
				})
			}))

			menu.Method(http.MethodPost, "/select", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
				var body struct {
					Line int `json:"line"`
				}
				if err := api.DecodeJSON(r, &body); err != nil || body.Line < 1 {
					return apperrors.NewValidationError("line must be 1 or greater", nil)
				}
				selected, err := receiver.Menu().SelectLine(r.Context(), body.Line)
				if err != nil {
					return receiverError(err, "Failed to select menu line")
				}
				if !selected {
					return apperrors.NewAppError(apperrors.ErrorCodeMenuUnavailable, "Menu is not available", http.StatusConflict, nil)
				}
				return api.WriteAction(w, http.StatusOK, map[string]any{
					"object": "menu_action",
					"action": "select",
					"line":   body.Line,
				})
			}))

			menu.Method(http.MethodPost, "/return", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
				if err := receiver.Menu().Return(r.Context()); err != nil {
					return receiverError(err, "Failed to return to parent menu")
				}
				return api.WriteAction(w, http.StatusOK, map[string]any{
					"object": "menu_action",
					"action": "return",
				})
			}))
		})
	})
}

func stateResource(receiver *Receiver) map[string]any {
	state := receiver.Snapshot()
	return map[string]any{
		"object":   "receiver_state",
		"power":    state.Power,
		"volume":   state.Volume,
		"muted":    state.Muted,
		"source":   state.Source,
		"shuffle":  state.Shuffle,
		"repeat":   state.Repeat,
		"has_menu": HasMenu(state.Source),
	}
}

func menuEntries(entries []MenuEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		text, heading := entry.Heading()
		out = append(out, map[string]any{
			"line":    entry.Line,
			"text":    text,
			"heading": heading,
		})
	}
	return out
}

// receiverError maps core errors onto API errors.
func receiverError(err error, message string) error {
	var timeout *ync.TimeoutError
	var unreachable *ync.UnreachableError
	var protocol *ync.ProtocolError
	var notSelectable *SourceNotSelectableError

	switch {
	case errors.As(err, &timeout):
		return apperrors.NewReceiverTimeoutError(message + ": receiver timed out")
	case errors.As(err, &unreachable):
		return apperrors.NewReceiverUnreachableError(message + ": receiver unreachable")
	case errors.As(err, &protocol):
		return apperrors.NewReceiverProtocolError(message + ": " + protocol.Reason)
	case errors.As(err, &notSelectable):
		return apperrors.NewAppError(apperrors.ErrorCodeSourceNotSelectable, notSelectable.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, ErrInvalidLine), errors.Is(err, ErrInvalidVolume):
		return apperrors.NewValidationError(err.Error(), nil)
	default:
		return apperrors.NewInternalError(message)
	}
}
