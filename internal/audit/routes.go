package audit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/yamaha-remote-go/internal/api"
	"github.com/strefethen/yamaha-remote-go/internal/apperrors"
)

// RegisterRoutes wires the command history route to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/history", api.Handler(queryHistory(service)))
}

// queryHistory lists recent receiver exchanges.
// GET /v1/history
func queryHistory(service *Service) func(w http.ResponseWriter, r *http.Request) error {
	return func(w http.ResponseWriter, r *http.Request) error {
		filters, err := parseQueryFilters(r)
		if err != nil {
			return err
		}

		records, _, hasMore, err := service.Query(filters)
		if err != nil {
			return apperrors.NewInternalError("Failed to query command history")
		}

		data := make([]map[string]any, 0, len(records))
		for _, record := range records {
			data = append(data, formatRecord(record))
		}
		return api.WriteList(w, "/v1/history", data, hasMore)
	}
}

func parseQueryFilters(r *http.Request) (QueryFilters, error) {
	filters := QueryFilters{Limit: DefaultQueryLimit}
	query := r.URL.Query()

	if value := query.Get("outcome"); value != "" {
		outcome, ok := validOutcomes[strings.ToUpper(value)]
		if !ok {
			return filters, apperrors.NewValidationError("invalid outcome", map[string]any{"outcome": value})
		}
		filters.Outcome = &outcome
	}

	if value := query.Get("command"); value != "" {
		command := strings.ToUpper(value)
		if command != "GET" && command != "PUT" {
			return filters, apperrors.NewValidationError("command must be GET or PUT", map[string]any{"command": value})
		}
		filters.Command = &command
	}

	if value := query.Get("request_id"); value != "" {
		filters.RequestID = &value
	}

	if value := query.Get("since"); value != "" {
		since, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return filters, apperrors.NewValidationError("invalid 'since' datetime format, expected ISO 8601", map[string]any{"since": value})
		}
		filters.Since = &since
	}

	if value := query.Get("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 1 || limit > MaxQueryLimit {
			return filters, apperrors.NewValidationError("invalid limit, must be between 1 and 1000", map[string]any{"limit": value})
		}
		filters.Limit = limit
	}

	if value := query.Get("offset"); value != "" {
		offset, err := strconv.Atoi(value)
		if err != nil || offset < 0 {
			return filters, apperrors.NewValidationError("invalid offset, must be >= 0", map[string]any{"offset": value})
		}
		filters.Offset = offset
	}

	return filters, nil
}

func formatRecord(record Record) map[string]any {
	result := map[string]any{
		"object":      "exchange",
		"id":          record.ExchangeID,
		"timestamp":   api.RFC3339Millis(record.Timestamp),
		"command":     record.Command,
		"fragment":    record.Fragment,
		"zone_path":   record.ZonePath,
		"duration_ms": record.DurationMs,
		"outcome":     string(record.Outcome),
	}
	if record.ResultCode != nil {
		result["result_code"] = *record.ResultCode
	}
	if record.Error != nil {
		result["error"] = *record.Error
	}
	if record.RequestID != nil {
		result["request_id"] = *record.RequestID
	}
	return result
}
