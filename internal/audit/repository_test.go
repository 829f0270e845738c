package audit

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/yamaha-remote-go/internal/api"
	"github.com/strefethen/yamaha-remote-go/internal/config"
	"github.com/strefethen/yamaha-remote-go/internal/db"
	"github.com/strefethen/yamaha-remote-go/internal/yamaha/ync"
)

func setupTestDB(t *testing.T) *db.DBPair {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	dbPair, err := db.Init(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })
	return dbPair
}

func setupService(t *testing.T) *Service {
	t.Helper()
	return NewService(config.Config{AuditRetentionDays: 7}, setupTestDB(t), log.New(io.Discard, "", 0))
}

func rc(code ync.ResultCode) *ync.ResultCode {
	return &code
}

func TestRepository_InsertAndGet(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	code := 3
	requestID := "req-123"
	record, err := repo.Insert(WriteInput{
		Command:    "PUT",
		Fragment:   "<Main_Zone><Volume><Mute>On</Mute></Volume></Main_Zone>",
		ResultCode: &code,
		DurationMs: 12,
		Outcome:    OutcomeWarning,
		RequestID:  &requestID,
	})
	require.NoError(t, err)
	require.NotEmpty(t, record.ExchangeID)
	require.Equal(t, "PUT", record.Command)
	require.Equal(t, OutcomeWarning, record.Outcome)
	require.Equal(t, 3, *record.ResultCode)
	require.Equal(t, "req-123", *record.RequestID)
	require.Nil(t, record.Error)
	require.Empty(t, record.ZonePath)
	require.False(t, record.Timestamp.IsZero())

	missing, err := repo.Get("does-not-exist")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRepository_QueryNewestFirstWithFilters(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	repo.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	for _, outcome := range []Outcome{OutcomeOK, OutcomeTimeout, OutcomeOK, OutcomeOK} {
		_, err := repo.Insert(WriteInput{Command: "GET", Fragment: "<List_Info>", ZonePath: "USB", Outcome: outcome})
		require.NoError(t, err)
	}

	records, total, err := repo.Query(QueryFilters{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 4, total)
	require.Len(t, records, 2)
	require.True(t, records[0].Timestamp.After(records[1].Timestamp))

	timeout := OutcomeTimeout
	records, total, err = repo.Query(QueryFilters{Outcome: &timeout})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, "USB", records[0].ZonePath)

	since := base.Add(3 * time.Second)
	_, total, err = repo.Query(QueryFilters{Since: &since})
	require.NoError(t, err)
	require.Equal(t, 2, total)
}

func TestRepository_PruneBefore(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	now := time.Now()

	repo.now = func() time.Time { return now.AddDate(0, 0, -10) }
	_, err := repo.Insert(WriteInput{Command: "GET", Fragment: "old", Outcome: OutcomeOK})
	require.NoError(t, err)

	repo.now = func() time.Time { return now }
	_, err = repo.Insert(WriteInput{Command: "GET", Fragment: "new", Outcome: OutcomeOK})
	require.NoError(t, err)

	deleted, err := repo.PruneBefore(now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	records, _, err := repo.Query(QueryFilters{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "new", records[0].Fragment)
}

func TestOutcomeOf(t *testing.T) {
	require.Equal(t, OutcomeOK, OutcomeOf(ync.Exchange{RC: rc(ync.RCOK)}))
	require.Equal(t, OutcomeWarning, OutcomeOf(ync.Exchange{RC: rc(ync.RCSystemError)}))
	require.Equal(t, OutcomeTimeout, OutcomeOf(ync.Exchange{Err: &ync.TimeoutError{Command: ync.Get, Err: context.DeadlineExceeded}}))
	require.Equal(t, OutcomeUnreachable, OutcomeOf(ync.Exchange{Err: &ync.UnreachableError{Command: ync.Put, Err: errors.New("refused")}}))
	require.Equal(t, OutcomeProtocolError, OutcomeOf(ync.Exchange{Err: &ync.ProtocolError{Reason: "malformed response"}}))
	require.Equal(t, OutcomeError, OutcomeOf(ync.Exchange{Err: errors.New("boom")}))
}

func TestService_RecordExchangeCarriesRequestID(t *testing.T) {
	service := setupService(t)
	ctx := api.WithRequestID(context.Background(), "req-abc")

	service.RecordExchange(ctx, ync.Exchange{
		Command:  ync.Get,
		Fragment: "<Main_Zone><Basic_Status>GetParam</Basic_Status></Main_Zone>",
		RC:       rc(ync.RCOK),
		Duration: 8,
	})
	service.RecordExchange(context.Background(), ync.Exchange{
		Command: ync.Put,
		Err:     &ync.UnreachableError{Command: ync.Put, Err: errors.New("refused")},
	})

	requestID := "req-abc"
	records, total, hasMore, err := service.Query(QueryFilters{RequestID: &requestID})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.False(t, hasMore)
	require.Equal(t, 0, *records[0].ResultCode)
	require.Equal(t, int64(8), records[0].DurationMs)

	unreachable := OutcomeUnreachable
	records, _, _, err = service.Query(QueryFilters{Outcome: &unreachable})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Nil(t, records[0].ResultCode)
	require.Contains(t, *records[0].Error, "refused")
	require.True(t, service.IsHealthy())
}

func TestService_PruneJobRejectsBadSchedule(t *testing.T) {
	service := NewService(config.Config{AuditPruneSchedule: "not a schedule"}, setupTestDB(t), log.New(io.Discard, "", 0))
	require.Error(t, service.StartPruneJob())
	service.StopPruneJob()
}

func TestService_PruneJobStartStop(t *testing.T) {
	service := setupService(t)
	require.NoError(t, service.StartPruneJob())
	service.StopPruneJob()
}

func TestHistoryRoute(t *testing.T) {
	service := setupService(t)
	for range 3 {
		service.RecordExchange(context.Background(), ync.Exchange{Command: ync.Get, Fragment: "<List_Info>", RC: rc(ync.RCOK)})
	}

	router := chi.NewRouter()
	RegisterRoutes(router, service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history?limit=2&outcome=ok", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"has_more":true`)
	require.Contains(t, rec.Body.String(), `"object":"exchange"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/history?outcome=sideways", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
