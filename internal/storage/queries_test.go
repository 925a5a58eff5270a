package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/your-org/visitrack/internal/config"
	"github.com/your-org/visitrack/internal/matching"
	"github.com/your-org/visitrack/internal/models"
)

var testRun = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")

func TestBuildAssociationWhere(t *testing.T) {
	linked := models.DecisionLinked
	minScore, maxScore := 0.5, 0.9
	cam := uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000002")
	from := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	tests := []struct {
		name    string
		filter  AssociationFilter
		where   string
		args    []any
		nextArg int
	}{
		{
			name:    "run only",
			where:   "WHERE run_id = $1",
			args:    []any{testRun},
			nextArg: 2,
		},
		{
			name:    "decision and score range",
			filter:  AssociationFilter{Decision: &linked, MinScore: &minScore, MaxScore: &maxScore},
			where:   "WHERE run_id = $1 AND decision = $2 AND score >= $3 AND score <= $4",
			args:    []any{testRun, "linked", 0.5, 0.9},
			nextArg: 5,
		},
		{
			name:    "pin and time range",
			filter:  AssociationFilter{CameraID: &cam, From: &from, To: &to},
			where:   "WHERE run_id = $1 AND from_camera_id = $2 AND from_t_in >= $3 AND from_t_in <= $4",
			args:    []any{testRun, cam, from, to},
			nextArg: 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, next := buildAssociationWhere(testRun, tt.filter)
			assert.Equal(t, tt.where, where)
			assert.Equal(t, tt.args, args)
			assert.Equal(t, tt.nextArg, next)
		})
	}
}

func TestBuildJourneyWhere(t *testing.T) {
	conf := 0.75
	entry := uuid.MustParse("cccccccc-0000-0000-0000-000000000003")
	exit := uuid.MustParse("dddddddd-0000-0000-0000-000000000004")
	completed := models.JourneyCompleted

	where, args, next := buildJourneyWhere(testRun, JourneyFilter{
		MinConfidence: &conf,
		EntryPoint:    &entry,
		ExitPoint:     &exit,
		Status:        &completed,
	})
	assert.Equal(t, "WHERE run_id = $1 AND confidence >= $2 AND entry_point = $3 AND exit_point = $4 AND status = $5", where)
	assert.Equal(t, []any{testRun, 0.75, entry, exit, "completed"}, args)
	assert.Equal(t, 6, next)
}

func TestPageBounds(t *testing.T) {
	tests := []struct {
		limit, offset    int
		wantLim, wantOff int
	}{
		{0, 0, 50, 0},
		{10, 20, 10, 20},
		{10000, -3, 500, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.limit, tt.offset), func(t *testing.T) {
			l, o := pageBounds(tt.limit, tt.offset)
			assert.Equal(t, tt.wantLim, l)
			assert.Equal(t, tt.wantOff, o)
		})
	}
}

func TestClassify(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "associations_linked_target_uniq"}
	err := classify("copy associations", fmt.Errorf("wrapped: %w", dup))
	assert.ErrorIs(t, err, matching.ErrIntegrity)
	assert.Contains(t, err.Error(), "associations_linked_target_uniq")

	other := classify("copy journeys", errors.New("conn reset"))
	assert.False(t, errors.Is(other, matching.ErrIntegrity))
	assert.EqualError(t, other, "copy journeys: conn reset")
}

func TestMigrateURL(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5432, Name: "vt", User: "u", Password: "p"}
	assert.Equal(t, "pgx5://u:p@db:5432/vt?sslmode=disable", migrateURL(cfg))
}

func TestReportKey(t *testing.T) {
	venue := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	assert.Equal(t, "runs/11111111-1111-1111-1111-111111111111/aaaaaaaa-0000-0000-0000-000000000001/report.json",
		ReportKey(venue, testRun))
}
