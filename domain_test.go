package entmigrate

import (
	"errors"
	"strings"
	"testing"
)

func TestMigrationFullName(t *testing.T) {
	tests := []struct {
		prefix int
		name   string
		want   string
	}{
		{0, "initial-locations", "000-initial-locations"},
		{7, "add-people", "007-add-people"},
		{42, "links", "042-links"},
		{123, "wide", "123-wide"},
	}
	for _, tt := range tests {
		m := Migration{Prefix: tt.prefix, Name: tt.name}
		if got := m.FullName(); got != tt.want {
			t.Errorf("FullName(%d, %s) = %s, want %s", tt.prefix, tt.name, got, tt.want)
		}
	}
}

func TestMigrationResultString(t *testing.T) {
	migration := Migration{Prefix: 1, Name: "sample"}

	tests := []struct {
		name   string
		result *MigrationResult
		want   string
	}{
		{
			name: "completed",
			result: &MigrationResult{
				Migration:            migration,
				Status:               StatusCompleted,
				DurationSeconds:      2.5,
				EntitiesCreated:      3,
				RelationshipsCreated: 1,
			},
			want: "completed in 2.5s (created: 3 entities, 1 relationships)",
		},
		{
			name: "failed",
			result: &MigrationResult{
				Migration: migration,
				Status:    StatusFailed,
				Err:       errors.New("boom"),
			},
			want: "failed after 0.0s: boom",
		},
		{
			name:   "skipped",
			result: &MigrationResult{Migration: migration, Status: StatusSkipped},
			want:   "skipped (already applied)",
		},
		{
			name:   "running",
			result: &MigrationResult{Migration: migration, Status: StatusRunning},
			want:   "is running",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.result.String()
			if !strings.Contains(got, "001-sample") || !strings.Contains(got, tt.want) {
				t.Errorf("unexpected string: %q", got)
			}
		})
	}
}

func TestSummaryString(t *testing.T) {
	s := Summary{Completed: 2, Skipped: 1, Failed: 0}
	if got := s.String(); got != "2 completed, 1 skipped, 0 failed" {
		t.Errorf("unexpected summary string: %q", got)
	}
}
