package scheduler

import (
	"testing"
	"time"
)

func TestCalculateNextDue(t *testing.T) {
	from := time.Date(2026, 8, 20, 2, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		expr string
		want time.Time
	}{
		{
			name: "daily at 3am",
			expr: "0 3 * * *",
			want: time.Date(2026, 8, 20, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "every 15 minutes",
			expr: "*/15 * * * *",
			want: time.Date(2026, 8, 20, 2, 15, 0, 0, time.UTC),
		},
		{
			name: "weekly on monday",
			expr: "0 9 * * 1",
			want: time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateNextDue(tt.expr, from)
			if err != nil {
				t.Fatalf("CalculateNextDue(%q): %v", tt.expr, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("next due = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateCronExpr(t *testing.T) {
	valid := []string{"0 3 * * *", "*/5 * * * *", "30 2 1 * *"}
	for _, expr := range valid {
		if err := ValidateCronExpr(expr); err != nil {
			t.Errorf("ValidateCronExpr(%q) = %v, want nil", expr, err)
		}
	}

	invalid := []string{"", "not a cron", "99 99 * * *", "* * *"}
	for _, expr := range invalid {
		if err := ValidateCronExpr(expr); err == nil {
			t.Errorf("ValidateCronExpr(%q) = nil, want error", expr)
		}
	}
}
