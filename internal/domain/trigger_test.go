package domain

import "testing"

func TestTriggerGuard_Allows(t *testing.T) {
	pushMain := TriggerEvent{Kind: TriggerPush, Branch: "main"}
	pushFeature := TriggerEvent{Kind: TriggerPush, Branch: "feature/x"}
	pr := TriggerEvent{Kind: TriggerPullRequest, Branch: "feature/x"}
	scheduled := TriggerEvent{Kind: TriggerSchedule, Branch: "main"}

	tests := []struct {
		name  string
		guard *TriggerGuard
		event TriggerEvent
		want  bool
	}{
		{"nil guard allows everything", nil, pr, true},
		{"empty guard allows everything", &TriggerGuard{}, pushFeature, true},
		{"push to main passes push+main guard", &TriggerGuard{Events: []TriggerKind{TriggerPush}, Branch: "main"}, pushMain, true},
		{"pull request rejected by push guard", &TriggerGuard{Events: []TriggerKind{TriggerPush}, Branch: "main"}, pr, false},
		{"push to feature rejected by main guard", &TriggerGuard{Events: []TriggerKind{TriggerPush}, Branch: "main"}, pushFeature, false},
		{"schedule rejected by push guard", &TriggerGuard{Events: []TriggerKind{TriggerPush}, Branch: "main"}, scheduled, false},
		{"branch-only guard ignores kind", &TriggerGuard{Branch: "main"}, scheduled, true},
		{"event-only guard ignores branch", &TriggerGuard{Events: []TriggerKind{TriggerPush}}, pushFeature, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.guard.Allows(tt.event); got != tt.want {
				t.Errorf("Allows(%v) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestParseTriggerKind(t *testing.T) {
	for _, s := range []string{"push", "pull_request", "schedule"} {
		kind, err := ParseTriggerKind(s)
		if err != nil {
			t.Errorf("ParseTriggerKind(%q): %v", s, err)
		}
		if string(kind) != s {
			t.Errorf("ParseTriggerKind(%q) = %q", s, kind)
		}
	}

	if _, err := ParseTriggerKind("deploy"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
