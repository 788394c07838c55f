package entity_test

import (
	"encoding/json"
	"strings"
	"testing"

	"bias-eval-service/internal/entity"
)

func TestPercent(t *testing.T) {
	cases := []struct {
		processed, total, want int
	}{
		{0, 4, 0},
		{1, 4, 25},
		{2, 4, 50},
		{3, 4, 75},
		{4, 4, 100},
		{1, 3, 33},
		{2, 3, 67},
		{5, 4, 100}, // clamped
		{0, 0, 0},   // zero-corpus jobs are rejected at creation, stay safe anyway
	}
	for _, tc := range cases {
		j := entity.Job{ProcessedCount: tc.processed, TotalPrompts: tc.total}
		if got := j.Percent(); got != tc.want {
			t.Fatalf("%d/%d: expected %d%%, got %d%%", tc.processed, tc.total, tc.want, got)
		}
	}
}

func TestSummaryDerivedFromLists(t *testing.T) {
	j := entity.Job{
		Results: []entity.PromptResult{{Prompt: "a"}, {Prompt: "b"}},
		Errors:  []entity.PromptError{{Prompt: "c"}},
	}
	sum := j.Summary()
	if sum.Total != 3 || sum.Successful != 2 || sum.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestTerminalStatus(t *testing.T) {
	cases := []struct {
		successful, failed int
		want               entity.JobStatus
	}{
		{3, 0, entity.StatusSuccess},
		{2, 1, entity.StatusPartialSuccess},
		{0, 3, entity.StatusFailed},
	}
	for _, tc := range cases {
		if got := entity.TerminalStatus(tc.successful, tc.failed); got != tc.want {
			t.Fatalf("%d/%d: expected %s, got %s", tc.successful, tc.failed, tc.want, got)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	terminal := []entity.JobStatus{entity.StatusSuccess, entity.StatusPartialSuccess, entity.StatusFailed}
	working := []entity.JobStatus{entity.StatusQueued, entity.StatusCollecting, entity.StatusEvaluating}

	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range working {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestPlacementValidation(t *testing.T) {
	for _, p := range []entity.APIKeyPlacement{
		entity.PlacementNone, entity.PlacementAuthHeader, entity.PlacementXAPIKey,
		entity.PlacementQueryParam, entity.PlacementBodyField,
	} {
		if !p.Valid() {
			t.Fatalf("%s should be valid", p)
		}
	}
	if entity.APIKeyPlacement("cookie").Valid() {
		t.Fatal("unknown placement should be invalid")
	}
	if entity.PlacementNone.RequiresKey() {
		t.Fatal("none placement must not require a key")
	}
	if !entity.PlacementQueryParam.RequiresKey() {
		t.Fatal("query_param placement must require a key")
	}
}

func TestJobConfigJSONRoundTripKeepsKey(t *testing.T) {
	// the key must survive storage serialization; keeping it out of client
	// responses is the transport layer's job
	cfg := entity.JobConfig{APIURL: "https://x", APIKey: "sk-1", APIKeyPlacement: entity.PlacementAuthHeader}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "sk-1") {
		t.Fatalf("key missing from stored config: %s", b)
	}

	var back entity.JobConfig
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if back.APIKey != "sk-1" {
		t.Fatalf("key lost in round trip: %+v", back)
	}
}
