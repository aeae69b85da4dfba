package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in      string
		want    Money
		wantErr bool
	}{
		{in: "50", want: 5000},
		{in: "50.00", want: 5000},
		{in: "12.34", want: 1234},
		{in: "0.1", want: 10},
		{in: " 7.5 ", want: 750},
		{in: "1.005", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "92233720368547758.07", want: 9223372036854775807},
		{in: "92233720368547758.08", wantErr: true},
		{in: "184467440737095566.16", wantErr: true},
		{in: "-92233720368547758.09", wantErr: true},
		{in: "1e30", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseMoney(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseMoney(%q): expected error, got %d", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseMoney(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseMoney(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(Money(5000))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "50.00" {
		t.Fatalf("unexpected encoding: %s", data)
	}

	var fromNumber, fromString Money
	if err := json.Unmarshal([]byte("19.99"), &fromNumber); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if err := json.Unmarshal([]byte(`"19.99"`), &fromString); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if fromNumber != 1999 || fromString != 1999 {
		t.Fatalf("unexpected values: %d %d", fromNumber, fromString)
	}

	var overflow Money
	if err := json.Unmarshal([]byte("184467440737095566.16"), &overflow); err == nil {
		t.Fatalf("expected out-of-range amount to fail, got %d", overflow)
	}
}

func TestChallengeViewJSON(t *testing.T) {
	created := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)
	deadline := time.Date(2026, 10, 8, 9, 30, 0, 0, time.UTC)
	maxSize := 4
	record := ChallengeRecord{
		Challenge: Challenge{
			ID:                7,
			Title:             "Route optimizer",
			Description:       "Shortest delivery routes",
			Category:          "Algorithms",
			ParticipationType: ParticipationTeam,
			Prize:             5000,
			MinTeamSize:       2,
			MaxTeamSize:       &maxSize,
			Deadline:          deadline,
			Status:            ChallengeActive,
			CreatedByID:       1,
			CreatedAt:         created,
		},
		CreatedByName: "alice",
		SolutionCount: 3,
	}

	now := time.Date(2026, 10, 6, 9, 0, 0, 0, time.UTC)
	data, err := json.Marshal(record.View(now))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"id":7,"title":"Route optimizer","description":"Shortest delivery routes","category":"Algorithms",` +
		`"participationType":"TEAM","cashPrize":50.00,"minTeamSize":2,"maxTeamSize":4,` +
		`"deadline":"2026-10-08T09:30:00Z","status":"ACTIVE","createdBy":"alice",` +
		`"createdAt":"2026-10-01T09:30:00Z","solutionCount":3,"isExpired":false,"daysRemaining":3}`
	if string(data) != want {
		t.Fatalf("unexpected json:\n got %s\nwant %s", data, want)
	}
}

func TestChallengeDerivedFields(t *testing.T) {
	deadline := time.Date(2026, 10, 8, 0, 0, 0, 0, time.UTC)
	c := Challenge{Deadline: deadline}

	if got := c.DaysRemaining(deadline.Add(-48 * time.Hour)); got != 2 {
		t.Fatalf("expected 2 days, got %d", got)
	}
	if got := c.DaysRemaining(deadline.Add(-time.Minute)); got != 1 {
		t.Fatalf("expected partial day to round up, got %d", got)
	}
	if got := c.DaysRemaining(deadline.Add(time.Hour)); got != 0 {
		t.Fatalf("expected 0 after deadline, got %d", got)
	}
	if c.IsExpired(deadline) {
		t.Fatalf("deadline instant itself is not expired")
	}
	if !c.IsExpired(deadline.Add(time.Nanosecond)) {
		t.Fatalf("expected expired after deadline")
	}
}

func TestRankedEntryJSON(t *testing.T) {
	data, err := json.Marshal(RankedEntry{UserID: 3, UserName: "alice", Score: 80, ChallengesCompleted: 1})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"user_id":3,"user_name":"alice","score":80,"challenges_completed":1}`
	if string(data) != want {
		t.Fatalf("unexpected json: %s", data)
	}
}
