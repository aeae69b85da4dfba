package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/thinkstack/apiserver/internal/services"
	"github.com/thinkstack/apiserver/types"
)

var allStatuses = []types.ChallengeStatus{
	types.ChallengePending,
	types.ChallengeApproved,
	types.ChallengeRejected,
	types.ChallengeActive,
	types.ChallengeCompleted,
}

func TestCanTransition(t *testing.T) {
	legal := map[[2]types.ChallengeStatus]bool{
		{types.ChallengePending, types.ChallengeApproved}:  true,
		{types.ChallengePending, types.ChallengeRejected}:  true,
		{types.ChallengeApproved, types.ChallengeActive}:   true,
		{types.ChallengeApproved, types.ChallengeRejected}: true,
		{types.ChallengeActive, types.ChallengeCompleted}:  true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := legal[[2]types.ChallengeStatus{from, to}]
			if got := services.CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestSetStatusFollowsGraph(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	owner := f.register(t, "carol", "carol@example.com", types.RoleChallenger)

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			record := f.challengeIn(t, owner, admin, from)
			updated, err := f.challenges.SetStatus(ctx, record.ID, to, admin)
			if services.CanTransition(from, to) {
				if err != nil {
					t.Fatalf("%s -> %s: %v", from, to, err)
				}
				if updated.Status != to {
					t.Fatalf("%s -> %s: status is %s", from, to, updated.Status)
				}
				continue
			}
			expectErr(t, err, services.ErrIllegalTransition)

			current, err := f.challenges.Get(ctx, record.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if current.Status != from {
				t.Fatalf("%s -> %s: failed transition changed status to %s", from, to, current.Status)
			}
		}
	}
}

func TestSetStatusPermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	owner := f.register(t, "carol", "carol@example.com", types.RoleChallenger)
	stranger := f.register(t, "dave", "dave@example.com", types.RoleChallenger)

	record := f.createChallenge(t, owner, f.challengeInput())

	_, err := f.challenges.SetStatus(ctx, record.ID, types.ChallengeRejected, stranger)
	expectErr(t, err, services.ErrUnauthorized)

	_, err = f.challenges.SetStatus(ctx, record.ID, types.ChallengeApproved, owner)
	expectErr(t, err, services.ErrUnauthorized)

	_, err = f.challenges.SetStatus(ctx, record.ID, types.ChallengeCompleted, owner)
	expectErr(t, err, services.ErrIllegalTransition)

	rejected, err := f.challenges.SetStatus(ctx, record.ID, types.ChallengeRejected, owner)
	if err != nil {
		t.Fatalf("owner reject: %v", err)
	}
	if rejected.Status != types.ChallengeRejected {
		t.Fatalf("expected REJECTED, got %s", rejected.Status)
	}

	_, err = f.challenges.SetStatus(ctx, 999, types.ChallengeApproved, admin)
	expectErr(t, err, services.ErrNotFound)
}

func TestSetStatusPublishesEvent(t *testing.T) {
	f := newFixture(t)
	admin := f.admin(t)
	owner := f.register(t, "carol", "carol@example.com", types.RoleChallenger)

	record := f.createChallenge(t, owner, f.challengeInput())
	f.setStatus(t, record.ID, types.ChallengeApproved, admin)

	events := f.publisher.ofType(services.EventChallengeStatusChanged)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	changed, ok := events[0].Payload.(types.ChallengeStatusChanged)
	if !ok {
		t.Fatalf("unexpected payload %T", events[0].Payload)
	}
	if changed.From != types.ChallengePending || changed.To != types.ChallengeApproved || changed.ActorID != admin.ID {
		t.Fatalf("unexpected event: %+v", changed)
	}
}

func TestCreateChallengeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "carol", "carol@example.com", types.RoleChallenger)
	solver := f.register(t, "sam", "sam@example.com", types.RoleSolver)

	two := 2
	tests := []struct {
		name   string
		actor  types.User
		modify func(*services.ChallengeInput)
		want   error
	}{
		{
			name:   "deadline in the past",
			actor:  owner,
			modify: func(in *services.ChallengeInput) { in.Deadline = f.clock().Add(-time.Hour) },
			want:   services.ErrInvalidDeadline,
		},
		{
			name:   "deadline now",
			actor:  owner,
			modify: func(in *services.ChallengeInput) { in.Deadline = f.clock() },
			want:   services.ErrInvalidDeadline,
		},
		{
			name:   "zero prize",
			actor:  owner,
			modify: func(in *services.ChallengeInput) { in.Prize = 0 },
			want:   services.ErrInvalidPrize,
		},
		{
			name:  "max below min",
			actor: owner,
			modify: func(in *services.ChallengeInput) {
				in.MinTeamSize = 3
				in.MaxTeamSize = &two
			},
			want: services.ErrInvalidTeamSize,
		},
		{
			name:   "missing title",
			actor:  owner,
			modify: func(in *services.ChallengeInput) { in.Title = "  " },
			want:   services.ErrValidation,
		},
		{
			name:   "unknown participation type",
			actor:  owner,
			modify: func(in *services.ChallengeInput) { in.ParticipationType = "DUO" },
			want:   services.ErrValidation,
		},
		{
			name:   "solver owner",
			actor:  solver,
			modify: func(in *services.ChallengeInput) {},
			want:   services.ErrUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := f.challengeInput()
			tt.modify(&input)
			_, err := f.challenges.Create(ctx, tt.actor, input)
			expectErr(t, err, tt.want)
		})
	}

	_, total, err := f.challenges.List(ctx, types.ChallengeFilter{}, 1, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected no challenges to be stored, got %d", total)
	}
}

func TestCreateChallengeDefaults(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "carol", "carol@example.com", types.RoleChallenger)

	input := f.challengeInput()
	input.Category = ""
	input.ParticipationType = "team"
	record := f.createChallenge(t, owner, input)

	if record.Status != types.ChallengePending {
		t.Fatalf("expected PENDING, got %s", record.Status)
	}
	if record.Category != "General" {
		t.Fatalf("expected default category, got %q", record.Category)
	}
	if record.ParticipationType != types.ParticipationTeam {
		t.Fatalf("expected TEAM, got %s", record.ParticipationType)
	}
	if record.MinTeamSize != 1 || record.MaxTeamSize != nil {
		t.Fatalf("unexpected team sizes: %d %v", record.MinTeamSize, record.MaxTeamSize)
	}
	if record.CreatedByName != "carol" || record.SolutionCount != 0 {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestUpdateSameValueIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "carol", "carol@example.com", types.RoleChallenger)
	record := f.createChallenge(t, owner, f.challengeInput())

	title := record.Title
	for i := 0; i < 2; i++ {
		f.advance(time.Minute)
		updated, err := f.challenges.Update(ctx, record.ID, owner, services.ChallengeUpdate{Title: &title})
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if !updated.UpdatedAt.Equal(record.UpdatedAt) {
			t.Fatalf("update %d wrote: updated_at %s, was %s", i, updated.UpdatedAt, record.UpdatedAt)
		}
		if updated.Title != title {
			t.Fatalf("update %d changed title to %q", i, updated.Title)
		}
	}
}

func TestUpdateChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	owner := f.register(t, "carol", "carol@example.com", types.RoleChallenger)
	stranger := f.register(t, "dave", "dave@example.com", types.RoleChallenger)
	record := f.createChallenge(t, owner, f.challengeInput())

	title := "Faster route optimizer"
	_, err := f.challenges.Update(ctx, record.ID, stranger, services.ChallengeUpdate{Title: &title})
	expectErr(t, err, services.ErrUnauthorized)

	past := f.clock().Add(-time.Minute)
	_, err = f.challenges.Update(ctx, record.ID, owner, services.ChallengeUpdate{Deadline: &past})
	expectErr(t, err, services.ErrInvalidDeadline)

	var prize types.Money
	_, err = f.challenges.Update(ctx, record.ID, owner, services.ChallengeUpdate{Prize: &prize})
	expectErr(t, err, services.ErrInvalidPrize)

	f.advance(time.Minute)
	updated, err := f.challenges.Update(ctx, record.ID, admin, services.ChallengeUpdate{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != title || !updated.UpdatedAt.Equal(f.clock()) {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if updated.CreatedByID != owner.ID {
		t.Fatalf("owner changed to %d", updated.CreatedByID)
	}
}

func TestUpdateImmutableOnceSolved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	owner := f.register(t, "carol", "carol@example.com", types.RoleChallenger)
	solver := f.register(t, "sam", "sam@example.com", types.RoleSolver)

	record := f.activeChallenge(t, owner, admin, f.challengeInput())

	title := "Renamed before anyone submitted"
	if _, err := f.challenges.Update(ctx, record.ID, owner, services.ChallengeUpdate{Title: &title}); err != nil {
		t.Fatalf("update without solutions: %v", err)
	}

	f.submit(t, solver, services.SubmitInput{ChallengeID: record.ID, Content: "done"})

	renamed := "Renamed after a submission"
	_, err := f.challenges.Update(ctx, record.ID, owner, services.ChallengeUpdate{Title: &renamed})
	expectErr(t, err, services.ErrImmutable)

	later := record.Deadline.Add(24 * time.Hour)
	_, err = f.challenges.Update(ctx, record.ID, admin, services.ChallengeUpdate{Deadline: &later})
	expectErr(t, err, services.ErrImmutable)

	// Unchanged values are not edits.
	if _, err := f.challenges.Update(ctx, record.ID, owner, services.ChallengeUpdate{Title: &title}); err != nil {
		t.Fatalf("same-value update: %v", err)
	}

	requirements := "Include a README"
	updated, err := f.challenges.Update(ctx, record.ID, owner, services.ChallengeUpdate{AdditionalRequirements: &requirements})
	if err != nil {
		t.Fatalf("update requirements: %v", err)
	}
	if updated.AdditionalRequirements != requirements {
		t.Fatalf("requirements not updated: %q", updated.AdditionalRequirements)
	}
}

func TestDeleteChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	owner := f.register(t, "carol", "carol@example.com", types.RoleChallenger)
	stranger := f.register(t, "dave", "dave@example.com", types.RoleChallenger)
	solver := f.register(t, "sam", "sam@example.com", types.RoleSolver)

	solved := f.activeChallenge(t, owner, admin, f.challengeInput())
	f.submit(t, solver, services.SubmitInput{ChallengeID: solved.ID, Content: "done"})

	expectErr(t, f.challenges.Delete(ctx, solved.ID, owner), services.ErrHasSubmissions)
	expectErr(t, f.challenges.Delete(ctx, solved.ID, admin), services.ErrHasSubmissions)

	fresh := f.createChallenge(t, owner, f.challengeInput())
	expectErr(t, f.challenges.Delete(ctx, fresh.ID, stranger), services.ErrUnauthorized)
	if err := f.challenges.Delete(ctx, fresh.ID, owner); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err := f.challenges.Get(ctx, fresh.ID)
	expectErr(t, err, services.ErrNotFound)
	expectErr(t, f.challenges.Delete(ctx, fresh.ID, owner), services.ErrNotFound)
}

func TestListChallenges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	carol := f.register(t, "carol", "carol@example.com", types.RoleChallenger)
	dave := f.register(t, "dave", "dave@example.com", types.RoleChallenger)

	var ids []int64
	for i, owner := range []types.User{carol, dave, carol} {
		input := f.challengeInput()
		if i == 1 {
			input.Category = "Web"
		}
		ids = append(ids, f.createChallenge(t, owner, input).ID)
		f.advance(time.Minute)
	}
	f.setStatus(t, ids[0], types.ChallengeApproved, admin)

	all, total, err := f.challenges.List(ctx, types.ChallengeFilter{}, 1, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("expected 3 challenges, got %d/%d", len(all), total)
	}
	if all[0].ID != ids[2] || all[1].ID != ids[1] || all[2].ID != ids[0] {
		t.Fatalf("expected newest first, got %d %d %d", all[0].ID, all[1].ID, all[2].ID)
	}

	mine, total, err := f.challenges.List(ctx, types.ChallengeFilter{OwnerID: carol.ID}, 1, 0)
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if total != 2 || len(mine) != 2 {
		t.Fatalf("expected 2 of carol's challenges, got %d", total)
	}

	web, _, err := f.challenges.List(ctx, types.ChallengeFilter{Category: "Web"}, 1, 0)
	if err != nil {
		t.Fatalf("list by category: %v", err)
	}
	if len(web) != 1 || web[0].ID != ids[1] {
		t.Fatalf("unexpected category listing: %+v", web)
	}

	approved, _, err := f.challenges.List(ctx, types.ChallengeFilter{Status: types.ChallengeApproved}, 1, 0)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(approved) != 1 || approved[0].ID != ids[0] {
		t.Fatalf("unexpected status listing: %+v", approved)
	}

	page, total, err := f.challenges.List(ctx, types.ChallengeFilter{}, 2, 2)
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if total != 3 || len(page) != 1 || page[0].ID != ids[0] {
		t.Fatalf("unexpected second page: %d items, total %d", len(page), total)
	}

	_, _, err = f.challenges.List(ctx, types.ChallengeFilter{Status: "OPEN"}, 1, 0)
	expectErr(t, err, services.ErrValidation)

	published, total, err := f.challenges.List(ctx, types.ChallengeFilter{PublishedOnly: true}, 1, 0)
	if err != nil {
		t.Fatalf("list published: %v", err)
	}
	if total != 1 || len(published) != 1 || published[0].ID != ids[0] {
		t.Fatalf("expected only the approved challenge, got %d/%d", len(published), total)
	}

	categories, err := f.challenges.Categories(ctx)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(categories) != 2 || categories[0] != "Algorithms" || categories[1] != "Web" {
		t.Fatalf("unexpected categories: %v", categories)
	}
}

func TestExpireOverdue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.admin(t)
	owner := f.register(t, "carol", "carol@example.com", types.RoleChallenger)

	input := f.challengeInput()
	input.Deadline = f.clock().Add(time.Hour)
	soon := f.activeChallenge(t, owner, admin, input)
	later := f.activeChallenge(t, owner, admin, f.challengeInput())

	_, err := f.challenges.ExpireOverdue(ctx, owner)
	expectErr(t, err, services.ErrUnauthorized)

	expired, err := f.challenges.ExpireOverdue(ctx, admin)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(expired) != 0 {
		t.Fatalf("nothing should expire yet, got %v", expired)
	}

	f.advance(2 * time.Hour)
	expired, err = f.challenges.ExpireOverdue(ctx, admin)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if len(expired) != 1 || expired[0] != soon.ID {
		t.Fatalf("expected only %d to expire, got %v", soon.ID, expired)
	}

	record, err := f.challenges.Get(ctx, soon.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != types.ChallengeCompleted {
		t.Fatalf("expected COMPLETED, got %s", record.Status)
	}
	record, err = f.challenges.Get(ctx, later.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != types.ChallengeActive {
		t.Fatalf("expected ACTIVE, got %s", record.Status)
	}
}

func TestScenarioCPastDeadline(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice", "alice@example.com", types.RoleChallenger)

	input := f.challengeInput()
	input.Deadline = f.clock().Add(-time.Hour)
	_, err := f.challenges.Create(context.Background(), alice, input)
	expectErr(t, err, services.ErrInvalidDeadline)
}

func TestVisibleTo(t *testing.T) {
	admin := types.User{ID: 1, Role: types.RoleAdmin}
	carol := types.User{ID: 2, Role: types.RoleChallenger}
	dave := types.User{ID: 3, Role: types.RoleSolver}

	tests := []struct {
		name          string
		filter        types.ChallengeFilter
		viewer        *types.User
		publishedOnly bool
	}{
		{name: "anonymous", viewer: nil, publishedOnly: true},
		{name: "anonymous asking for pending", filter: types.ChallengeFilter{Status: types.ChallengePending}, publishedOnly: true},
		{name: "anonymous asking for an owner", filter: types.ChallengeFilter{OwnerID: carol.ID}, publishedOnly: true},
		{name: "admin", viewer: &admin, publishedOnly: false},
		{name: "owner listing own", filter: types.ChallengeFilter{OwnerID: carol.ID}, viewer: &carol, publishedOnly: false},
		{name: "owner listing everyone", viewer: &carol, publishedOnly: true},
		{name: "other user listing owner", filter: types.ChallengeFilter{OwnerID: carol.ID}, viewer: &dave, publishedOnly: true},
	}
	for _, tt := range tests {
		got := services.VisibleTo(tt.filter, tt.viewer)
		if got.PublishedOnly != tt.publishedOnly {
			t.Fatalf("%s: expected PublishedOnly=%v, got %+v", tt.name, tt.publishedOnly, got)
		}
		got.PublishedOnly = tt.filter.PublishedOnly
		if got != tt.filter {
			t.Fatalf("%s: other filter fields changed: %+v", tt.name, got)
		}
	}
}
