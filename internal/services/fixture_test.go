package services_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/thinkstack/apiserver/internal/services"
	"github.com/thinkstack/apiserver/internal/store/memstore"
	"github.com/thinkstack/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword    = "secret1"
	testAdminSecret = "letmein"
)

type publishedEvent struct {
	Type    string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, Payload: payload})
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []publishedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

type fixtureOptions struct {
	policy       services.PointsPolicy
	allowRegrade bool
}

type fixture struct {
	store       *memstore.Store
	publisher   *recordingPublisher
	identity    *services.IdentityService
	challenges  *services.ChallengeService
	solutions   *services.SolutionService
	leaderboard *services.LeaderboardService
	teams       *services.TeamService

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, opts ...func(*fixtureOptions)) *fixture {
	t.Helper()

	options := fixtureOptions{policy: services.PointsPolicy{Mode: services.PointsModeScore}}
	for _, opt := range opts {
		opt(&options)
	}

	f := &fixture{
		store:     memstore.New(),
		publisher: &recordingPublisher{},
		now:       time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f.identity = services.NewIdentityService(f.store, services.NewBcryptHasher(bcrypt.MinCost), testAdminSecret, logger)
	f.leaderboard = services.NewLeaderboardService(f.store, options.policy, logger, f.clock)
	f.challenges = services.NewChallengeService(f.store, f.publisher, logger, f.clock)
	f.solutions = services.NewSolutionService(f.store, f.leaderboard, f.publisher, options.allowRegrade, logger, f.clock)
	f.teams = services.NewTeamService(f.store, logger, f.clock)
	return f
}

func withFlatPoints(o *fixtureOptions) {
	o.policy = services.PointsPolicy{Mode: services.PointsModeFlat, FlatPoints: 10}
}

func withRegrade(o *fixtureOptions) {
	o.allowRegrade = true
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) register(t *testing.T, name, email string, role types.Role) types.User {
	t.Helper()
	user, err := f.identity.Register(context.Background(), services.RegisterInput{
		Name:     name,
		Email:    email,
		Password: testPassword,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return user
}

func (f *fixture) admin(t *testing.T) types.User {
	t.Helper()
	admin, err := f.identity.RegisterAdmin(context.Background(), services.RegisterInput{
		Name:     "root",
		Email:    "admin@example.com",
		Password: testPassword,
	}, testAdminSecret)
	if err != nil {
		t.Fatalf("register admin: %v", err)
	}
	return admin
}

func (f *fixture) challengeInput() services.ChallengeInput {
	return services.ChallengeInput{
		Title:             "Route optimizer",
		Description:       "Find the shortest delivery routes",
		Category:          "Algorithms",
		ParticipationType: types.ParticipationIndividual,
		Deadline:          f.clock().Add(7 * 24 * time.Hour),
		Prize:             5000,
	}
}

func (f *fixture) createChallenge(t *testing.T, owner types.User, input services.ChallengeInput) types.ChallengeRecord {
	t.Helper()
	record, err := f.challenges.Create(context.Background(), owner, input)
	if err != nil {
		t.Fatalf("create challenge: %v", err)
	}
	return record
}

func (f *fixture) setStatus(t *testing.T, id int64, to types.ChallengeStatus, actor types.User) types.ChallengeRecord {
	t.Helper()
	record, err := f.challenges.SetStatus(context.Background(), id, to, actor)
	if err != nil {
		t.Fatalf("set status %s: %v", to, err)
	}
	return record
}

// challengeIn creates a challenge and walks it to status through legal edges.
func (f *fixture) challengeIn(t *testing.T, owner, admin types.User, status types.ChallengeStatus) types.ChallengeRecord {
	t.Helper()
	record := f.createChallenge(t, owner, f.challengeInput())
	var path []types.ChallengeStatus
	switch status {
	case types.ChallengePending:
	case types.ChallengeApproved:
		path = []types.ChallengeStatus{types.ChallengeApproved}
	case types.ChallengeRejected:
		path = []types.ChallengeStatus{types.ChallengeRejected}
	case types.ChallengeActive:
		path = []types.ChallengeStatus{types.ChallengeApproved, types.ChallengeActive}
	case types.ChallengeCompleted:
		path = []types.ChallengeStatus{types.ChallengeApproved, types.ChallengeActive, types.ChallengeCompleted}
	default:
		t.Fatalf("unknown status %q", status)
	}
	for _, next := range path {
		record = f.setStatus(t, record.ID, next, admin)
	}
	return record
}

func (f *fixture) activeChallenge(t *testing.T, owner, admin types.User, input services.ChallengeInput) types.ChallengeRecord {
	t.Helper()
	record := f.createChallenge(t, owner, input)
	f.setStatus(t, record.ID, types.ChallengeApproved, admin)
	return f.setStatus(t, record.ID, types.ChallengeActive, admin)
}

func (f *fixture) submit(t *testing.T, actor types.User, input services.SubmitInput) types.Solution {
	t.Helper()
	solution, err := f.solutions.Submit(context.Background(), actor, input)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return solution
}

func (f *fixture) entry(t *testing.T, userID int64) types.LeaderboardEntry {
	t.Helper()
	entry, err := f.leaderboard.Entry(context.Background(), userID)
	if err != nil {
		t.Fatalf("leaderboard entry %d: %v", userID, err)
	}
	return entry
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
