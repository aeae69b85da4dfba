package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/thinkstack/apiserver/internal/store"
	"github.com/thinkstack/apiserver/types"
)

// SubmitInput carries a new solution. TeamID is set for team challenges.
type SubmitInput struct {
	ChallengeID   int64
	TeamID        int64
	Content       string
	AttachmentURL string
}

// SolutionService owns submissions and grading.
type SolutionService struct {
	tx           Transactor
	leaderboard  *LeaderboardService
	publisher    EventPublisher
	allowRegrade bool
	logger       *slog.Logger
	now          func() time.Time
}

func NewSolutionService(
	tx Transactor,
	leaderboard *LeaderboardService,
	publisher EventPublisher,
	allowRegrade bool,
	logger *slog.Logger,
	now func() time.Time,
) *SolutionService {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &SolutionService{
		tx:           tx,
		leaderboard:  leaderboard,
		publisher:    publisher,
		allowRegrade: allowRegrade,
		logger:       logger,
		now:          now,
	}
}

// Submit records a solution for an ACTIVE challenge whose deadline has not
// passed. Each user or team may submit once per challenge.
func (s *SolutionService) Submit(ctx context.Context, actor types.User, input SubmitInput) (types.Solution, error) {
	content := strings.TrimSpace(input.Content)
	attachment := strings.TrimSpace(input.AttachmentURL)
	if content == "" && attachment == "" {
		return types.Solution{}, fmt.Errorf("%w: content or attachment is required", ErrValidation)
	}
	if attachment != "" && !isHTTPURL(attachment) {
		return types.Solution{}, fmt.Errorf("%w: attachment must be an http or https URL", ErrValidation)
	}

	var created types.Solution
	err := s.tx.WithTx(ctx, func(repos Repositories) error {
		challenge, err := repos.Challenges.GetForUpdate(ctx, input.ChallengeID)
		if err != nil {
			return notFound(err)
		}

		now := s.now().UTC()
		if challenge.Status != types.ChallengeActive || challenge.IsExpired(now) {
			return ErrChallengeNotActive
		}

		submitter, err := s.resolveSubmitter(ctx, repos, challenge, actor, input.TeamID)
		if err != nil {
			return err
		}

		if _, err := repos.Solutions.FindBySubmitter(ctx, challenge.ID, submitter); err == nil {
			return ErrDuplicateSubmission
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		solution := types.Solution{
			ChallengeID:   challenge.ID,
			Content:       content,
			AttachmentURL: attachment,
			Status:        types.SolutionSubmitted,
			CreatedAt:     now,
		}
		if submitter.IsTeam() {
			solution.SubmittedByTeamID = &submitter.TeamID
		} else {
			solution.SubmittedByUserID = &submitter.UserID
		}

		created, err = repos.Solutions.Create(ctx, solution)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrDuplicateSubmission
			}
			return err
		}
		return nil
	})
	if err != nil {
		return types.Solution{}, err
	}

	s.logger.InfoContext(ctx, "solution submitted", "solution_id", created.ID, "challenge_id", created.ChallengeID, "user_id", actor.ID)
	return created, nil
}

func (s *SolutionService) resolveSubmitter(ctx context.Context, repos Repositories, challenge types.Challenge, actor types.User, teamID int64) (types.Submitter, error) {
	if challenge.ParticipationType == types.ParticipationIndividual {
		if teamID != 0 {
			return types.Submitter{}, fmt.Errorf("%w: this challenge takes individual submissions", ErrValidation)
		}
		return types.Submitter{UserID: actor.ID}, nil
	}

	if teamID == 0 {
		return types.Submitter{}, fmt.Errorf("%w: this challenge takes team submissions", ErrValidation)
	}
	if _, err := repos.Teams.Get(ctx, teamID); err != nil {
		return types.Submitter{}, notFound(err)
	}
	members, err := repos.Teams.Members(ctx, teamID)
	if err != nil {
		return types.Submitter{}, err
	}
	if !hasMember(members, actor.ID) {
		return types.Submitter{}, fmt.Errorf("%w: not a member of the team", ErrUnauthorized)
	}
	if len(members) < challenge.MinTeamSize || (challenge.MaxTeamSize != nil && len(members) > *challenge.MaxTeamSize) {
		return types.Submitter{}, fmt.Errorf("%w: team has %d members", ErrInvalidTeamSize, len(members))
	}
	if err := checkMembersUncovered(ctx, repos, challenge.ID, teamID, members); err != nil {
		return types.Submitter{}, err
	}
	return types.Submitter{TeamID: teamID}, nil
}

// checkMembersUncovered fails with ErrDuplicateSubmission when a member of
// teamID already belongs to another team with a solution on the challenge.
func checkMembersUncovered(ctx context.Context, repos Repositories, challengeID, teamID int64, members []types.Membership) error {
	existing, err := repos.Solutions.ListByChallenge(ctx, challengeID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.SubmittedByTeamID == nil || *other.SubmittedByTeamID == teamID {
			continue
		}
		otherMembers, err := repos.Teams.Members(ctx, *other.SubmittedByTeamID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if hasMember(otherMembers, m.UserID) {
				return fmt.Errorf("%w: user %d is already covered by team %d", ErrDuplicateSubmission, m.UserID, *other.SubmittedByTeamID)
			}
		}
	}
	return nil
}

// Grade scores a solution. The first acceptance credits the leaderboard in
// the same transaction. Regrading, when allowed, only applies the change in
// points.
func (s *SolutionService) Grade(ctx context.Context, solutionID int64, score int, actor types.User) (types.Solution, error) {
	if !actor.IsAdmin() {
		return types.Solution{}, ErrUnauthorized
	}
	if score < 0 {
		return types.Solution{}, ErrInvalidScore
	}

	var graded types.Solution
	var accepted *types.SolutionAccepted
	err := s.tx.WithTx(ctx, func(repos Repositories) error {
		solution, err := repos.Solutions.GetForUpdate(ctx, solutionID)
		if err != nil {
			return notFound(err)
		}
		if solution.Status != types.SolutionSubmitted && !s.allowRegrade {
			return ErrAlreadyGraded
		}

		challenge, err := repos.Challenges.Get(ctx, solution.ChallengeID)
		if err != nil {
			return notFound(err)
		}

		previous := solution
		now := s.now().UTC()
		solution.Score = score
		solution.Status = types.SolutionGraded
		solution.GradedAt = &now
		graded, err = repos.Solutions.Update(ctx, solution)
		if err != nil {
			return notFound(err)
		}

		if previous.Status == types.SolutionGraded {
			policy := s.leaderboard.Policy()
			delta := policy.Points(score) - policy.Points(previous.Score)
			if delta == 0 {
				return nil
			}
			credited, err := repos.Leaderboard.CreditedBy(ctx, solution.ID)
			if err != nil {
				return err
			}
			return s.leaderboard.credit(ctx, repos, credited, challenge.Category, delta, 0)
		}

		submitters, err := creditedUsers(ctx, repos, solution)
		if err != nil {
			return err
		}

		event := types.SolutionAccepted{
			ChallengeID:  challenge.ID,
			SolutionID:   solution.ID,
			SubmitterIDs: submitters,
			Category:     challenge.Category,
			Score:        score,
			AcceptedAt:   now,
		}
		if solution.SubmittedByTeamID != nil {
			event.TeamID = *solution.SubmittedByTeamID
		}
		if err := s.leaderboard.OnSolutionAccepted(ctx, repos, event); err != nil {
			return err
		}
		accepted = &event
		return nil
	})
	if err != nil {
		return types.Solution{}, err
	}

	s.logger.InfoContext(ctx, "solution graded", "solution_id", solutionID, "score", score, "actor_id", actor.ID)
	if accepted != nil {
		publish(ctx, s.publisher, s.logger, EventSolutionAccepted, *accepted)
	}
	return graded, nil
}

// creditedUsers returns the users a solution scores for: its submitter, or
// the members of the submitting team at grading time.
func creditedUsers(ctx context.Context, repos Repositories, solution types.Solution) ([]int64, error) {
	if solution.SubmittedByUserID != nil {
		return []int64{*solution.SubmittedByUserID}, nil
	}
	if solution.SubmittedByTeamID == nil {
		return nil, nil
	}
	members, err := repos.Teams.Members(ctx, *solution.SubmittedByTeamID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

// Reject closes a submitted solution without scoring it.
func (s *SolutionService) Reject(ctx context.Context, solutionID int64, actor types.User) (types.Solution, error) {
	if !actor.IsAdmin() {
		return types.Solution{}, ErrUnauthorized
	}

	var rejected types.Solution
	err := s.tx.WithTx(ctx, func(repos Repositories) error {
		solution, err := repos.Solutions.GetForUpdate(ctx, solutionID)
		if err != nil {
			return notFound(err)
		}
		if solution.Status != types.SolutionSubmitted {
			return ErrAlreadyGraded
		}
		now := s.now().UTC()
		solution.Status = types.SolutionRejected
		solution.GradedAt = &now
		rejected, err = repos.Solutions.Update(ctx, solution)
		return notFound(err)
	})
	if err != nil {
		return types.Solution{}, err
	}
	return rejected, nil
}

// Get returns a solution to its submitter, the challenge owner or an admin.
func (s *SolutionService) Get(ctx context.Context, solutionID int64, actor types.User) (types.Solution, error) {
	repos := s.tx.Repositories()
	solution, err := repos.Solutions.Get(ctx, solutionID)
	if err != nil {
		return types.Solution{}, notFound(err)
	}
	if actor.IsAdmin() {
		return solution, nil
	}
	if solution.SubmittedByUserID != nil && *solution.SubmittedByUserID == actor.ID {
		return solution, nil
	}
	if solution.SubmittedByTeamID != nil {
		members, err := repos.Teams.Members(ctx, *solution.SubmittedByTeamID)
		if err != nil {
			return types.Solution{}, err
		}
		if hasMember(members, actor.ID) {
			return solution, nil
		}
	}
	challenge, err := repos.Challenges.Get(ctx, solution.ChallengeID)
	if err != nil {
		return types.Solution{}, notFound(err)
	}
	if challenge.CreatedByID == actor.ID {
		return solution, nil
	}
	return types.Solution{}, ErrUnauthorized
}

// ListForChallenge returns every solution of a challenge to its owner or an
// admin.
func (s *SolutionService) ListForChallenge(ctx context.Context, challengeID int64, actor types.User) ([]types.Solution, error) {
	repos := s.tx.Repositories()
	challenge, err := repos.Challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, notFound(err)
	}
	if !actor.IsAdmin() && challenge.CreatedByID != actor.ID {
		return nil, ErrUnauthorized
	}
	return repos.Solutions.ListByChallenge(ctx, challengeID)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func hasMember(members []types.Membership, userID int64) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
