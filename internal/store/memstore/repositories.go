package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/thinkstack/apiserver/internal/store"
	"github.com/thinkstack/apiserver/types"
)

type userRepo struct{ v view }

func (r userRepo) GetByID(_ context.Context, id int64) (types.User, error) {
	var user types.User
	err := r.v.read(func(st *state) error {
		found, ok := st.users[id]
		if !ok {
			return store.ErrNotFound
		}
		user = found
		return nil
	})
	return user, err
}

func (r userRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	var user types.User
	err := r.v.read(func(st *state) error {
		for _, u := range st.users {
			if emailKey(u.Email) == emailKey(email) {
				user = u
				return nil
			}
		}
		return store.ErrNotFound
	})
	return user, err
}

func (r userRepo) Create(_ context.Context, user types.User) (types.User, error) {
	err := r.v.write("users.create", func(st *state) error {
		for _, u := range st.users {
			if emailKey(u.Email) == emailKey(user.Email) {
				return store.ErrConflict
			}
		}
		st.nextUserID++
		user.ID = st.nextUserID
		now := time.Now().UTC()
		user.CreatedAt = now
		user.UpdatedAt = now
		st.users[user.ID] = user
		return nil
	})
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r userRepo) Update(_ context.Context, user types.User) (types.User, error) {
	err := r.v.write("users.update", func(st *state) error {
		if _, ok := st.users[user.ID]; !ok {
			return store.ErrNotFound
		}
		for id, u := range st.users {
			if id != user.ID && emailKey(u.Email) == emailKey(user.Email) {
				return store.ErrConflict
			}
		}
		user.UpdatedAt = time.Now().UTC()
		st.users[user.ID] = user
		return nil
	})
	if err != nil {
		return types.User{}, err
	}
	return user, nil
}

type challengeRepo struct{ v view }

func (r challengeRepo) record(st *state, c types.Challenge) types.ChallengeRecord {
	record := types.ChallengeRecord{Challenge: c, CreatedByName: st.users[c.CreatedByID].Name}
	for _, s := range st.solutions {
		if s.ChallengeID == c.ID {
			record.SolutionCount++
		}
	}
	return record
}

func (r challengeRepo) Get(_ context.Context, id int64) (types.ChallengeRecord, error) {
	var record types.ChallengeRecord
	err := r.v.read(func(st *state) error {
		c, ok := st.challenges[id]
		if !ok {
			return store.ErrNotFound
		}
		record = r.record(st, c)
		return nil
	})
	return record, err
}

func (r challengeRepo) GetForUpdate(_ context.Context, id int64) (types.Challenge, error) {
	var challenge types.Challenge
	err := r.v.read(func(st *state) error {
		c, ok := st.challenges[id]
		if !ok {
			return store.ErrNotFound
		}
		challenge = c
		return nil
	})
	return challenge, err
}

func (r challengeRepo) List(_ context.Context, filter types.ChallengeFilter, offset, limit int) ([]types.ChallengeRecord, int, error) {
	var page []types.ChallengeRecord
	var total int
	err := r.v.read(func(st *state) error {
		var matched []types.Challenge
		for _, c := range st.challenges {
			if filter.Status != "" && c.Status != filter.Status {
				continue
			}
			if filter.Category != "" && c.Category != filter.Category {
				continue
			}
			if filter.OwnerID != 0 && c.CreatedByID != filter.OwnerID {
				continue
			}
			if filter.PublishedOnly && !c.Status.Published() {
				continue
			}
			matched = append(matched, c)
		}
		slices.SortFunc(matched, func(a, b types.Challenge) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(b.ID, a.ID)
		})

		total = len(matched)
		if offset >= total {
			page = []types.ChallengeRecord{}
			return nil
		}
		end := min(offset+limit, total)
		page = make([]types.ChallengeRecord, 0, end-offset)
		for _, c := range matched[offset:end] {
			page = append(page, r.record(st, c))
		}
		return nil
	})
	return page, total, err
}

func (r challengeRepo) ListOverdue(_ context.Context, status types.ChallengeStatus, now time.Time) ([]types.Challenge, error) {
	var overdue []types.Challenge
	err := r.v.read(func(st *state) error {
		for _, c := range st.challenges {
			if c.Status == status && c.Deadline.Before(now) {
				overdue = append(overdue, c)
			}
		}
		slices.SortFunc(overdue, func(a, b types.Challenge) int { return cmp.Compare(a.ID, b.ID) })
		return nil
	})
	return overdue, err
}

func (r challengeRepo) Categories(_ context.Context) ([]string, error) {
	categories := []string{}
	err := r.v.read(func(st *state) error {
		for _, c := range st.challenges {
			if !slices.Contains(categories, c.Category) {
				categories = append(categories, c.Category)
			}
		}
		slices.Sort(categories)
		return nil
	})
	return categories, err
}

func (r challengeRepo) Create(_ context.Context, challenge types.Challenge) (types.Challenge, error) {
	err := r.v.write("challenges.create", func(st *state) error {
		st.nextChallengeID++
		challenge.ID = st.nextChallengeID
		if challenge.CreatedAt.IsZero() {
			challenge.CreatedAt = time.Now().UTC()
		}
		challenge.UpdatedAt = challenge.CreatedAt
		st.challenges[challenge.ID] = challenge
		return nil
	})
	if err != nil {
		return types.Challenge{}, err
	}
	return challenge, nil
}

func (r challengeRepo) Update(_ context.Context, challenge types.Challenge) (types.Challenge, error) {
	err := r.v.write("challenges.update", func(st *state) error {
		if _, ok := st.challenges[challenge.ID]; !ok {
			return store.ErrNotFound
		}
		if challenge.UpdatedAt.IsZero() {
			challenge.UpdatedAt = time.Now().UTC()
		}
		st.challenges[challenge.ID] = challenge
		return nil
	})
	if err != nil {
		return types.Challenge{}, err
	}
	return challenge, nil
}

func (r challengeRepo) Delete(_ context.Context, id int64) error {
	return r.v.write("challenges.delete", func(st *state) error {
		if _, ok := st.challenges[id]; !ok {
			return store.ErrNotFound
		}
		delete(st.challenges, id)
		return nil
	})
}

type solutionRepo struct{ v view }

func (r solutionRepo) get(id int64) (types.Solution, error) {
	var solution types.Solution
	err := r.v.read(func(st *state) error {
		s, ok := st.solutions[id]
		if !ok {
			return store.ErrNotFound
		}
		solution = s
		return nil
	})
	return solution, err
}

func (r solutionRepo) Get(_ context.Context, id int64) (types.Solution, error) {
	return r.get(id)
}

func (r solutionRepo) GetForUpdate(_ context.Context, id int64) (types.Solution, error) {
	return r.get(id)
}

func sameSubmitter(s types.Solution, submitter types.Submitter) bool {
	if submitter.IsTeam() {
		return s.SubmittedByTeamID != nil && *s.SubmittedByTeamID == submitter.TeamID
	}
	return s.SubmittedByUserID != nil && *s.SubmittedByUserID == submitter.UserID
}

func (r solutionRepo) FindBySubmitter(_ context.Context, challengeID int64, submitter types.Submitter) (types.Solution, error) {
	var solution types.Solution
	err := r.v.read(func(st *state) error {
		for _, s := range st.solutions {
			if s.ChallengeID == challengeID && sameSubmitter(s, submitter) {
				solution = s
				return nil
			}
		}
		return store.ErrNotFound
	})
	return solution, err
}

func (r solutionRepo) ListByChallenge(_ context.Context, challengeID int64) ([]types.Solution, error) {
	solutions := []types.Solution{}
	err := r.v.read(func(st *state) error {
		for _, s := range st.solutions {
			if s.ChallengeID == challengeID {
				solutions = append(solutions, s)
			}
		}
		slices.SortFunc(solutions, func(a, b types.Solution) int {
			if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		return nil
	})
	return solutions, err
}

func (r solutionRepo) CountByChallenge(_ context.Context, challengeID int64) (int, error) {
	var count int
	err := r.v.read(func(st *state) error {
		for _, s := range st.solutions {
			if s.ChallengeID == challengeID {
				count++
			}
		}
		return nil
	})
	return count, err
}

func (r solutionRepo) Create(_ context.Context, solution types.Solution) (types.Solution, error) {
	err := r.v.write("solutions.create", func(st *state) error {
		if (solution.SubmittedByUserID == nil) == (solution.SubmittedByTeamID == nil) {
			return store.ErrConflict
		}
		submitter := types.Submitter{}
		if solution.SubmittedByTeamID != nil {
			submitter.TeamID = *solution.SubmittedByTeamID
		} else {
			submitter.UserID = *solution.SubmittedByUserID
		}
		for _, s := range st.solutions {
			if s.ChallengeID == solution.ChallengeID && sameSubmitter(s, submitter) {
				return store.ErrConflict
			}
		}
		st.nextSolutionID++
		solution.ID = st.nextSolutionID
		if solution.CreatedAt.IsZero() {
			solution.CreatedAt = time.Now().UTC()
		}
		st.solutions[solution.ID] = solution
		return nil
	})
	if err != nil {
		return types.Solution{}, err
	}
	return solution, nil
}

func (r solutionRepo) Update(_ context.Context, solution types.Solution) (types.Solution, error) {
	err := r.v.write("solutions.update", func(st *state) error {
		current, ok := st.solutions[solution.ID]
		if !ok {
			return store.ErrNotFound
		}
		current.Content = solution.Content
		current.AttachmentURL = solution.AttachmentURL
		current.Score = solution.Score
		current.Status = solution.Status
		current.GradedAt = solution.GradedAt
		st.solutions[solution.ID] = current
		solution = current
		return nil
	})
	if err != nil {
		return types.Solution{}, err
	}
	return solution, nil
}

type teamRepo struct{ v view }

func (r teamRepo) Get(_ context.Context, id int64) (types.Team, error) {
	var team types.Team
	err := r.v.read(func(st *state) error {
		t, ok := st.teams[id]
		if !ok {
			return store.ErrNotFound
		}
		team = t
		return nil
	})
	return team, err
}

func (r teamRepo) Create(_ context.Context, team types.Team) (types.Team, error) {
	err := r.v.write("teams.create", func(st *state) error {
		st.nextTeamID++
		team.ID = st.nextTeamID
		if team.CreatedAt.IsZero() {
			team.CreatedAt = time.Now().UTC()
		}
		st.teams[team.ID] = team
		return nil
	})
	if err != nil {
		return types.Team{}, err
	}
	return team, nil
}

func (r teamRepo) AddMember(_ context.Context, member types.Membership) (types.Membership, error) {
	err := r.v.write("teams.add_member", func(st *state) error {
		for _, m := range st.members[member.TeamID] {
			if m.UserID == member.UserID {
				return store.ErrConflict
			}
		}
		if member.JoinedAt.IsZero() {
			member.JoinedAt = time.Now().UTC()
		}
		member.UserName = ""
		st.members[member.TeamID] = append(st.members[member.TeamID], member)
		return nil
	})
	if err != nil {
		return types.Membership{}, err
	}
	return member, nil
}

func (r teamRepo) Members(_ context.Context, teamID int64) ([]types.Membership, error) {
	members := []types.Membership{}
	err := r.v.read(func(st *state) error {
		for _, m := range st.members[teamID] {
			m.UserName = st.users[m.UserID].Name
			members = append(members, m)
		}
		slices.SortFunc(members, func(a, b types.Membership) int {
			if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.UserID, b.UserID)
		})
		return nil
	})
	return members, err
}

type leaderboardRepo struct{ v view }

func (r leaderboardRepo) Ensure(_ context.Context, userID int64) error {
	return r.v.write("leaderboard.ensure", func(st *state) error {
		if _, ok := st.entries[userID]; ok {
			return nil
		}
		st.entries[userID] = types.LeaderboardEntry{
			UserID:         userID,
			CategoryScores: map[string]int{},
			UpdatedAt:      time.Now().UTC(),
		}
		return nil
	})
}

func (r leaderboardRepo) get(userID int64) (types.LeaderboardEntry, error) {
	var entry types.LeaderboardEntry
	err := r.v.read(func(st *state) error {
		e, ok := st.entries[userID]
		if !ok {
			return store.ErrNotFound
		}
		entry = copyEntry(e)
		entry.UserName = st.users[userID].Name
		return nil
	})
	return entry, err
}

func (r leaderboardRepo) Get(_ context.Context, userID int64) (types.LeaderboardEntry, error) {
	return r.get(userID)
}

func (r leaderboardRepo) GetForUpdate(_ context.Context, userID int64) (types.LeaderboardEntry, error) {
	return r.get(userID)
}

func (r leaderboardRepo) Save(_ context.Context, entry types.LeaderboardEntry) error {
	return r.v.write("leaderboard.save", func(st *state) error {
		if _, ok := st.entries[entry.UserID]; !ok {
			return store.ErrNotFound
		}
		entry = copyEntry(entry)
		entry.UserName = ""
		if entry.UpdatedAt.IsZero() {
			entry.UpdatedAt = time.Now().UTC()
		}
		st.entries[entry.UserID] = entry
		return nil
	})
}

func (r leaderboardRepo) Claim(_ context.Context, userID, challengeID, solutionID int64) (bool, error) {
	claimed := false
	err := r.v.write("leaderboard.claim", func(st *state) error {
		key := creditKey{userID: userID, challengeID: challengeID}
		if _, ok := st.credits[key]; ok {
			return nil
		}
		st.credits[key] = solutionID
		claimed = true
		return nil
	})
	return claimed, err
}

func (r leaderboardRepo) CreditedBy(_ context.Context, solutionID int64) ([]int64, error) {
	var ids []int64
	err := r.v.read(func(st *state) error {
		for key, id := range st.credits {
			if id == solutionID {
				ids = append(ids, key.userID)
			}
		}
		slices.Sort(ids)
		return nil
	})
	return ids, err
}

func (r leaderboardRepo) Rank(_ context.Context, limit int) ([]types.RankedEntry, error) {
	ranked := []types.RankedEntry{}
	err := r.v.read(func(st *state) error {
		for _, e := range st.entries {
			if e.Score <= 0 {
				continue
			}
			ranked = append(ranked, types.RankedEntry{
				UserID:              e.UserID,
				UserName:            st.users[e.UserID].Name,
				Score:               e.Score,
				ChallengesCompleted: e.ChallengesCompleted,
			})
		}
		slices.SortFunc(ranked, func(a, b types.RankedEntry) int {
			if c := cmp.Compare(b.Score, a.Score); c != 0 {
				return c
			}
			if c := cmp.Compare(b.ChallengesCompleted, a.ChallengesCompleted); c != 0 {
				return c
			}
			return cmp.Compare(a.UserID, b.UserID)
		})
		if limit > 0 && len(ranked) > limit {
			ranked = ranked[:limit]
		}
		return nil
	})
	return ranked, err
}
