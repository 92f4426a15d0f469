package matching

import (
	"context"
	"strconv"

	"github.com/oggyb/muzz-matching/internal/api"
	"github.com/oggyb/muzz-matching/internal/app"
	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/discovery"
	svcErr "github.com/oggyb/muzz-matching/internal/errors"
)

// Service implements the Matching gRPC API on top of the discovery engine
// and the match lifecycle manager.
type Service struct {
	appCtx *app.AppContext
}

var _ api.MatchingServiceServer = (*Service)(nil)

// NewMatchingService creates a new Matching service with dependencies from AppContext.
// Dependencies include:
//   - Discovery engine (scoring, filters, daily quota)
//   - Match manager (state machine, channel creation, notifications)
func NewMatchingService(appCtx *app.AppContext) *Service {
	return &Service{appCtx: appCtx}
}

// Discover returns ranked candidates for the viewer.
//
// Example:
//
//	svc.Discover(ctx, &api.DiscoverRequest{UserID: "42", Limit: 10})
func (s *Service) Discover(ctx context.Context, req *api.DiscoverRequest) (*api.DiscoverResponse, error) {
	s.appCtx.Logger.Debug("Discover called", "user", req.UserID, "limit", req.Limit)

	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}

	res, err := s.appCtx.Discovery.Discover(ctx, userID, int(req.Limit))
	if err != nil {
		s.appCtx.Logger.Error("Discover failed", "user", userID, "err", err)
		return nil, svcErr.Map(err)
	}

	resp := &api.DiscoverResponse{
		Candidates:     make([]api.Candidate, 0, len(res.Candidates)),
		Requested:      int32(res.Requested),
		Returned:       int32(res.Returned),
		QuotaRemaining: int32(res.QuotaRemaining),
	}
	for _, c := range res.Candidates {
		resp.Candidates = append(resp.Candidates, toCandidate(c))
	}

	s.appCtx.Logger.Debug("Discover result", "returned", resp.Returned, "dropped", res.Dropped, "quota_remaining", resp.QuotaRemaining)

	return resp, nil
}

// CreateMatch records a like from actor to recipient. An existing match of
// the pair is returned with Created=false.
//
// Example:
//
//	svc.CreateMatch(ctx, &api.CreateMatchRequest{ActorUserID: "1", RecipientUserID: "2"})
func (s *Service) CreateMatch(ctx context.Context, req *api.CreateMatchRequest) (*api.CreateMatchResponse, error) {
	s.appCtx.Logger.Debug("CreateMatch called", "actor", req.ActorUserID, "recipient", req.RecipientUserID)

	actorID, err := parseID("actor_user_id", req.ActorUserID)
	if err != nil {
		return nil, err
	}
	recipientID, err := parseID("recipient_user_id", req.RecipientUserID)
	if err != nil {
		return nil, err
	}
	if actorID == recipientID {
		return nil, svcErr.InvalidArgument("cannot match with yourself")
	}

	m, created, err := s.appCtx.Matches.CreateMatch(ctx, actorID, recipientID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &api.CreateMatchResponse{Match: toMatch(m), Created: created}, nil
}

// UpdateMatchStatus accepts or rejects a pending match.
//
// Behavior:
//   - The actor must be one side of the match.
//   - Only the liked user (UserB) can accept; either side can reject.
//   - Terminal matches fail with FailedPrecondition.
func (s *Service) UpdateMatchStatus(ctx context.Context, req *api.UpdateMatchStatusRequest) (*api.UpdateMatchStatusResponse, error) {
	s.appCtx.Logger.Debug("UpdateMatchStatus called", "match", req.MatchID, "actor", req.ActorUserID, "status", req.Status)

	matchID, err := parseID("match_id", req.MatchID)
	if err != nil {
		return nil, err
	}
	actorID, err := parseID("actor_user_id", req.ActorUserID)
	if err != nil {
		return nil, err
	}
	to := db.MatchStatus(req.Status)
	if to != db.MatchStatusMatched && to != db.MatchStatusRejected {
		return nil, svcErr.InvalidArgument("status must be matched or rejected")
	}

	current, err := s.appCtx.Matches.Get(ctx, matchID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if !current.HasUser(actorID) {
		return nil, svcErr.Map(svcErr.Forbidden("actor is not part of this match"))
	}
	if to == db.MatchStatusMatched && current.UserBID != actorID {
		return nil, svcErr.Map(svcErr.Forbidden("only the liked user can accept"))
	}

	updated, err := s.appCtx.Matches.UpdateStatus(ctx, matchID, to)
	if err != nil {
		s.appCtx.Logger.Info("UpdateMatchStatus rejected", "match", matchID, "to", to, "err", err)
		return nil, svcErr.Map(err)
	}
	return &api.UpdateMatchStatusResponse{Match: toMatch(updated)}, nil
}

// GetMatch returns one match visible to the actor.
func (s *Service) GetMatch(ctx context.Context, req *api.GetMatchRequest) (*api.GetMatchResponse, error) {
	matchID, err := parseID("match_id", req.MatchID)
	if err != nil {
		return nil, err
	}
	actorID, err := parseID("actor_user_id", req.ActorUserID)
	if err != nil {
		return nil, err
	}

	m, err := s.appCtx.Matches.Get(ctx, matchID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if !m.HasUser(actorID) {
		// same answer as a missing row
		return nil, svcErr.Map(svcErr.NotFound("match"))
	}
	return &api.GetMatchResponse{Match: toMatch(m)}, nil
}

// ListMatches pages through the user's matches, optionally by status.
//
// Example:
//
//	svc.ListMatches(ctx, &api.ListMatchesRequest{UserID: "42", Status: "pending"})
func (s *Service) ListMatches(ctx context.Context, req *api.ListMatchesRequest) (*api.ListMatchesResponse, error) {
	s.appCtx.Logger.Debug("ListMatches called", "user", req.UserID, "status", req.Status)

	userID, err := parseID("user_id", req.UserID)
	if err != nil {
		return nil, err
	}

	matches, next, err := s.appCtx.Matches.ListForUser(ctx, userID, db.MatchStatus(req.Status), req.PaginationToken, int(req.Limit))
	if err != nil {
		return nil, svcErr.Map(err)
	}

	resp := &api.ListMatchesResponse{Matches: make([]api.Match, 0, len(matches))}
	for _, m := range matches {
		resp.Matches = append(resp.Matches, toMatch(m))
	}
	if next != nil {
		resp.NextPaginationToken = next
	}
	return resp, nil
}

func parseID(field, v string) (uint64, error) {
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil || id == 0 {
		return 0, svcErr.InvalidArgument(field + " must be a valid uint64")
	}
	return id, nil
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

func toMatch(m db.Match) api.Match {
	return api.Match{
		ID:          formatID(m.ID),
		UserAID:     formatID(m.UserAID),
		UserBID:     formatID(m.UserBID),
		Score:       int32(m.CompatibilityScore),
		Status:      string(m.Status),
		CreatedAtMs: m.CreatedAt.UnixMilli(),
		UpdatedAtMs: m.UpdatedAt.UnixMilli(),
	}
}

func toCandidate(c discovery.Candidate) api.Candidate {
	return api.Candidate{
		UserID:    formatID(c.Profile.ID),
		Username:  c.Profile.Username,
		Gender:    c.Profile.Gender,
		Age:       int32(c.Profile.Age),
		Score:     int32(c.Score),
		Interests: []string(c.Profile.Interests),
	}
}
