package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/geo"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/pkg"
)

type MatchStatus string

const (
	MatchStatusMatched  MatchStatus = "matched"
	MatchStatusPending  MatchStatus = "pending"
	MatchStatusTimedOut MatchStatus = "timedOut"
)

const (
	cleanupTimeout     = 5 * time.Second
	claimCheckInterval = 50 * time.Millisecond
)

// errClaimLost means a claim taken by this matcher was withdrawn before the game was set up.
var errClaimLost = errors.New("lobby claim lost")

type MatchResult struct {
	Status MatchStatus `json:"status"`
	GameID string      `json:"gameId,omitempty"`
}

func (that *MatchResult) IsMatched() bool {
	return that.Status == MatchStatusMatched
}

type MatchmakerOptions struct {
	RadiusKm       float64
	Window         time.Duration
	Timeout        time.Duration
	PollInterval   time.Duration
	ExpireAfter    time.Duration
	ExpireInterval time.Duration
	// ClaimGrace is how long a timed out entry waits for a matcher holding its claim.
	ClaimGrace time.Duration
}

func DefaultMatchmakerOptions() MatchmakerOptions {
	return MatchmakerOptions{
		RadiusKm:       5,
		Window:         30 * time.Second,
		Timeout:        30 * time.Second,
		PollInterval:   2 * time.Second,
		ExpireAfter:    time.Minute,
		ExpireInterval: 30 * time.Second,
		ClaimGrace:     5 * time.Second,
	}
}

type MatchmakerService interface {
	// AttemptMatch tries once to pair self with a nearby waiting entry.
	AttemptMatch(ctx context.Context, self *entity.LobbyEntry) (*MatchResult, error)
	// WaitForMatch keeps attempting on lobby changes until a match or the timeout.
	// Cancelling ctx removes the waiting entry.
	WaitForMatch(ctx context.Context, self *entity.LobbyEntry) (*MatchResult, error)
	// RunExpiry removes stale waiting entries until ctx is done.
	RunExpiry(ctx context.Context)
}

type gameCreator interface {
	Create(ctx context.Context, game *entity.Game) error
	DeleteByID(ctx context.Context, id string) error
}

type matchmakerService struct {
	logger  *slog.Logger
	now     func() time.Time
	options MatchmakerOptions

	lobbyService LobbyService
	gameRepo     gameCreator
	playerRepo   playerRepo
}

func NewMatchmakerService(
	logger *slog.Logger,
	options MatchmakerOptions,
	lobbyService LobbyService,
	gameRepo gameCreator,
	playerRepo playerRepo,
) MatchmakerService {
	return &matchmakerService{
		logger:       logger,
		now:          time.Now,
		options:      options,
		lobbyService: lobbyService,
		gameRepo:     gameRepo,
		playerRepo:   playerRepo,
	}
}

func (that *matchmakerService) AttemptMatch(ctx context.Context, self *entity.LobbyEntry) (*MatchResult, error) {
	log := that.logger.With("method", "AttemptMatch", "entryID", self.ID)

	excluded := make(map[string]struct{})

	for {
		current, err := that.lobbyService.Get(ctx, self.ID)
		if err != nil && !isNotFound(err) {
			return nil, err
		}

		if current == nil {
			return that.resolveGone(ctx, self)
		}

		if !current.IsWaiting() {
			return that.resolve(ctx, self)
		}

		candidate, err := that.findCandidate(ctx, self, excluded)
		if err != nil {
			return nil, err
		}

		if candidate == nil {
			return &MatchResult{Status: MatchStatusPending}, nil
		}

		// claims go in ascending id order so two matchers never hold one half each
		first, second := self, candidate
		if candidate.ID < self.ID {
			first, second = candidate, self
		}

		claimed, err := that.lobbyService.MarkMatched(ctx, first.ID, self.ID)
		if err != nil {
			return nil, err
		}

		if !claimed {
			if first.ID == self.ID {
				return that.resolve(ctx, self)
			}

			excluded[candidate.ID] = struct{}{}
			continue
		}

		claimed, err = that.lobbyService.MarkMatched(ctx, second.ID, self.ID)
		if err != nil {
			that.release(ctx, log, first.ID, self.ID)
			return nil, err
		}

		if !claimed {
			that.release(ctx, log, first.ID, self.ID)

			if second.ID == self.ID {
				return that.resolve(ctx, self)
			}

			excluded[candidate.ID] = struct{}{}
			continue
		}

		gameID, err := that.createSession(ctx, log, self, candidate)
		if err != nil {
			that.release(ctx, log, first.ID, self.ID)
			that.release(ctx, log, second.ID, self.ID)

			if errors.Is(err, errClaimLost) {
				log.Info("claim withdrawn before the game was set up", "candidateID", candidate.ID)
				excluded[candidate.ID] = struct{}{}
				continue
			}

			return nil, err
		}

		log.Info("players matched", "gameID", gameID, "candidateID", candidate.ID)

		return &MatchResult{Status: MatchStatusMatched, GameID: gameID}, nil
	}
}

func (that *matchmakerService) findCandidate(ctx context.Context, self *entity.LobbyEntry, excluded map[string]struct{}) (*entity.LobbyEntry, error) {
	entries, err := that.lobbyService.ListWaiting(ctx, that.now().Add(-that.options.Window))
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ID < entries[j].ID
	})

	origin := geo.Point{Latitude: self.Latitude, Longitude: self.Longitude}
	for _, entry := range entries {
		if entry.ID == self.ID || entry.PlayerID == self.PlayerID {
			continue
		}

		if _, ok := excluded[entry.ID]; ok {
			continue
		}

		if geo.Within(origin, geo.Point{Latitude: entry.Latitude, Longitude: entry.Longitude}, that.options.RadiusKm) {
			return entry, nil
		}
	}

	return nil, nil
}

// createSession seats both players, records their current game and clears their entries.
// Any failure after the game is created undoes the game and the player records.
func (that *matchmakerService) createSession(ctx context.Context, log *slog.Logger, self, candidate *entity.LobbyEntry) (string, error) {
	for _, entryID := range []string{self.ID, candidate.ID} {
		held, err := that.holdsClaim(ctx, entryID, self.ID)
		if err != nil {
			return "", err
		}

		if !held {
			return "", errClaimLost
		}
	}

	selfMarker := self.Marker
	candidateMarker := candidate.Marker
	if candidateMarker == selfMarker {
		candidateMarker = entity.OppositeMarker(selfMarker)
	}

	playerX, playerO := self.PlayerID, candidate.PlayerID
	if selfMarker == entity.PlayerO {
		playerX, playerO = candidate.PlayerID, self.PlayerID
	}

	game := entity.NewGame(pkg.GenerateGameID(), playerX, playerO, that.now())
	if err := that.gameRepo.Create(ctx, game); err != nil {
		return "", fmt.Errorf("failed to create game: %w", err)
	}

	var previous []*entity.Player

	for _, seat := range []struct {
		entry  *entity.LobbyEntry
		marker string
	}{
		{entry: self, marker: selfMarker},
		{entry: candidate, marker: candidateMarker},
	} {
		before, err := that.playerRepo.GetByID(ctx, seat.entry.PlayerID)
		if isNotFound(err) {
			before = &entity.Player{ID: seat.entry.PlayerID}
		} else if err != nil {
			that.rollback(ctx, log, game.ID, previous)
			return "", fmt.Errorf("failed to get player: %w", err)
		}

		previous = append(previous, before)

		player := &entity.Player{
			ID:      seat.entry.PlayerID,
			Mark:    seat.marker,
			GameID:  game.ID,
			EntryID: seat.entry.ID,
		}
		if err = that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
			that.rollback(ctx, log, game.ID, previous)
			return "", fmt.Errorf("failed to update player: %w", err)
		}
	}

	// the candidate's own timeout may be withdrawing its entry, so it goes first
	for _, entryID := range []string{candidate.ID, self.ID} {
		removed, err := that.lobbyService.RemoveClaimed(ctx, entryID, self.ID)
		if err != nil {
			that.rollback(ctx, log, game.ID, previous)
			return "", err
		}

		if !removed {
			that.rollback(ctx, log, game.ID, previous)
			return "", errClaimLost
		}
	}

	return game.ID, nil
}

func (that *matchmakerService) holdsClaim(ctx context.Context, entryID, claimer string) (bool, error) {
	entry, err := that.lobbyService.Get(ctx, entryID)
	if isNotFound(err) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return entry.IsMatched() && entry.ClaimedBy == claimer, nil
}

// rollback deletes a half set up game and restores the player records it overwrote.
func (that *matchmakerService) rollback(ctx context.Context, log *slog.Logger, gameID string, previous []*entity.Player) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := that.gameRepo.DeleteByID(cleanupCtx, gameID); err != nil {
		log.Error("failed to delete unfinished game", "gameID", gameID, "error", err)
	}

	for _, player := range previous {
		if err := that.playerRepo.CreateOrUpdate(cleanupCtx, player); err != nil {
			log.Error("failed to restore player", "playerID", player.ID, "error", err)
		}
	}
}

// resolve reports the game another matcher created for self, if it already exists.
func (that *matchmakerService) resolve(ctx context.Context, self *entity.LobbyEntry) (*MatchResult, error) {
	player, err := that.playerRepo.GetByID(ctx, self.PlayerID)
	if isNotFound(err) {
		return &MatchResult{Status: MatchStatusPending}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	if player.EntryID == self.ID && player.GameID != "" {
		return &MatchResult{Status: MatchStatusMatched, GameID: player.GameID}, nil
	}

	return &MatchResult{Status: MatchStatusPending}, nil
}

// resolveGone handles an entry that left the lobby: either it was matched or it expired.
func (that *matchmakerService) resolveGone(ctx context.Context, self *entity.LobbyEntry) (*MatchResult, error) {
	result, err := that.resolve(ctx, self)
	if err != nil {
		return nil, err
	}

	if !result.IsMatched() {
		return &MatchResult{Status: MatchStatusTimedOut}, nil
	}

	return result, nil
}

func (that *matchmakerService) release(ctx context.Context, log *slog.Logger, entryID, claimer string) {
	if _, err := that.lobbyService.Release(context.WithoutCancel(ctx), entryID, claimer); err != nil {
		log.Error("failed to release claim", "claimedEntryID", entryID, "error", err)
	}
}

func (that *matchmakerService) WaitForMatch(ctx context.Context, self *entity.LobbyEntry) (*MatchResult, error) {
	log := that.logger.With("method", "WaitForMatch", "entryID", self.ID)

	subscription, err := that.lobbyService.Subscribe(ctx)
	if err != nil {
		that.abandon(ctx, log, self)
		return nil, err
	}
	defer subscription.Close()

	timeout := time.NewTimer(that.options.Timeout)
	defer timeout.Stop()

	ticker := time.NewTicker(that.options.PollInterval)
	defer ticker.Stop()

	changes := subscription.Updates()

	for {
		result, err := that.AttemptMatch(ctx, self)
		if err != nil {
			that.abandon(ctx, log, self)
			return nil, err
		}

		if result.Status != MatchStatusPending {
			return result, nil
		}

		select {
		case <-ctx.Done():
			that.abandon(ctx, log, self)
			return nil, ctx.Err()

		case <-timeout.C:
			return that.timeout(ctx, log, self)

		case _, ok := <-changes:
			if !ok {
				// notifications are gone, keep polling
				changes = nil
			}

		case <-ticker.C:
		}
	}
}

// timeout leaves the lobby. An entry claimed by a matcher still in progress is
// given ClaimGrace to be either matched or released before it is withdrawn.
func (that *matchmakerService) timeout(ctx context.Context, log *slog.Logger, self *entity.LobbyEntry) (*MatchResult, error) {
	grace := time.NewTimer(that.options.ClaimGrace)
	defer grace.Stop()

	graceOver := false

	for {
		removed, err := that.lobbyService.RemoveIfWaiting(ctx, self.ID)
		if err != nil {
			return nil, err
		}

		if removed {
			log.Info("matchmaking timed out")
			return &MatchResult{Status: MatchStatusTimedOut}, nil
		}

		current, err := that.lobbyService.Get(ctx, self.ID)
		if isNotFound(err) {
			return that.resolveGone(ctx, self)
		}

		if err != nil {
			return nil, err
		}

		if current.IsWaiting() {
			// released between the two reads
			continue
		}

		if graceOver {
			withdrawn, err := that.lobbyService.RemoveClaimed(ctx, self.ID, current.ClaimedBy)
			if err != nil {
				return nil, err
			}

			if withdrawn {
				log.Warn("withdrew entry from a stalled claim", "claimedBy", current.ClaimedBy)
				log.Info("matchmaking timed out")
				return &MatchResult{Status: MatchStatusTimedOut}, nil
			}

			continue
		}

		select {
		case <-ctx.Done():
			that.abandon(ctx, log, self)
			return nil, ctx.Err()
		case <-grace.C:
			graceOver = true
		case <-time.After(claimCheckInterval):
		}
	}
}

// abandon removes a still waiting entry after the wait loop stops without a match.
func (that *matchmakerService) abandon(ctx context.Context, log *slog.Logger, self *entity.LobbyEntry) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if _, err := that.lobbyService.RemoveIfWaiting(cleanupCtx, self.ID); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("failed to remove waiting entry", "error", err)
	}
}

func (that *matchmakerService) RunExpiry(ctx context.Context) {
	log := that.logger.With("method", "RunExpiry")

	ticker := time.NewTicker(that.options.ExpireInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := that.lobbyService.Expire(ctx, that.now().Add(-that.options.ExpireAfter))
			if err != nil {
				log.Error("failed to expire lobby entries", "error", err)
				continue
			}

			if removed > 0 {
				log.Info("expired lobby entries", "count", removed)
			}
		}
	}
}
