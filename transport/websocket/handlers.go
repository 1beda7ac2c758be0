package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/service"
)

var (
	errGameRequired = errors.New("gameId is required")
	errCellRequired = fmt.Errorf("%w: cell is required", apperror.ErrIndexOutOfRange)
)

func decodeRequest(message *Message) (*Request, error) {
	var req Request
	if len(message.Payload) == 0 {
		return &req, nil
	}

	if err := json.Unmarshal(message.Payload, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &req, nil
}

// handleConnect answers with the game the player is seated in, if any.
func (that *Server) handleConnect(ctx context.Context, client *client, message *Message) error {
	game, err := that.gameManager.CurrentGame(ctx, client.userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return client.send(message.Action, Payload{})
	}

	if err != nil {
		that.sendError(client, message.Action, err)
		return fmt.Errorf("failed to get current game: %w", err)
	}

	return client.send(message.Action, Payload{Game: game})
}

func (that *Server) handleMatchmakingStart(ctx context.Context, client *client, message *Message) error {
	log := that.logger.With("method", "handleMatchmakingStart", "userID", client.userID)

	req, err := decodeRequest(message)
	if err != nil {
		that.sendError(client, message.Action, errors.New("invalid payload"))
		return err
	}

	if client.isMatching() {
		that.sendError(client, message.Action, apperror.ErrAlreadyWaiting)
		return nil
	}

	entry, result, err := that.gameManager.StartMatchmaking(ctx, client.userID, req.Marker, req.Location())
	if err != nil {
		that.sendError(client, message.Action, err)
		return fmt.Errorf("failed to start matchmaking: %w", err)
	}

	if result.IsMatched() {
		return client.send(actionMatchmakingMatched, Payload{Entry: entry, Result: result})
	}

	waitCtx, stop := context.WithCancel(ctx)
	if !client.startMatching(entry, stop) {
		stop()
		that.sendError(client, message.Action, apperror.ErrAlreadyWaiting)
		return nil
	}

	if err = client.send(actionMatchmakingPending, Payload{Entry: entry, Result: result}); err != nil {
		client.cancelMatching()
		that.withdraw(ctx, client, entry)
		return err
	}

	go func() {
		defer stop()
		defer client.finishMatching(entry.ID)

		result, err := that.gameManager.WaitForMatch(waitCtx, entry)
		if errors.Is(err, context.Canceled) {
			log.Info("matchmaking stopped", "entryID", entry.ID)
			return
		}

		if err != nil {
			log.Error("failed to wait for match", "entryID", entry.ID, "error", err)
			that.sendError(client, actionMatchmakingStart, err)
			return
		}

		action := actionMatchmakingTimeout
		if result.IsMatched() {
			action = actionMatchmakingMatched
		}

		if err = client.send(action, Payload{Entry: entry, Result: result}); err != nil {
			log.Error("failed to send matchmaking result", "error", err)
		}
	}()

	return nil
}

func (that *Server) handleMatchmakingCancel(ctx context.Context, client *client, message *Message) error {
	entry := client.cancelMatching()
	if entry == nil {
		return client.send(message.Action, Payload{})
	}

	if err := that.gameManager.CancelMatchmaking(ctx, client.userID, entry.ID); err != nil {
		that.sendError(client, message.Action, err)
		return fmt.Errorf("failed to cancel matchmaking: %w", err)
	}

	return client.send(message.Action, Payload{Entry: entry})
}

func (that *Server) handleGameSubscribe(ctx context.Context, client *client, message *Message) error {
	log := that.logger.With("method", "handleGameSubscribe", "userID", client.userID)

	req, err := that.gameRequest(client, message)
	if err != nil {
		return err
	}

	subscription, err := that.gameManager.SubscribeGame(ctx, client.userID, req.GameID)
	if err != nil {
		that.sendError(client, message.Action, err)
		return fmt.Errorf("failed to subscribe to game: %w", err)
	}

	if !client.addSubscription(req.GameID, subscription) {
		subscription.Close()
	} else {
		go func() {
			for game := range subscription.Updates() {
				if err := client.send(actionGameUpdate, Payload{Game: game}); err != nil {
					log.Error("failed to push game update", "gameID", game.ID, "error", err)
				}
			}
		}()
	}

	// the snapshot is read after subscribing so no change in between is lost
	game, err := that.gameManager.GetGame(ctx, client.userID, req.GameID)
	if err != nil {
		that.sendError(client, message.Action, err)
		return fmt.Errorf("failed to get game: %w", err)
	}

	return client.send(actionGameUpdate, Payload{Game: game})
}

func (that *Server) handleGameTurn(ctx context.Context, client *client, message *Message) error {
	req, err := that.gameRequest(client, message)
	if err != nil {
		return err
	}

	if req.Cell == nil {
		that.sendError(client, message.Action, errCellRequired)
		return nil
	}

	return that.respondGame(client, message.Action, func() (*entity.Game, error) {
		return that.gameManager.MakeTurn(ctx, client.userID, req.GameID, *req.Cell)
	})
}

func (that *Server) handleGameReset(ctx context.Context, client *client, message *Message) error {
	req, err := that.gameRequest(client, message)
	if err != nil {
		return err
	}

	return that.respondGame(client, message.Action, func() (*entity.Game, error) {
		return that.gameManager.ResetGame(ctx, client.userID, req.GameID)
	})
}

func (that *Server) handleGameLeave(ctx context.Context, client *client, message *Message) error {
	req, err := that.gameRequest(client, message)
	if err != nil {
		return err
	}

	err = that.respondGame(client, message.Action, func() (*entity.Game, error) {
		return that.gameManager.LeaveGame(ctx, client.userID, req.GameID)
	})

	client.dropSubscription(req.GameID)

	return err
}

func (that *Server) gameRequest(client *client, message *Message) (*Request, error) {
	req, err := decodeRequest(message)
	if err != nil {
		that.sendError(client, message.Action, errors.New("invalid payload"))
		return nil, err
	}

	if req.GameID == "" {
		that.sendError(client, message.Action, errGameRequired)
		return nil, errGameRequired
	}

	return req, nil
}

func (that *Server) respondGame(client *client, action string, run func() (*entity.Game, error)) error {
	game, err := run()
	if err != nil {
		that.sendError(client, action, err)
		if service.IsMoveRejection(err) {
			return nil
		}

		return err
	}

	return client.send(action, Payload{Game: game})
}
