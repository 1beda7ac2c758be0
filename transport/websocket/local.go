package websocket

import (
	"context"
	"errors"
	"time"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/pkg"
)

var errNoLocalGame = errors.New("no local game started")

func (that *Server) handleLocalStart(_ context.Context, client *client, message *Message) error {
	game, _ := client.updateLocal(func(*entity.Game) (*entity.Game, error) {
		return entity.NewLocalGame(pkg.GenerateGameID(), time.Now()), nil
	})

	return client.send(message.Action, Payload{Game: game})
}

// handleLocalTurn plays the cell for whichever marker is to move.
func (that *Server) handleLocalTurn(_ context.Context, client *client, message *Message) error {
	req, err := decodeRequest(message)
	if err != nil {
		that.sendError(client, message.Action, errors.New("invalid payload"))
		return err
	}

	if req.Cell == nil {
		that.sendError(client, message.Action, errCellRequired)
		return nil
	}

	game, err := client.updateLocal(func(game *entity.Game) (*entity.Game, error) {
		if game == nil {
			return nil, errNoLocalGame
		}

		if err := game.ApplyMove(entity.LocalPlayerFor(game.CurrentTurn), *req.Cell, time.Now()); err != nil {
			return nil, err
		}

		return game, nil
	})
	if err != nil {
		that.sendError(client, message.Action, err)
		return nil
	}

	return client.send(message.Action, Payload{Game: game})
}

func (that *Server) handleLocalReset(_ context.Context, client *client, message *Message) error {
	game, err := client.updateLocal(func(game *entity.Game) (*entity.Game, error) {
		if game == nil {
			return nil, errNoLocalGame
		}

		return game.Rematch(pkg.GenerateGameID(), time.Now())
	})
	if err != nil {
		that.sendError(client, message.Action, err)
		return nil
	}

	return client.send(message.Action, Payload{Game: game})
}
