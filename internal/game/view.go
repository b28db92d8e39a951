package game

import (
	"sort"
	"time"

	"github.com/JoaoVictor-C/Coup-Online-sub001/internal/game/rules"
)

// GameView is the redacted state sent to one client. Hidden influence is
// reduced to a count for everyone but the owning player; the deck is only
// ever a count.
type GameView struct {
	RoomID        string       `json:"roomId"`
	Seq           int          `json:"seq"`
	Status        rules.Status `json:"status"`
	Winner        string       `json:"winner,omitempty"`
	Treasury      int          `json:"treasury"`
	DeckCount     int          `json:"deckCount"`
	CurrentPlayer string       `json:"currentPlayer,omitempty"`
	Players       []PlayerView `json:"players"`
	Pending       *PendingView `json:"pending,omitempty"`
	StartedAt     time.Time    `json:"startedAt,omitempty"`
}

// PlayerView is one seat as seen by the requesting player.
type PlayerView struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Coins       int          `json:"coins"`
	Connected   bool         `json:"connected"`
	Alive       bool         `json:"alive"`
	HiddenCards int          `json:"hiddenCards"`
	Revealed    []rules.Role `json:"revealed,omitempty"`
	Hand        []rules.Role `json:"hand,omitempty"` // own seat only
}

// PendingView describes the open action and its response state. The drawn
// exchange cards appear only in the acting player's view.
type PendingView struct {
	Action       rules.ActionType `json:"action"`
	ActorID      string           `json:"actorId"`
	TargetID     string           `json:"targetId,omitempty"`
	ClaimedRole  rules.Role       `json:"claimedRole,omitempty"`
	Passed       []string         `json:"passed,omitempty"`
	Block        *BlockView       `json:"block,omitempty"`
	Challenged   bool             `json:"challenged"`
	AwaitingCard string           `json:"awaitingCard,omitempty"`
	ExchangePool []rules.Role     `json:"exchangePool,omitempty"`
}

// BlockView is the public face of a pending block.
type BlockView struct {
	BlockerID   string     `json:"blockerId"`
	ClaimedRole rules.Role `json:"claimedRole"`
	Passed      []string   `json:"passed,omitempty"`
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildView redacts the state for one viewer. An empty viewerID produces
// the spectator view.
func buildView(state *rules.GameState, viewerID string, seq int) *GameView {
	view := &GameView{
		RoomID:    state.RoomID,
		Seq:       seq,
		Status:    state.Status,
		Winner:    state.Winner,
		Treasury:  state.Treasury,
		DeckCount: len(state.Deck),
		Players:   make([]PlayerView, len(state.Players)),
	}
	if current := state.CurrentPlayer(); current != nil && state.Status == rules.StatusActive {
		view.CurrentPlayer = current.ID
	}

	for i := range state.Players {
		p := &state.Players[i]
		pv := PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Coins:     p.Coins,
			Connected: p.Connected,
			Alive:     p.Alive(),
		}
		for _, c := range p.Cards {
			if c.Revealed {
				pv.Revealed = append(pv.Revealed, c.Role)
			} else {
				pv.HiddenCards++
			}
		}
		if p.ID == viewerID {
			pv.Hand = p.LiveRoles()
		}
		view.Players[i] = pv
	}

	if pending := state.Pending; pending != nil {
		pv := &PendingView{
			Action:      pending.Action,
			ActorID:     pending.ActorID,
			TargetID:    pending.TargetID,
			ClaimedRole: pending.ClaimedRole,
			Passed:      sortedKeys(pending.Passed),
			Challenged:  pending.Challenge != nil,
		}
		if pending.Block != nil {
			pv.Block = &BlockView{
				BlockerID:   pending.Block.BlockerID,
				ClaimedRole: pending.Block.ClaimedRole,
				Passed:      sortedKeys(pending.Block.Passed),
			}
		}
		if pending.Reveal != nil {
			pv.AwaitingCard = pending.Reveal.PlayerID
		}
		if pending.Exchange != nil {
			pv.AwaitingCard = pending.ActorID
			if viewerID == pending.ActorID {
				if actor := findSeat(state, pending.ActorID); actor != nil {
					pv.ExchangePool = append(actor.LiveRoles(), pending.Exchange.Drawn...)
				}
			}
		}
		view.Pending = pv
	}

	return view
}

func findSeat(state *rules.GameState, playerID string) *rules.Player {
	for i := range state.Players {
		if state.Players[i].ID == playerID {
			return &state.Players[i]
		}
	}
	return nil
}
