package rules

import "math/rand"

// Status is the lifecycle state of a game.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Card is a single character card in a player's hand. A revealed card is
// dead: it stays in the hand face up and no longer counts as influence.
type Card struct {
	Role     Role `json:"role"`
	Revealed bool `json:"revealed"`
}

// Player is one seat in a game.
type Player struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Coins     int    `json:"coins"`
	Cards     []Card `json:"cards"`
	Connected bool   `json:"connected"`
}

// Alive reports whether the player still holds at least one live card.
func (p *Player) Alive() bool {
	return p.LiveCardCount() > 0
}

// LiveCardCount returns the number of unrevealed cards in the hand.
func (p *Player) LiveCardCount() int {
	n := 0
	for _, c := range p.Cards {
		if !c.Revealed {
			n++
		}
	}
	return n
}

// LiveRoles returns the roles of all unrevealed cards.
func (p *Player) LiveRoles() []Role {
	roles := make([]Role, 0, len(p.Cards))
	for _, c := range p.Cards {
		if !c.Revealed {
			roles = append(roles, c.Role)
		}
	}
	return roles
}

// liveIndexOf returns the hand index of an unrevealed card with the given
// role, or -1 if the player does not hold one live.
func (p *Player) liveIndexOf(role Role) int {
	for i, c := range p.Cards {
		if !c.Revealed && c.Role == role {
			return i
		}
	}
	return -1
}

// ResponseKind is a response to a pending action.
type ResponseKind string

const (
	ResponsePass      ResponseKind = "pass"
	ResponseBlock     ResponseKind = "block"
	ResponseChallenge ResponseKind = "challenge"
)

// Block records a declared block on the pending action. The block claim is
// itself challengeable until the response window closes.
type Block struct {
	BlockerID   string          `json:"blockerId"`
	ClaimedRole Role            `json:"claimedRole"`
	Passed      map[string]bool `json:"passed"`
}

// Challenge records the single challenge permitted per pending action.
type Challenge struct {
	ChallengerID string `json:"challengerId"`
	ClaimantID   string `json:"claimantId"`
	AgainstBlock bool   `json:"againstBlock"`
	Succeeded    bool   `json:"succeeded"`
}

// revealFollowUp selects what happens once an owed card reveal is applied.
type revealFollowUp string

const (
	// followUpResolve applies the pending action's base effect after the reveal.
	followUpResolve revealFollowUp = "resolve"
	// followUpCancel voids the pending action after the reveal.
	followUpCancel revealFollowUp = "cancel"
	// followUpFinish means the reveal itself was the base effect.
	followUpFinish revealFollowUp = "finish"
)

// RevealRequest is the card-loss micro-state: one player owes the choice of
// which live card to turn face up.
type RevealRequest struct {
	PlayerID string         `json:"playerId"`
	FollowUp revealFollowUp `json:"followUp"`
}

// ExchangeState is the exchange micro-state: the actor picks which cards to
// keep out of their live hand plus the drawn cards.
type ExchangeState struct {
	Drawn []Role `json:"drawn"`
}

// PendingAction is the single in-flight action awaiting resolution.
type PendingAction struct {
	Action      ActionType      `json:"action"`
	ActorID     string          `json:"actorId"`
	TargetID    string          `json:"targetId,omitempty"`
	ClaimedRole Role            `json:"claimedRole,omitempty"`
	Passed      map[string]bool `json:"passed"`
	Block       *Block          `json:"block,omitempty"`
	Challenge   *Challenge      `json:"challenge,omitempty"`
	Reveal      *RevealRequest  `json:"reveal,omitempty"`
	Exchange    *ExchangeState  `json:"exchange,omitempty"`
}

// GameState is the complete state of one game room. Transitions never mutate
// the input state; each operation returns a fresh value.
type GameState struct {
	RoomID    string         `json:"roomId"`
	Players   []Player       `json:"players"`
	Deck      Deck           `json:"deck"`
	Treasury  int            `json:"treasury"`
	TurnIndex int            `json:"turnIndex"`
	Status    Status         `json:"status"`
	Winner    string         `json:"winner,omitempty"`
	Pending   *PendingAction `json:"pending,omitempty"`
}

// startingCoins and startingCards are dealt to each seat at game start.
const (
	startingCoins = 2
	startingCards = 2
)

// defaultTreasury is the bank the game opens with, before the starting coins
// are paid out. Coin conservation holds against this total.
const defaultTreasury = 50

// PlayerSeat is the input to NewGame for a single player.
type PlayerSeat struct {
	ID   string
	Name string
}

// minPlayers and MaxPlayers bound the table size.
const (
	minPlayers = 2
	MaxPlayers = 6
)

// NewGame deals a fresh game: a full shuffled deck, two cards and two coins
// per player, turn order fixed by the seat order given.
func NewGame(roomID string, seats []PlayerSeat, rng *rand.Rand) (GameState, error) {
	if len(seats) < minPlayers || len(seats) > MaxPlayers {
		return GameState{}, reject(CodeInvalidAction, "game requires %d-%d players, got %d", minPlayers, MaxPlayers, len(seats))
	}

	deck := NewDeck(rng)
	players := make([]Player, len(seats))
	treasury := defaultTreasury

	for i, seat := range seats {
		dealt := deck.Draw(startingCards)
		cards := make([]Card, len(dealt))
		for j, role := range dealt {
			cards[j] = Card{Role: role}
		}
		players[i] = Player{
			ID:        seat.ID,
			Name:      seat.Name,
			Coins:     startingCoins,
			Cards:     cards,
			Connected: true,
		}
		treasury -= startingCoins
	}

	return GameState{
		RoomID:   roomID,
		Players:  players,
		Deck:     deck,
		Treasury: treasury,
		Status:   StatusActive,
	}, nil
}

// Clone returns a deep copy of the state.
func (s GameState) Clone() GameState {
	next := s

	next.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		cp := p
		cp.Cards = make([]Card, len(p.Cards))
		copy(cp.Cards, p.Cards)
		next.Players[i] = cp
	}

	next.Deck = make(Deck, len(s.Deck))
	copy(next.Deck, s.Deck)

	if s.Pending != nil {
		pending := *s.Pending
		pending.Passed = copyStringSet(s.Pending.Passed)
		if s.Pending.Block != nil {
			block := *s.Pending.Block
			block.Passed = copyStringSet(s.Pending.Block.Passed)
			pending.Block = &block
		}
		if s.Pending.Challenge != nil {
			challenge := *s.Pending.Challenge
			pending.Challenge = &challenge
		}
		if s.Pending.Reveal != nil {
			reveal := *s.Pending.Reveal
			pending.Reveal = &reveal
		}
		if s.Pending.Exchange != nil {
			exchange := ExchangeState{Drawn: append([]Role(nil), s.Pending.Exchange.Drawn...)}
			pending.Exchange = &exchange
		}
		next.Pending = &pending
	}

	return next
}

func copyStringSet(src map[string]bool) map[string]bool {
	dst := make(map[string]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// findPlayer returns a pointer into the state's player slice, or nil.
func (s *GameState) findPlayer(playerID string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == playerID {
			return &s.Players[i]
		}
	}
	return nil
}

// CurrentPlayer returns the player whose turn it is.
func (s *GameState) CurrentPlayer() *Player {
	if s.TurnIndex < 0 || s.TurnIndex >= len(s.Players) {
		return nil
	}
	return &s.Players[s.TurnIndex]
}

// AlivePlayers returns the ids of all players with live influence.
func (s *GameState) AlivePlayers() []string {
	ids := make([]string, 0, len(s.Players))
	for i := range s.Players {
		if s.Players[i].Alive() {
			ids = append(ids, s.Players[i].ID)
		}
	}
	return ids
}

// TotalCoins returns players' coins plus the treasury, for conservation
// checks.
func (s *GameState) TotalCoins() int {
	total := s.Treasury
	for i := range s.Players {
		total += s.Players[i].Coins
	}
	return total
}

// advanceTurn moves the turn to the next live, connected player. Eliminated
// players are always skipped; disconnected players are skipped unless every
// live player is disconnected.
func (s *GameState) advanceTurn() {
	n := len(s.Players)
	if n == 0 {
		return
	}

	next := (s.TurnIndex + 1) % n
	for i := 0; i < n; i++ {
		p := &s.Players[next]
		if p.Alive() && p.Connected {
			s.TurnIndex = next
			return
		}
		next = (next + 1) % n
	}

	// No live connected player: fall back to the next live player.
	next = (s.TurnIndex + 1) % n
	for i := 0; i < n; i++ {
		if s.Players[next].Alive() {
			s.TurnIndex = next
			return
		}
		next = (next + 1) % n
	}
}
