package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisconnection(t *testing.T) {
	t.Run("idle turn holder is skipped", func(t *testing.T) {
		state := buildGame(
			[]Role{RoleDuke, RoleCaptain},
			[]Role{RoleContessa, RoleAssassin},
			[]Role{RoleAmbassador, RoleDuke},
		)

		next, _, err := MarkDisconnected(state, "p1", testRNG())
		require.NoError(t, err)

		assert.False(t, next.findPlayer("p1").Connected)
		assert.Equal(t, "p2", next.CurrentPlayer().ID)
	})

	t.Run("disconnected players cannot declare", func(t *testing.T) {
		state := buildGame(
			[]Role{RoleDuke, RoleCaptain},
			[]Role{RoleContessa, RoleAssassin},
		)
		state.Players[0].Connected = false

		_, _, err := DeclareAction(state, "p1", ActionIncome, "", testRNG())
		requireRejection(t, err, CodeNotYourTurn)
	})

	t.Run("outstanding responder auto-passes", func(t *testing.T) {
		state := buildGame(
			[]Role{RoleDuke, RoleCaptain},
			[]Role{RoleContessa, RoleAssassin},
		)

		next, _, err := DeclareAction(state, "p1", ActionTax, "", testRNG())
		require.NoError(t, err)

		next, effects, err := MarkDisconnected(next, "p2", testRNG())
		require.NoError(t, err)

		// The lone responder's auto-pass resolves the tax.
		assert.Nil(t, next.Pending)
		assert.Equal(t, startingCoins+taxAmount, next.findPlayer("p1").Coins)
		findEffect(t, effects, EffectActionResolved)
	})

	t.Run("owed reveal is auto-applied", func(t *testing.T) {
		state := buildGame(
			[]Role{RoleDuke, RoleCaptain},
			[]Role{RoleContessa, RoleAssassin},
			[]Role{RoleAmbassador, RoleDuke},
		)
		state.Players[0].Coins = 7

		next, _, err := DeclareAction(state, "p1", ActionCoup, "p2", testRNG())
		require.NoError(t, err)
		require.NotNil(t, next.Pending.Reveal)

		next, _, err = MarkDisconnected(next, "p2", testRNG())
		require.NoError(t, err)

		assert.Nil(t, next.Pending)
		assert.Equal(t, 1, next.findPlayer("p2").LiveCardCount())
	})

	t.Run("owed exchange selection is auto-applied", func(t *testing.T) {
		state := buildGame(
			[]Role{RoleAmbassador, RoleDuke},
			[]Role{RoleCaptain, RoleContessa},
		)
		next := startExchange(t, state)

		next, _, err := MarkDisconnected(next, "p1", testRNG())
		require.NoError(t, err)

		assert.Nil(t, next.Pending)
		assert.Equal(t, 2, next.findPlayer("p1").LiveCardCount())
	})

	t.Run("reconnect restores the flag", func(t *testing.T) {
		state := buildGame(
			[]Role{RoleDuke, RoleCaptain},
			[]Role{RoleContessa, RoleAssassin},
		)
		next, _, err := MarkDisconnected(state, "p2", testRNG())
		require.NoError(t, err)

		next, err = MarkConnected(next, "p2")
		require.NoError(t, err)
		assert.True(t, next.findPlayer("p2").Connected)

		_, err = MarkConnected(next, "ghost")
		requireRejection(t, err, CodeInvalidTarget)
	})
}

func TestTreasuryClamp(t *testing.T) {
	state := buildGame(
		[]Role{RoleDuke, RoleCaptain},
		[]Role{RoleContessa, RoleAssassin},
	)
	state.Treasury = 1

	next, _, err := DeclareAction(state, "p1", ActionTax, "", testRNG())
	require.NoError(t, err)

	next, effects, err := Respond(next, "p2", ResponsePass, "", testRNG())
	require.NoError(t, err)

	// Only one coin was left to take.
	assert.Equal(t, 0, next.Treasury)
	assert.Equal(t, startingCoins+1, next.findPlayer("p1").Coins)

	resolved := findEffect(t, effects, EffectActionResolved)
	assert.Equal(t, 1, resolved.Amount)
}

// TestFullGameConservation plays a short scripted three-player game and
// checks after every transition that no coin is minted or lost.
func TestFullGameConservation(t *testing.T) {
	state := buildGame(
		[]Role{RoleDuke, RoleAssassin},
		[]Role{RoleCaptain, RoleContessa},
		[]Role{RoleAmbassador, RoleDuke},
	)
	total := bankTotal(state)

	step := func(name string, next GameState, err error) {
		t.Helper()
		require.NoError(t, err, name)
		assert.Equal(t, total, bankTotal(next), name)
	}

	// p1 taxes unopposed.
	next, _, err := DeclareAction(state, "p1", ActionTax, "", testRNG())
	step("tax declared", next, err)
	state = next
	next, _, err = Respond(state, "p2", ResponsePass, "", testRNG())
	step("tax pass p2", next, err)
	state = next
	next, _, err = Respond(state, "p3", ResponsePass, "", testRNG())
	step("tax pass p3", next, err)
	state = next
	require.Equal(t, 5, state.findPlayer("p1").Coins)

	// p2 steals from p1, p1 challenges the Captain claim and loses.
	next, _, err = DeclareAction(state, "p2", ActionSteal, "p1", testRNG())
	step("steal declared", next, err)
	state = next
	next, _, err = Respond(state, "p1", ResponseChallenge, "", testRNG())
	step("steal challenged", next, err)
	state = next
	require.NotNil(t, state.Pending.Reveal)
	next, _, err = ChooseCards(state, "p1", []int{1}, testRNG())
	step("challenger reveals", next, err)
	state = next
	require.Equal(t, 3, state.findPlayer("p1").Coins)
	require.Equal(t, 4, state.findPlayer("p2").Coins)

	// p3 exchanges.
	next, _, err = DeclareAction(state, "p3", ActionExchange, "", testRNG())
	step("exchange declared", next, err)
	state = next
	next, _, err = Respond(state, "p1", ResponsePass, "", testRNG())
	step("exchange pass p1", next, err)
	state = next
	next, _, err = Respond(state, "p2", ResponsePass, "", testRNG())
	step("exchange pass p2", next, err)
	state = next
	require.NotNil(t, state.Pending.Exchange)
	next, _, err = ChooseCards(state, "p3", []int{0, 1}, testRNG())
	step("exchange selection", next, err)
	state = next

	assert.Equal(t, StatusActive, state.Status)
	assert.Equal(t, "p1", state.CurrentPlayer().ID)
}

func TestVictory(t *testing.T) {
	// Three players, two already reduced to one influence. A coup on p2 and
	// an assassination of p3 leave p1 the winner.
	state := buildGame(
		[]Role{RoleAssassin, RoleDuke},
		[]Role{RoleCaptain},
		[]Role{RoleAmbassador},
	)
	state.Players[0].Coins = 10

	next, effects, err := DeclareAction(state, "p1", ActionCoup, "p2", testRNG())
	require.NoError(t, err)
	findEffect(t, effects, EffectPlayerEliminated)
	assert.Equal(t, StatusActive, next.Status)

	// Turn passes over the eliminated p2 to p3, who sits it out.
	assert.Equal(t, "p3", next.CurrentPlayer().ID)
	state = next
	next, _, err = DeclareAction(state, "p3", ActionIncome, "", testRNG())
	require.NoError(t, err)

	state = next
	next, _, err = DeclareAction(state, "p1", ActionAssassinate, "p3", testRNG())
	require.NoError(t, err)

	state = next
	next, effects, err = Respond(state, "p3", ResponsePass, "", testRNG())
	require.NoError(t, err)

	over := findEffect(t, effects, EffectGameOver)
	assert.Equal(t, "p1", over.Winner)
	assert.Equal(t, StatusFinished, next.Status)
	assert.Equal(t, "p1", next.Winner)

	// Nothing more is accepted.
	_, _, err = DeclareAction(next, "p1", ActionIncome, "", testRNG())
	requireRejection(t, err, CodeGameNotActive)
	_, _, err = ExpireWindow(next, testRNG())
	requireRejection(t, err, CodeGameNotActive)
}
