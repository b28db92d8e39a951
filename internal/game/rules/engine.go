package rules

import "math/rand"

// The engine is a pure state-transition layer: every operation takes a
// GameState value and returns a new value plus the effects to broadcast, or
// a *Rejection leaving the input state untouched. Callers are expected to
// serialize operations per room; nothing here blocks or suspends.

// DeclareAction starts a new turn action for the current turn holder.
// Coin costs are paid at declaration and are not refunded if the action is
// later voided by a successful challenge.
func DeclareAction(state GameState, actorID string, action ActionType, targetID string, rng *rand.Rand) (GameState, []Effect, error) {
	if state.Status != StatusActive {
		return state, nil, reject(CodeGameNotActive, "game is %s", state.Status)
	}
	if state.Pending != nil {
		return state, nil, reject(CodeActionPendingAlready, "another action is already pending")
	}

	actor := state.findPlayer(actorID)
	if actor == nil {
		return state, nil, reject(CodeNotYourTurn, "player %s is not in this game", actorID)
	}
	current := state.CurrentPlayer()
	if current == nil {
		return state, nil, corrupt("turn index %d out of range", state.TurnIndex)
	}
	if current.ID != actorID {
		return state, nil, reject(CodeNotYourTurn, "it is %s's turn", current.ID)
	}
	if !actor.Alive() {
		return state, nil, reject(CodeNotYourTurn, "player is eliminated")
	}
	if !actor.Connected {
		return state, nil, reject(CodeNotYourTurn, "player is disconnected")
	}

	policy, ok := action.Policy()
	if !ok {
		return state, nil, reject(CodeInvalidAction, "unknown action %q", action)
	}
	if actor.Coins >= forcedCoupThreshold && action != ActionCoup {
		return state, nil, reject(CodeCoupRequired, "player holds %d coins and must coup", actor.Coins)
	}
	if actor.Coins < policy.Cost {
		return state, nil, reject(CodeInsufficientCoins, "%s costs %d coins, player has %d", action, policy.Cost, actor.Coins)
	}

	if policy.RequiresTarget {
		if targetID == "" {
			return state, nil, reject(CodeInvalidTarget, "%s requires a target", action)
		}
		if targetID == actorID {
			return state, nil, reject(CodeInvalidTarget, "cannot target yourself")
		}
		target := state.findPlayer(targetID)
		if target == nil {
			return state, nil, reject(CodeInvalidTarget, "player %s is not in this game", targetID)
		}
		if !target.Alive() {
			return state, nil, reject(CodeInvalidTarget, "player %s is eliminated", targetID)
		}
	} else if targetID != "" {
		return state, nil, reject(CodeInvalidTarget, "%s takes no target", action)
	}

	if action == ActionExchange && len(state.Deck) < exchangeDrawCount {
		return state, nil, reject(CodeInvalidAction, "deck has %d cards, exchange needs %d", len(state.Deck), exchangeDrawCount)
	}

	next := state.Clone()
	nextActor := next.findPlayer(actorID)
	nextActor.Coins -= policy.Cost
	next.Treasury += policy.Cost

	declared := publicEffect(EffectActionDeclared)
	declared.PlayerID = actorID
	declared.TargetID = targetID
	declared.Action = action
	declared.Role = policy.ClaimedRole
	declared.Amount = policy.Cost
	effects := []Effect{declared}

	switch {
	case action == ActionIncome:
		gain := incomeAmount
		if next.Treasury < gain {
			gain = next.Treasury
		}
		next.Treasury -= gain
		nextActor.Coins += gain
		resolved := publicEffect(EffectActionResolved)
		resolved.PlayerID = actorID
		resolved.Action = action
		resolved.Amount = gain
		effects = append(effects, resolved)
		next.advanceTurn()

	case action == ActionCoup:
		next.Pending = &PendingAction{
			Action:   action,
			ActorID:  actorID,
			TargetID: targetID,
			Passed:   make(map[string]bool),
		}
		requestReveal(&next, targetID, followUpFinish, rng, &effects)

	default:
		next.Pending = &PendingAction{
			Action:      action,
			ActorID:     actorID,
			TargetID:    targetID,
			ClaimedRole: policy.ClaimedRole,
			Passed:      make(map[string]bool),
		}
	}

	return next, effects, nil
}

// Respond records a pass, block, or challenge from an eligible responder
// against the pending action (or against a pending block).
func Respond(state GameState, responderID string, response ResponseKind, claimedBlockRole Role, rng *rand.Rand) (GameState, []Effect, error) {
	if state.Status != StatusActive {
		return state, nil, reject(CodeGameNotActive, "game is %s", state.Status)
	}
	pending := state.Pending
	if pending == nil {
		return state, nil, reject(CodeNoPendingAction, "no action is awaiting responses")
	}
	if pending.Reveal != nil || pending.Exchange != nil {
		return state, nil, reject(CodeNoPendingAction, "response window is closed, awaiting a card choice")
	}

	responder := state.findPlayer(responderID)
	if responder == nil || !responder.Alive() {
		return state, nil, reject(CodeNotEligibleResponder, "player %s cannot respond", responderID)
	}

	policy, ok := pending.Action.Policy()
	if !ok {
		return state, nil, corrupt("pending action %q has no policy", pending.Action)
	}

	if pending.Block != nil {
		return respondToBlock(state, responderID, response, rng)
	}

	if responderID == pending.ActorID {
		return state, nil, reject(CodeNotEligibleResponder, "acting player cannot respond to their own action")
	}

	switch response {
	case ResponsePass:
		if pending.Passed[responderID] {
			return state, nil, reject(CodeAlreadyResponded, "player %s already responded", responderID)
		}
		next := state.Clone()
		next.Pending.Passed[responderID] = true
		recorded := publicEffect(EffectResponseRecorded)
		recorded.PlayerID = responderID
		recorded.Response = ResponsePass
		effects := []Effect{recorded}
		resolutionCheck(&next, rng, &effects)
		return next, effects, nil

	case ResponseChallenge:
		if !policy.Challengeable {
			return state, nil, reject(CodeActionNotChallengeable, "%s cannot be challenged", pending.Action)
		}
		if pending.Challenge != nil {
			return state, nil, reject(CodeChallengeAlreadyMade, "this action was already challenged")
		}
		if pending.Passed[responderID] {
			return state, nil, reject(CodeAlreadyResponded, "player %s already responded", responderID)
		}
		next := state.Clone()
		effects := resolveChallenge(&next, responderID, false, rng)
		return next, effects, nil

	case ResponseBlock:
		if !policy.Blockable() {
			return state, nil, reject(CodeActionNotBlockable, "%s cannot be blocked", pending.Action)
		}
		if !policy.CanBlockWith(claimedBlockRole) {
			return state, nil, reject(CodeActionNotBlockable, "%s does not block %s", claimedBlockRole, pending.Action)
		}
		if policy.RequiresTarget && responderID != pending.TargetID {
			return state, nil, reject(CodeNotEligibleResponder, "only the target may block %s", pending.Action)
		}
		if pending.Passed[responderID] {
			return state, nil, reject(CodeAlreadyResponded, "player %s already responded", responderID)
		}
		next := state.Clone()
		next.Pending.Block = &Block{
			BlockerID:   responderID,
			ClaimedRole: claimedBlockRole,
			Passed:      make(map[string]bool),
		}
		recorded := publicEffect(EffectResponseRecorded)
		recorded.PlayerID = responderID
		recorded.TargetID = pending.ActorID
		recorded.Response = ResponseBlock
		recorded.Role = claimedBlockRole
		return next, []Effect{recorded}, nil

	default:
		return state, nil, reject(CodeInvalidAction, "unknown response %q", response)
	}
}

// respondToBlock handles responses while a block is pending: every live
// player except the blocker (the original actor included) may pass or
// challenge the blocker's role claim.
func respondToBlock(state GameState, responderID string, response ResponseKind, rng *rand.Rand) (GameState, []Effect, error) {
	pending := state.Pending
	block := pending.Block

	if responderID == block.BlockerID {
		return state, nil, reject(CodeNotEligibleResponder, "blocker cannot respond to their own block")
	}

	switch response {
	case ResponsePass:
		if block.Passed[responderID] {
			return state, nil, reject(CodeAlreadyResponded, "player %s already responded to the block", responderID)
		}
		next := state.Clone()
		next.Pending.Block.Passed[responderID] = true
		recorded := publicEffect(EffectResponseRecorded)
		recorded.PlayerID = responderID
		recorded.TargetID = block.BlockerID
		recorded.Response = ResponsePass
		effects := []Effect{recorded}
		resolutionCheck(&next, rng, &effects)
		return next, effects, nil

	case ResponseChallenge:
		if pending.Challenge != nil {
			return state, nil, reject(CodeChallengeAlreadyMade, "this action was already challenged")
		}
		if block.Passed[responderID] {
			return state, nil, reject(CodeAlreadyResponded, "player %s already responded to the block", responderID)
		}
		next := state.Clone()
		effects := resolveChallenge(&next, responderID, true, rng)
		return next, effects, nil

	case ResponseBlock:
		return state, nil, reject(CodeActionNotBlockable, "a block is already pending")

	default:
		return state, nil, reject(CodeInvalidAction, "unknown response %q", response)
	}
}

// resolveChallenge settles a challenge against the actor's claim or, when
// againstBlock is set, against the blocker's claim. The outcome is
// deterministic: the claimant either holds a live card of the claimed role
// or does not.
func resolveChallenge(next *GameState, challengerID string, againstBlock bool, rng *rand.Rand) []Effect {
	pending := next.Pending

	claimantID := pending.ActorID
	claimedRole := pending.ClaimedRole
	if againstBlock {
		claimantID = pending.Block.BlockerID
		claimedRole = pending.Block.ClaimedRole
	}
	claimant := next.findPlayer(claimantID)

	proofIndex := claimant.liveIndexOf(claimedRole)
	succeeded := proofIndex < 0

	pending.Challenge = &Challenge{
		ChallengerID: challengerID,
		ClaimantID:   claimantID,
		AgainstBlock: againstBlock,
		Succeeded:    succeeded,
	}

	recorded := publicEffect(EffectResponseRecorded)
	recorded.PlayerID = challengerID
	recorded.TargetID = claimantID
	recorded.Response = ResponseChallenge

	outcome := publicEffect(EffectChallengeResolved)
	outcome.PlayerID = challengerID
	outcome.TargetID = claimantID
	outcome.Role = claimedRole
	outcome.Succeeded = succeeded

	effects := []Effect{recorded, outcome}

	if !succeeded {
		// The claim was true. The claimant proves it, shuffles the proof
		// back, draws a replacement, and the challenger loses a card.
		proof := publicEffect(EffectCardRevealed)
		proof.PlayerID = claimantID
		proof.Role = claimedRole
		proof.Message = "revealed to prove the claim"
		effects = append(effects, proof)

		claimant.Cards = append(claimant.Cards[:proofIndex], claimant.Cards[proofIndex+1:]...)
		next.Deck.Return([]Role{claimedRole}, rng)
		for _, drawn := range next.Deck.Draw(1) {
			claimant.Cards = append(claimant.Cards, Card{Role: drawn})
		}

		followUp := followUpResolve
		if againstBlock {
			// The block stands, so the original action is cancelled.
			followUp = followUpCancel
		}
		requestReveal(next, challengerID, followUp, rng, &effects)
		return effects
	}

	// The claim was false: the claimant loses a card. A voided block lets
	// the original action proceed; a voided action is cancelled outright.
	followUp := followUpCancel
	if againstBlock {
		followUp = followUpResolve
	}
	requestReveal(next, claimantID, followUp, rng, &effects)
	return effects
}

// ChooseCards settles a pending card choice: a single index for a card-loss
// reveal, or the full set of kept cards for an exchange selection.
func ChooseCards(state GameState, playerID string, indices []int, rng *rand.Rand) (GameState, []Effect, error) {
	if state.Status != StatusActive {
		return state, nil, reject(CodeGameNotActive, "game is %s", state.Status)
	}
	pending := state.Pending
	if pending == nil {
		return state, nil, reject(CodeNoPendingAction, "no card choice is pending")
	}

	switch {
	case pending.Reveal != nil:
		if pending.Reveal.PlayerID != playerID {
			return state, nil, reject(CodeNotYourChoice, "the choice belongs to %s", pending.Reveal.PlayerID)
		}
		if len(indices) != 1 {
			return state, nil, reject(CodeInvalidCardChoice, "exactly one card must be chosen")
		}
		player := state.findPlayer(playerID)
		idx := indices[0]
		if idx < 0 || idx >= len(player.Cards) || player.Cards[idx].Revealed {
			return state, nil, reject(CodeInvalidCardChoice, "index %d is not a live card", idx)
		}
		next := state.Clone()
		followUp := next.Pending.Reveal.FollowUp
		next.Pending.Reveal = nil
		var effects []Effect
		applyReveal(&next, playerID, idx, followUp, rng, &effects)
		return next, effects, nil

	case pending.Exchange != nil:
		if pending.ActorID != playerID {
			return state, nil, reject(CodeNotYourChoice, "the choice belongs to %s", pending.ActorID)
		}
		return applyExchangeSelection(state, playerID, indices, rng)

	default:
		return state, nil, reject(CodeNoPendingAction, "no card choice is pending")
	}
}

// applyExchangeSelection keeps the chosen cards out of the combined pool
// (live hand plus drawn cards) and shuffles the remainder back into the deck.
// Pool indices cover the live hand first, then the drawn cards.
func applyExchangeSelection(state GameState, playerID string, indices []int, rng *rand.Rand) (GameState, []Effect, error) {
	player := state.findPlayer(playerID)
	pool := append(player.LiveRoles(), state.Pending.Exchange.Drawn...)
	keep := player.LiveCardCount()

	if len(indices) != keep {
		return state, nil, reject(CodeInvalidCardChoice, "must keep exactly %d cards, chose %d", keep, len(indices))
	}
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(pool) {
			return state, nil, reject(CodeInvalidCardChoice, "index %d is out of range", idx)
		}
		if seen[idx] {
			return state, nil, reject(CodeInvalidCardChoice, "index %d chosen twice", idx)
		}
		seen[idx] = true
	}

	next := state.Clone()
	nextPlayer := next.findPlayer(playerID)

	kept := make([]Card, 0, keep)
	returned := make([]Role, 0, len(pool)-keep)
	for i, role := range pool {
		if seen[i] {
			kept = append(kept, Card{Role: role})
		} else {
			returned = append(returned, role)
		}
	}

	// Dead cards stay in the hand face up; live cards are replaced wholesale.
	hand := make([]Card, 0, len(nextPlayer.Cards))
	for _, c := range nextPlayer.Cards {
		if c.Revealed {
			hand = append(hand, c)
		}
	}
	nextPlayer.Cards = append(hand, kept...)
	next.Deck.Return(returned, rng)

	resolved := publicEffect(EffectActionResolved)
	resolved.PlayerID = playerID
	resolved.Action = ActionExchange
	effects := []Effect{resolved}

	next.Pending = nil
	next.advanceTurn()
	return next, effects, nil
}

// ExpireWindow force-closes the current response or choice window, applying
// the same outcome as if every outstanding responder had passed (or, for a
// pending choice, picking the first legal option). The surrounding service
// calls this when a response timeout fires.
func ExpireWindow(state GameState, rng *rand.Rand) (GameState, []Effect, error) {
	if state.Status != StatusActive {
		return state, nil, reject(CodeGameNotActive, "game is %s", state.Status)
	}
	pending := state.Pending
	if pending == nil {
		return state, nil, reject(CodeNoPendingAction, "nothing to expire")
	}

	switch {
	case pending.Reveal != nil:
		player := state.findPlayer(pending.Reveal.PlayerID)
		for i, c := range player.Cards {
			if !c.Revealed {
				return ChooseCards(state, player.ID, []int{i}, rng)
			}
		}
		return state, nil, corrupt("player %s owes a reveal but has no live cards", player.ID)

	case pending.Exchange != nil:
		player := state.findPlayer(pending.ActorID)
		keep := player.LiveCardCount()
		indices := make([]int, keep)
		for i := range indices {
			indices[i] = i
		}
		return ChooseCards(state, pending.ActorID, indices, rng)

	case pending.Block != nil:
		// An unchallenged block stands: the original action is cancelled.
		next := state.Clone()
		var effects []Effect
		cancelPending(&next, &effects)
		return next, effects, nil

	default:
		next := state.Clone()
		var effects []Effect
		resolveBaseEffect(&next, rng, &effects)
		return next, effects, nil
	}
}

// MarkDisconnected flags the player as disconnected and applies the
// auto-pass policy: any response or choice the player owes is supplied on
// their behalf, and a stalled turn is advanced past them.
func MarkDisconnected(state GameState, playerID string, rng *rand.Rand) (GameState, []Effect, error) {
	player := state.findPlayer(playerID)
	if player == nil {
		return state, nil, reject(CodeInvalidTarget, "player %s is not in this game", playerID)
	}

	next := state.Clone()
	next.findPlayer(playerID).Connected = false

	if next.Status != StatusActive {
		return next, nil, nil
	}

	pending := next.Pending
	if pending == nil {
		if current := next.CurrentPlayer(); current != nil && current.ID == playerID {
			next.advanceTurn()
		}
		return next, nil, nil
	}

	if pending.Reveal != nil && pending.Reveal.PlayerID == playerID {
		return ExpireWindow(next, rng)
	}
	if pending.Exchange != nil && pending.ActorID == playerID {
		return ExpireWindow(next, rng)
	}
	if pending.Reveal == nil && pending.Exchange == nil && isOutstandingResponder(&next, playerID) {
		return Respond(next, playerID, ResponsePass, "", rng)
	}
	return next, nil, nil
}

// MarkConnected flags the player as reconnected.
func MarkConnected(state GameState, playerID string) (GameState, error) {
	player := state.findPlayer(playerID)
	if player == nil {
		return state, reject(CodeInvalidTarget, "player %s is not in this game", playerID)
	}
	next := state.Clone()
	next.findPlayer(playerID).Connected = true
	return next, nil
}

// isOutstandingResponder reports whether the player still owes a pass on the
// open response window.
func isOutstandingResponder(state *GameState, playerID string) bool {
	pending := state.Pending
	player := state.findPlayer(playerID)
	if player == nil || !player.Alive() {
		return false
	}
	if pending.Block != nil {
		return playerID != pending.Block.BlockerID && !pending.Block.Passed[playerID]
	}
	return playerID != pending.ActorID && !pending.Passed[playerID]
}

// resolutionCheck runs after every pass: once all eligible responders have
// passed with no outstanding block or challenge, the action's base effect is
// applied; an unchallenged block cancels the action.
func resolutionCheck(next *GameState, rng *rand.Rand, effects *[]Effect) {
	pending := next.Pending
	if pending == nil {
		return
	}

	if pending.Block != nil {
		for i := range next.Players {
			p := &next.Players[i]
			if !p.Alive() || p.ID == pending.Block.BlockerID {
				continue
			}
			if !pending.Block.Passed[p.ID] {
				return
			}
		}
		cancelPending(next, effects)
		return
	}

	for i := range next.Players {
		p := &next.Players[i]
		if !p.Alive() || p.ID == pending.ActorID {
			continue
		}
		if !pending.Passed[p.ID] {
			return
		}
	}
	resolveBaseEffect(next, rng, effects)
}

// resolveBaseEffect commits the pending action's terminal effect and, unless
// the action leads into a card choice, clears the pending action and
// advances the turn.
func resolveBaseEffect(next *GameState, rng *rand.Rand, effects *[]Effect) {
	pending := next.Pending
	actor := next.findPlayer(pending.ActorID)

	switch pending.Action {
	case ActionTax, ActionForeignAid:
		gain := taxAmount
		if pending.Action == ActionForeignAid {
			gain = foreignAidAmount
		}
		if next.Treasury < gain {
			gain = next.Treasury
		}
		next.Treasury -= gain
		actor.Coins += gain
		resolved := publicEffect(EffectActionResolved)
		resolved.PlayerID = actor.ID
		resolved.Action = pending.Action
		resolved.Amount = gain
		*effects = append(*effects, resolved)
		finishPending(next)

	case ActionSteal:
		target := next.findPlayer(pending.TargetID)
		stolen := 0
		if target != nil && target.Alive() {
			stolen = stealAmount
			if target.Coins < stolen {
				stolen = target.Coins
			}
			target.Coins -= stolen
			actor.Coins += stolen
		}
		resolved := publicEffect(EffectActionResolved)
		resolved.PlayerID = actor.ID
		resolved.TargetID = pending.TargetID
		resolved.Action = pending.Action
		resolved.Amount = stolen
		*effects = append(*effects, resolved)
		finishPending(next)

	case ActionAssassinate:
		target := next.findPlayer(pending.TargetID)
		if target == nil || !target.Alive() {
			cancelPending(next, effects)
			return
		}
		requestReveal(next, pending.TargetID, followUpFinish, rng, effects)

	case ActionExchange:
		drawn := next.Deck.Draw(exchangeDrawCount)
		pending.Exchange = &ExchangeState{Drawn: drawn}
		offer := privateEffect(EffectExchangeReady, actor.ID)
		offer.PlayerID = actor.ID
		offer.Roles = append(actor.LiveRoles(), drawn...)
		*effects = append(*effects, offer)

	default:
		// income and coup resolve at declaration and never reach here.
		cancelPending(next, effects)
	}
}

// requestReveal asks a player to choose a live card to turn face up. A
// forced choice (zero or one live card) is applied immediately.
func requestReveal(next *GameState, playerID string, followUp revealFollowUp, rng *rand.Rand, effects *[]Effect) {
	player := next.findPlayer(playerID)
	live := player.LiveCardCount()

	if live == 0 {
		runFollowUp(next, followUp, rng, effects)
		return
	}
	if live == 1 {
		for i, c := range player.Cards {
			if !c.Revealed {
				applyReveal(next, playerID, i, followUp, rng, effects)
				return
			}
		}
	}

	next.Pending.Reveal = &RevealRequest{PlayerID: playerID, FollowUp: followUp}
	choice := privateEffect(EffectCardChoiceRequired, playerID)
	choice.PlayerID = playerID
	*effects = append(*effects, choice)
}

// applyReveal turns the chosen card face up, handles elimination and
// victory, then runs the reveal's follow-up.
func applyReveal(next *GameState, playerID string, cardIndex int, followUp revealFollowUp, rng *rand.Rand, effects *[]Effect) {
	player := next.findPlayer(playerID)
	card := &player.Cards[cardIndex]
	card.Revealed = true

	revealed := publicEffect(EffectCardRevealed)
	revealed.PlayerID = playerID
	revealed.Role = card.Role
	*effects = append(*effects, revealed)

	if !player.Alive() {
		eliminated := publicEffect(EffectPlayerEliminated)
		eliminated.PlayerID = playerID
		*effects = append(*effects, eliminated)
	}

	if checkVictory(next, effects) {
		return
	}
	runFollowUp(next, followUp, rng, effects)
}

func runFollowUp(next *GameState, followUp revealFollowUp, rng *rand.Rand, effects *[]Effect) {
	switch followUp {
	case followUpResolve:
		resolveBaseEffect(next, rng, effects)
	case followUpCancel:
		cancelPending(next, effects)
	case followUpFinish:
		pending := next.Pending
		resolved := publicEffect(EffectActionResolved)
		resolved.PlayerID = pending.ActorID
		resolved.TargetID = pending.TargetID
		resolved.Action = pending.Action
		*effects = append(*effects, resolved)
		finishPending(next)
	}
}

// cancelPending voids the pending action without applying its base effect.
// Costs already paid stay paid.
func cancelPending(next *GameState, effects *[]Effect) {
	pending := next.Pending
	resolved := publicEffect(EffectActionResolved)
	resolved.PlayerID = pending.ActorID
	resolved.TargetID = pending.TargetID
	resolved.Action = pending.Action
	resolved.Cancelled = true
	*effects = append(*effects, resolved)
	finishPending(next)
}

func finishPending(next *GameState) {
	next.Pending = nil
	next.advanceTurn()
}

// checkVictory finishes the game once a single live player remains.
func checkVictory(next *GameState, effects *[]Effect) bool {
	if next.Status != StatusActive {
		return true
	}
	alive := next.AlivePlayers()
	if len(alive) > 1 {
		return false
	}

	next.Status = StatusFinished
	next.Pending = nil
	if len(alive) == 1 {
		next.Winner = alive[0]
	}
	over := publicEffect(EffectGameOver)
	over.Winner = next.Winner
	*effects = append(*effects, over)
	return true
}
