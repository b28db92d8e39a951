package rules

// EffectType categorizes a broadcast payload produced by a state transition.
type EffectType string

const (
	EffectActionDeclared     EffectType = "ACTION_DECLARED"
	EffectResponseRecorded   EffectType = "RESPONSE_RECORDED"
	EffectActionResolved     EffectType = "ACTION_RESOLVED"
	EffectChallengeResolved  EffectType = "CHALLENGE_RESOLVED"
	EffectCardRevealed       EffectType = "CARD_REVEALED"
	EffectCardChoiceRequired EffectType = "CARD_CHOICE_REQUIRED"
	EffectExchangeReady      EffectType = "EXCHANGE_READY"
	EffectPlayerEliminated   EffectType = "PLAYER_ELIMINATED"
	EffectGameOver           EffectType = "GAME_OVER"
)

// Visibility scopes who may see an effect.
type Visibility string

const (
	// VisibilityPublic effects are broadcast to every participant.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate effects are delivered only to Recipient.
	VisibilityPrivate Visibility = "private"
)

// Effect is a single broadcast payload. The transport serializes effects to
// participants in order, honoring the visibility scope.
type Effect struct {
	Type       EffectType   `json:"type"`
	Visibility Visibility   `json:"visibility"`
	Recipient  string       `json:"recipient,omitempty"`
	PlayerID   string       `json:"playerId,omitempty"`
	TargetID   string       `json:"targetId,omitempty"`
	Action     ActionType   `json:"action,omitempty"`
	Response   ResponseKind `json:"response,omitempty"`
	Role       Role         `json:"role,omitempty"`
	Roles      []Role       `json:"roles,omitempty"`
	Amount     int          `json:"amount,omitempty"`
	Cancelled  bool         `json:"cancelled,omitempty"`
	Succeeded  bool         `json:"succeeded,omitempty"`
	Winner     string       `json:"winner,omitempty"`
	Message    string       `json:"message,omitempty"`
}

func publicEffect(t EffectType) Effect {
	return Effect{Type: t, Visibility: VisibilityPublic}
}

func privateEffect(t EffectType, recipient string) Effect {
	return Effect{Type: t, Visibility: VisibilityPrivate, Recipient: recipient}
}
