package rules

import "math/rand"

// Role identifies one of the five character cards in the game.
type Role string

const (
	RoleDuke       Role = "Duke"
	RoleAssassin   Role = "Assassin"
	RoleCaptain    Role = "Captain"
	RoleAmbassador Role = "Ambassador"
	RoleContessa   Role = "Contessa"
)

// AllRoles lists every role in canonical order.
var AllRoles = []Role{RoleDuke, RoleAssassin, RoleCaptain, RoleAmbassador, RoleContessa}

// copiesPerRole is the number of copies of each role in a fresh deck.
const copiesPerRole = 3

// Valid reports whether the role is one of the five known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleDuke, RoleAssassin, RoleCaptain, RoleAmbassador, RoleContessa:
		return true
	}
	return false
}

// Deck is the ordered central court deck. Index 0 is the top of the deck.
type Deck []Role

// NewDeck builds a full shuffled court deck (three copies of each role).
func NewDeck(rng *rand.Rand) Deck {
	deck := make(Deck, 0, len(AllRoles)*copiesPerRole)
	for _, role := range AllRoles {
		for i := 0; i < copiesPerRole; i++ {
			deck = append(deck, role)
		}
	}
	deck.Shuffle(rng)
	return deck
}

// Shuffle randomizes the deck in place using a Fisher-Yates shuffle.
func (d Deck) Shuffle(rng *rand.Rand) {
	for i := len(d) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		d[i], d[j] = d[j], d[i]
	}
}

// Draw removes and returns up to n cards from the top of the deck.
func (d *Deck) Draw(n int) []Role {
	if n > len(*d) {
		n = len(*d)
	}
	drawn := make([]Role, n)
	copy(drawn, (*d)[:n])
	*d = (*d)[n:]
	return drawn
}

// Return places cards back into the deck and reshuffles.
func (d *Deck) Return(cards []Role, rng *rand.Rand) {
	*d = append(*d, cards...)
	d.Shuffle(rng)
}
