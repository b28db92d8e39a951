package rules

// ActionType identifies a declarable turn action.
type ActionType string

const (
	ActionIncome      ActionType = "income"
	ActionForeignAid  ActionType = "foreignAid"
	ActionCoup        ActionType = "coup"
	ActionTax         ActionType = "tax"
	ActionSteal       ActionType = "steal"
	ActionAssassinate ActionType = "assassinate"
	ActionExchange    ActionType = "exchange"
)

// ActionPolicy is the static rule record for an action type.
type ActionPolicy struct {
	ClaimedRole    Role   // role asserted by declaring the action; empty if none
	Challengeable  bool   // whether the role claim can be challenged
	BlockableBy    []Role // roles that may be claimed to block; empty if unblockable
	Cost           int    // coins paid at declaration
	RequiresTarget bool   // whether a distinct live target is required
	Immediate      bool   // resolves without a response window
}

// actionPolicies is the closed policy table. Every declarable action appears
// here; an action missing from the table is rejected as invalid.
var actionPolicies = map[ActionType]ActionPolicy{
	ActionIncome: {
		Immediate: true,
	},
	ActionForeignAid: {
		BlockableBy: []Role{RoleDuke},
	},
	ActionCoup: {
		Cost:           7,
		RequiresTarget: true,
		Immediate:      true,
	},
	ActionTax: {
		ClaimedRole:   RoleDuke,
		Challengeable: true,
	},
	ActionSteal: {
		ClaimedRole:    RoleCaptain,
		Challengeable:  true,
		BlockableBy:    []Role{RoleCaptain, RoleAmbassador},
		RequiresTarget: true,
	},
	ActionAssassinate: {
		ClaimedRole:    RoleAssassin,
		Challengeable:  true,
		BlockableBy:    []Role{RoleContessa},
		Cost:           3,
		RequiresTarget: true,
	},
	ActionExchange: {
		ClaimedRole:   RoleAmbassador,
		Challengeable: true,
	},
}

// Policy returns the policy record for the action type.
func (a ActionType) Policy() (ActionPolicy, bool) {
	policy, ok := actionPolicies[a]
	return policy, ok
}

// Blockable reports whether any role may block this action.
func (p ActionPolicy) Blockable() bool {
	return len(p.BlockableBy) > 0
}

// CanBlockWith reports whether the given role claim is a legal block.
func (p ActionPolicy) CanBlockWith(role Role) bool {
	for _, r := range p.BlockableBy {
		if r == role {
			return true
		}
	}
	return false
}

// forcedCoupThreshold is the coin count at or above which only coup is legal.
const forcedCoupThreshold = 10

// stealAmount is the maximum number of coins taken by a resolved steal.
const stealAmount = 2

// taxAmount and foreignAidAmount are the treasury grants for those actions.
const (
	taxAmount        = 3
	foreignAidAmount = 2
	incomeAmount     = 1
)

// exchangeDrawCount is the number of cards drawn for an exchange selection.
const exchangeDrawCount = 2
