package domain

// RoleSeller marks marketplace sellers; their payment questions get
// routed to a human agent.
const RoleSeller = "vendedor"

// CaixinhaMembership is the slice of a user's collaborative-savings
// group state that the agent context and escalation heuristics need.
type CaixinhaMembership struct {
	CaixinhaID string  `json:"caixinhaId" firestore:"caixinhaId"`
	Name       string  `json:"nome" firestore:"nome"`
	Balance    float64 `json:"saldo" firestore:"saldo"`
	Active     bool    `json:"ativa" firestore:"ativa"`
}

// UserProfile is the subset of the user document read by the
// messaging core: display data, roles, caixinha memberships, push
// tokens and the embedded conversas index map.
type UserProfile struct {
	UserID    string               `json:"userId" firestore:"-"`
	Name      string               `json:"nome" firestore:"nome"`
	Photo     string               `json:"foto,omitempty" firestore:"foto,omitempty"`
	Roles     []string             `json:"roles,omitempty" firestore:"roles,omitempty"`
	Caixinhas []CaixinhaMembership `json:"caixinhas,omitempty" firestore:"caixinhas,omitempty"`
	FCMTokens []string             `json:"-" firestore:"fcmTokens,omitempty"`
}

// HasRole reports whether the user holds the given role.
func (u *UserProfile) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ActiveCaixinhas counts memberships still marked active.
func (u *UserProfile) ActiveCaixinhas() int {
	n := 0
	for _, c := range u.Caixinhas {
		if c.Active {
			n++
		}
	}
	return n
}

// UserContext is the snapshot handed to the escalation heuristics.
type UserContext struct {
	ActiveCaixinhas int
	Roles           []string
}

// Context derives the escalation snapshot from a profile.
func (u *UserProfile) Context() *UserContext {
	return &UserContext{
		ActiveCaixinhas: u.ActiveCaixinhas(),
		Roles:           u.Roles,
	}
}

// IsSeller reports whether the snapshot carries the seller role.
func (c *UserContext) IsSeller() bool {
	for _, r := range c.Roles {
		if r == RoleSeller {
			return true
		}
	}
	return false
}
