package service

type Role int

const (
	RoleNone Role = iota
	RoleBuyer
	RoleSeller
)

func (r Role) String() string {
	switch r {
	case RoleBuyer:
		return "buyer"
	case RoleSeller:
		return "seller"
	default:
		return "none"
	}
}

// Participants is anything with a buyer and a seller: deals and conversations.
type Participants interface {
	Parties() (buyerID, sellerID string)
}

// ResolveRole tells whether actorID is the buyer, the seller, or neither.
func ResolveRole(actorID string, p Participants) Role {
	if actorID == "" || p == nil {
		return RoleNone
	}
	buyerID, sellerID := p.Parties()
	switch actorID {
	case buyerID:
		return RoleBuyer
	case sellerID:
		return RoleSeller
	default:
		return RoleNone
	}
}

// MaxIDLength bounds listing and user ids; it matches their column size.
const MaxIDLength = 128

// validParticipants reports whether a buyer and a distinct seller can meet
// over the listing.
func validParticipants(listingID, buyerID, sellerID string) bool {
	for _, id := range []string{listingID, buyerID, sellerID} {
		if id == "" || len(id) > MaxIDLength {
			return false
		}
	}
	return buyerID != sellerID
}
