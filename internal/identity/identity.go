// Package identity carries the signed-in user (or its absence) from the edge of the
// system to the cart.
package identity

// Event is an identity change. An empty UserID means the shopper is anonymous.
type Event struct {
	UserID string
}

func SignedIn(userID string) Event {
	return Event{UserID: userID}
}

func SignedOut() Event {
	return Event{}
}

func (e Event) Authenticated() bool {
	return e.UserID != ""
}
