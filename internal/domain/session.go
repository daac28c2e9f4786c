package domain

// User is the identity the backend returns on login and refresh.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role"`
}

// Session is the client's view of the authenticated state: the short-lived
// bearer credential and the user it belongs to.
//
// A session is either fully anonymous (zero value) or fully authenticated;
// AccessToken is non-empty exactly when User is non-nil. The session.Store
// enforces the invariant on every write.
type Session struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
}

// Authenticated reports whether the session holds a usable identity.
func (s Session) Authenticated() bool {
	return s.AccessToken != "" && s.User != nil
}

// Valid reports whether the session satisfies the all-or-nothing invariant.
func (s Session) Valid() bool {
	return (s.AccessToken == "") == (s.User == nil)
}
