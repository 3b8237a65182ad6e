package types

// UserAccount is a tracked participant. The first address receives payouts.
type UserAccount struct {
	Name      string
	Addresses []string
}

// PayoutAddress returns the address transfers are sent to, empty if the user has none
func (u UserAccount) PayoutAddress() string {
	if len(u.Addresses) == 0 {
		return ""
	}
	return u.Addresses[0]
}
