package sessions

import "time"

// Record is the flat serialized form of a Session.
type Record struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	Provider    string    `json:"provider"`
	IssuedAt    time.Time `json:"issuedAt"`
	AccessToken string    `json:"accessToken,omitempty"`
}

// ToRecord flattens s for storage.
func (s Session) ToRecord() Record {
	return Record{
		UserID:      s.UserID,
		Email:       s.Email,
		DisplayName: s.DisplayName,
		AvatarURL:   s.AvatarURL,
		Provider:    string(s.Provider),
		IssuedAt:    NormalizeTime(s.IssuedAt),
		AccessToken: s.AccessToken,
	}
}

// Session rebuilds and validates the stored Session.
func (r Record) Session() (Session, error) {
	s := Session{
		UserID:      r.UserID,
		Email:       r.Email,
		DisplayName: r.DisplayName,
		AvatarURL:   r.AvatarURL,
		Provider:    Provider(r.Provider),
		IssuedAt:    NormalizeTime(r.IssuedAt),
		AccessToken: r.AccessToken,
	}
	if err := s.Validate(); err != nil {
		return Session{}, err
	}
	return s, nil
}
