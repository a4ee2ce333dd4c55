package model

const (
	DefaultAvatar   = "images/deniM.png"
	UnknownUserName = "Unknown User"
)

// Profile is the display information of a user. Accounts are owned by the
// auth backend; this service only reads them.
type Profile struct {
	ID          string `json:"uid"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
	Email       string `json:"email,omitempty"`
}

// UnknownProfile is shown when a participant cannot be resolved.
func UnknownProfile(id string) Profile {
	return Profile{ID: id, DisplayName: UnknownUserName, AvatarURL: DefaultAvatar}
}

// ProfileFromDocument reads a users document. Older documents carry the
// picture under "avatar" rather than "avatarUrl".
func ProfileFromDocument(id string, data map[string]interface{}) Profile {
	p := Profile{
		ID:          id,
		DisplayName: str(data, "displayName"),
		AvatarURL:   str(data, "avatarUrl"),
		Email:       str(data, "email"),
	}
	if p.AvatarURL == "" {
		p.AvatarURL = str(data, "avatar")
	}
	if p.DisplayName == "" {
		p.DisplayName = "User"
	}
	return p
}

func (p Profile) Record() map[string]interface{} {
	return map[string]interface{}{
		"displayName": p.DisplayName,
		"avatarUrl":   p.AvatarURL,
		"email":       p.Email,
	}
}
