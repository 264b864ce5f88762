package session

// Default key names for the two persisted entries.
const (
	DefaultTokenKey = "userToken"
	DefaultInfoKey  = "userInfo"
)

// Record is the persisted session mirror.
type Record struct {
	Token string
	Email string
	UID   string
}

// Info is the JSON document stored under the info key.
type Info struct {
	Email string `json:"email"`
	UID   string `json:"uid"`
}

// Empty reports whether r carries no identity.
func (r Record) Empty() bool {
	return r.Token == "" && r.UID == ""
}
