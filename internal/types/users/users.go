package users

// Registration result codes.
const (
	CodeOK              = 0
	CodeEmptyPassword   = 1
	CodeNoTags          = 2
	CodeTooManyTags     = 3
	CodeUsernameTaken   = 4
	CodeInvalidUsername = 5
	CodeServerError     = -1
)

type RegisterRequest struct {
	Username string   `json:"username" validate:"required,alphanum,max=20"`
	Password string   `json:"password" validate:"required"`
	Tags     []string `json:"tags" validate:"min=1,max=5,dive,required"`
}

type RegisterResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// ServerStats is the body of GET /stats.
type ServerStats struct {
	Users       int `json:"users"`
	Posts       int `json:"posts"`
	Sessions    int `json:"sessions"`
	Subscribers int `json:"subscribers"`
}
