package models

// User represents the account returned by the oeee.cafe API.
type User struct {
	ID          string `json:"id"`
	LoginName   string `json:"login_name"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// Credentials carries a login request.
type Credentials struct {
	LoginName string `json:"login_name"`
	Password  string `json:"password"`
}

// SignupRequest carries a signup request. A successful signup logs the user in.
type SignupRequest struct {
	LoginName   string `json:"login_name"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// UserAgent is sent with every API request.
const UserAgent = "oeee-client/1.0 (+https://oeee.cafe)"
