package model

import "time"

// User is a registered account. The credential hash never leaves the server.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CredentialsRequest is the body for register and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the identity token issued on register or login.
type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}
