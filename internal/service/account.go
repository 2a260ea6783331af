package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/capitalize-ai/agent-chat/internal/model"
	"github.com/capitalize-ai/agent-chat/pkg/logger"
)

var (
	// ErrCredentialsRequired is returned when email or password is missing.
	ErrCredentialsRequired = fmt.Errorf("%w: email and password are required", model.ErrValidation)
	// ErrInvalidCredentials covers both an unknown email and a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// maxPasswordBytes is the longest password bcrypt accepts.
const maxPasswordBytes = 72

// TokenIssuer signs an identity token for a user.
type TokenIssuer interface {
	Issue(userID int64, email string) (string, error)
}

// AccountService registers users and verifies their credentials.
type AccountService struct {
	store  Store
	tokens TokenIssuer
	cost   int
	logger *logger.Logger
}

// NewAccountService creates an account service. cost is the bcrypt cost;
// zero selects bcrypt.DefaultCost.
func NewAccountService(store Store, tokens TokenIssuer, cost int, log *logger.Logger) *AccountService {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &AccountService{store: store, tokens: tokens, cost: cost, logger: log}
}

// Register creates a user and returns a signed token for it.
func (s *AccountService) Register(ctx context.Context, req *model.CredentialsRequest) (*model.AuthResponse, error) {
	email, password, err := credentials(req)
	if err != nil {
		return nil, err
	}
	// Only a bare address is accepted; "Name <addr>" forms would store a
	// string that never matches at login.
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, model.Validationf("invalid email address")
	}
	if len(password) > maxPasswordBytes {
		return nil, model.Validationf("password exceeds %d bytes", maxPasswordBytes)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.store.CreateUser(ctx, email, string(hash))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID))

	return s.respond(user)
}

// Login verifies the credentials and returns a signed token.
func (s *AccountService) Login(ctx context.Context, req *model.CredentialsRequest) (*model.AuthResponse, error) {
	email, password, err := credentials(req)
	if err != nil {
		return nil, err
	}

	user, ok, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.respond(user)
}

// Me returns the authenticated user.
func (s *AccountService) Me(ctx context.Context, userID int64) (*model.User, error) {
	user, ok, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !ok {
		return nil, model.ErrNotFound
	}
	return user, nil
}

// CreateUser registers a user without issuing a token. Used by the admin CLI.
func (s *AccountService) CreateUser(ctx context.Context, email, password string) (*model.User, error) {
	resp, err := s.Register(ctx, &model.CredentialsRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

func (s *AccountService) respond(user *model.User) (*model.AuthResponse, error) {
	if s.tokens == nil {
		return &model.AuthResponse{User: user}, nil
	}
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &model.AuthResponse{Token: token, User: user}, nil
}

func credentials(req *model.CredentialsRequest) (string, string, error) {
	if req == nil {
		return "", "", ErrCredentialsRequired
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return "", "", ErrCredentialsRequired
	}
	return email, req.Password, nil
}
