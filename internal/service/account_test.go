package service

import (
	"context"
	"errors"
	"testing"

	"github.com/capitalize-ai/agent-chat/internal/model"
)

type fakeIssuer struct{}

func (fakeIssuer) Issue(userID int64, email string) (string, error) {
	return "token-for-" + email, nil
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, staticAgent("ok"))
	env.accounts.tokens = fakeIssuer{}
	ctx := context.Background()

	reg, err := env.accounts.Register(ctx, &model.CredentialsRequest{Email: " a@example.com ", Password: "s3cret"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg.Token != "token-for-a@example.com" || reg.User.Email != "a@example.com" {
		t.Fatalf("unexpected register response %+v", reg)
	}
	if reg.User.PasswordHash == "s3cret" {
		t.Fatal("password stored in clear")
	}

	if _, err := env.accounts.Register(ctx, &model.CredentialsRequest{Email: "a@example.com", Password: "x"}); !errors.Is(err, model.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}

	login, err := env.accounts.Login(ctx, &model.CredentialsRequest{Email: "a@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.User.ID != reg.User.ID {
		t.Fatalf("login returned a different user")
	}

	if _, err := env.accounts.Login(ctx, &model.CredentialsRequest{Email: "a@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := env.accounts.Login(ctx, &model.CredentialsRequest{Email: "nobody@example.com", Password: "s3cret"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}

	me, err := env.accounts.Me(ctx, reg.User.ID)
	if err != nil || me.Email != "a@example.com" {
		t.Fatalf("me: %+v %v", me, err)
	}
	if _, err := env.accounts.Me(ctx, 424242); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, staticAgent("ok"))
	ctx := context.Background()

	cases := []*model.CredentialsRequest{
		nil,
		{Email: "", Password: "x"},
		{Email: "a@example.com", Password: ""},
		{Email: "not-an-email", Password: "x"},
		{Email: "Bob <bob@example.com>", Password: "x"},
	}
	for _, req := range cases {
		if _, err := env.accounts.Register(ctx, req); !errors.Is(err, model.ErrValidation) {
			t.Fatalf("register(%+v): expected validation error, got %v", req, err)
		}
	}
}
