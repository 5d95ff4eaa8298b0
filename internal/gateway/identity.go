package gateway

import (
	"context"

	"github.com/hitoshi/gamstore/internal/model"
)

const identityFields = `id
      username
      email
      firstName
      lastName
      isActive
      isEmailVerified
      roles
      createdAt`

const (
	registerMutation = `mutation RegisterUser($input: UserRegistrationInput!) {
  registerUser(input: $input) {
    id
    username
    email
    firstName
    lastName
    isActive
    isEmailVerified
    createdAt
  }
}`

	loginMutation = `mutation Login($input: LoginInput!) {
  login(input: $input) {
    accessToken
    refreshToken
    tokenType
    expiresIn
    user {
      ` + identityFields + `
    }
  }
}`

	meQuery = `query Me {
  me {
      ` + identityFields + `
  }
}`

	logoutMutation = `mutation Logout {
  logout
}`
)

// IdentityGateway はIDサービス（登録・ログイン・ログアウト・現在ユーザー）のクライアント。
type IdentityGateway struct {
	client *Client
}

// NewIdentityGateway はIdentityGatewayを生成する。
func NewIdentityGateway(client *Client) *IdentityGateway {
	return &IdentityGateway{client: client}
}

// Register はユーザーを登録し、作成されたIdentityを返す。
func (g *IdentityGateway) Register(ctx context.Context, in model.RegistrationInput) (*model.Identity, error) {
	var identity model.Identity
	err := g.client.Decode(ctx, "registerUser", registerMutation, map[string]any{"input": in}, &identity)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// Login はユーザー名またはメールアドレスとパスワードで認証する。
func (g *IdentityGateway) Login(ctx context.Context, usernameOrEmail, password string) (*model.AuthPayload, error) {
	vars := map[string]any{
		"input": map[string]string{
			"usernameOrEmail": usernameOrEmail,
			"password":        password,
		},
	}
	var payload model.AuthPayload
	if err := g.client.Decode(ctx, "login", loginMutation, vars, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Logout は現在のアクセストークンを無効化する。
func (g *IdentityGateway) Logout(ctx context.Context) (bool, error) {
	return g.client.Bool(ctx, "logout", logoutMutation, nil)
}

// Me は現在のアクセストークンに対応するIdentityを返す。
func (g *IdentityGateway) Me(ctx context.Context) (*model.Identity, error) {
	var identity model.Identity
	if err := g.client.Decode(ctx, "me", meQuery, nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}
