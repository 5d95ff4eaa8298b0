// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーに付与されるロールを表す。
type Role string

const (
	RoleUser      Role = "USER"
	RoleAdmin     Role = "ADMIN"
	RoleModerator Role = "MODERATOR"
)

// Identity は認証済みユーザーのプロフィールを表す。
// セッションストレージには JSON でシリアライズして保存する。
type Identity struct {
	ID              string     `json:"id"`
	Username        string     `json:"username"`
	Email           string     `json:"email"`
	FirstName       string     `json:"firstName,omitempty"`
	LastName        string     `json:"lastName,omitempty"`
	IsActive        bool       `json:"isActive"`
	IsEmailVerified bool       `json:"isEmailVerified"`
	Roles           []Role     `json:"roles,omitempty"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
}

// DisplayName は画面表示用の名前を返す。
// FirstNameが未設定の場合はUsernameを使う。
func (i *Identity) DisplayName() string {
	if i.FirstName != "" {
		return i.FirstName
	}
	return i.Username
}

// HasRole は指定ロールを保持しているかを返す。
func (i *Identity) HasRole(role Role) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Credential はアクセストークンと任意のリフレッシュトークンの組。
// Identityと必ず同時に生成・破棄される。
type Credential struct {
	AccessToken  string
	RefreshToken string
}

// AuthPayload はログイン成功時にIDサービスが返す値。
type AuthPayload struct {
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	TokenType    string   `json:"tokenType"`
	ExpiresIn    int      `json:"expiresIn"`
	User         Identity `json:"user"`
}

// Credential はAuthPayloadからCredentialを取り出す。
func (p *AuthPayload) Credential() Credential {
	return Credential{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
	}
}

// RegistrationInput はユーザー登録時の入力値。
type RegistrationInput struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}
