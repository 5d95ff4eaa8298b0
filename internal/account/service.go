// Package account はログイン・ユーザー登録・ログアウトの各フローを提供する。
package account

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/gamstore/internal/gateway"
	"github.com/hitoshi/gamstore/internal/model"
)

// BrowsePath はログイン成功後の遷移先。
const BrowsePath = "/browse"

// LoginPath は登録成功後の遷移先。
const LoginPath = "/login"

// IdentityGateway はIDサービスの呼び出し。
type IdentityGateway interface {
	Register(ctx context.Context, in model.RegistrationInput) (*model.Identity, error)
	Login(ctx context.Context, usernameOrEmail, password string) (*model.AuthPayload, error)
}

// Session はアカウント操作が更新するセッション。
type Session interface {
	Login(ctx context.Context, cred model.Credential, identity model.Identity) error
	Logout(ctx context.Context) error
}

// LoginForm はログインフォームの入力値。
type LoginForm struct {
	UsernameOrEmail string `form:"usernameOrEmail" validate:"required"`
	Password        string `form:"password" validate:"required"`
}

// SignupForm はユーザー登録フォームの入力値。
type SignupForm struct {
	Username        string `form:"username" validate:"required,min=3,max=50"`
	Email           string `form:"email" validate:"required,email"`
	Password        string `form:"password" validate:"required,min=6"`
	ConfirmPassword string `form:"confirmPassword" validate:"required,eqfield=Password"`
	FirstName       string `form:"firstName" validate:"omitempty,max=50"`
	LastName        string `form:"lastName" validate:"omitempty,max=50"`
	AgreeToTerms    bool   `form:"agreeToTerms"`
}

// Result はフォーム送信の結果。
// Errがnilでなければフォームを再表示し、Errをフォーム内に表示する。
type Result struct {
	Err          *model.APIError
	Fields       FieldErrors
	Notification *model.Notification
	RedirectTo   string
}

// OK は操作が成功したかを返す。
func (r Result) OK() bool {
	return r.Err == nil
}

// Service はアカウント操作を実行する。
type Service struct {
	identity  IdentityGateway
	validator *formValidator
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(identity IdentityGateway, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		identity:  identity,
		validator: newFormValidator(),
		logger:    logger,
	}
}

// Login はフォームを検証してIDサービスで認証し、成功したらセッションに保存する。
// 認証に失敗した場合はセッションを変更せず"Login failed"を返す。
func (s *Service) Login(ctx context.Context, sess Session, form LoginForm) Result {
	fields, err := s.validator.validate(form)
	if err != nil {
		return Result{Err: model.NewValidationError(err.Error())}
	}
	if len(fields) > 0 {
		return Result{
			Err:    model.NewValidationError(fields.summary("usernameOrEmail", "password")),
			Fields: fields,
		}
	}

	payload, err := s.identity.Login(ctx, form.UsernameOrEmail, form.Password)
	if err != nil {
		s.logger.Info("login rejected",
			slog.String("kind", string(gateway.KindOf(err))),
			slog.String("error", err.Error()),
		)
		return Result{Err: model.NewLoginFailedError()}
	}
	if payload == nil || payload.AccessToken == "" || payload.User.ID == "" {
		s.logger.Warn("login returned an incomplete payload")
		return Result{Err: model.NewLoginFailedError()}
	}

	if err := sess.Login(ctx, payload.Credential(), payload.User); err != nil {
		s.logger.Error("failed to persist session",
			slog.String("user_id", payload.User.ID),
			slog.String("error", err.Error()),
		)
		return Result{Err: model.NewLoginFailedError()}
	}

	s.logger.Info("user logged in", slog.String("user_id", payload.User.ID))
	return Result{
		RedirectTo: BrowsePath,
		Notification: &model.Notification{
			Title:       "Login successful",
			Description: fmt.Sprintf("Welcome back, %s!", payload.User.DisplayName()),
			Variant:     model.NotificationSuccess,
		},
	}
}

// Signup はフォームを検証してユーザーを登録する。
// 検証（必須項目、メール形式、パスワード確認、規約同意）はすべてネットワーク呼び出しの前に行う。
// 登録成功時もログインはせず、ログイン画面へ誘導する。
func (s *Service) Signup(ctx context.Context, form SignupForm) Result {
	fields, err := s.validator.validate(form)
	if err != nil {
		return Result{Err: model.NewValidationError(err.Error())}
	}
	if len(fields) > 0 {
		if msg, ok := fields["confirmPassword"]; ok && len(fields) == 1 && msg == "Passwords do not match" {
			return Result{Err: model.NewPasswordMismatchError(), Fields: fields}
		}
		return Result{
			Err:    model.NewValidationError(fields.summary("username", "email", "password", "confirmPassword", "firstName", "lastName")),
			Fields: fields,
		}
	}
	if !form.AgreeToTerms {
		return Result{
			Err:    model.NewTermsRequiredError(),
			Fields: FieldErrors{"agreeToTerms": "Please agree to the terms and conditions"},
		}
	}

	identity, err := s.identity.Register(ctx, model.RegistrationInput{
		Username:  form.Username,
		Email:     form.Email,
		Password:  form.Password,
		FirstName: form.FirstName,
		LastName:  form.LastName,
	})
	if err != nil {
		s.logger.Info("registration rejected",
			slog.String("username", form.Username),
			slog.String("error", err.Error()),
		)
		return Result{Err: model.NewRegistrationFailedError(gateway.UserMessage(err))}
	}

	s.logger.Info("user registered", slog.String("user_id", identity.ID))
	return Result{
		RedirectTo: LoginPath,
		Notification: &model.Notification{
			Title:       "Registration successful",
			Description: fmt.Sprintf("Welcome to Gam, %s! Please login to continue.", identity.DisplayName()),
			Variant:     model.NotificationSuccess,
		},
	}
}

// Logout はセッションを破棄する。リモートのログアウト失敗はセッション側で吸収される。
func (s *Service) Logout(ctx context.Context, sess Session) error {
	if err := sess.Logout(ctx); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
