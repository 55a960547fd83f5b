package httpapi

import (
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

type registerRequest struct {
	Nickname string `json:"nickname"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *registerRequest) fromForm(v url.Values) {
	r.Nickname, r.Email, r.Password = v.Get("nickname"), v.Get("email"), v.Get("password")
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Nickname, validation.Required, validation.Length(3, 32)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r *loginRequest) fromForm(v url.Values) {
	r.Email, r.Password = v.Get("email"), v.Get("password")
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type refreshRequest struct {
	Email        string `json:"email"`
	RefreshToken string `json:"refreshToken"`
}

func (r *refreshRequest) fromForm(v url.Values) {
	r.Email, r.RefreshToken = v.Get("email"), v.Get("refreshToken")
}

func (r refreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (r *emailRequest) fromForm(v url.Values) {
	r.Email = v.Get("email")
}

func (r emailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (r *verifyCodeRequest) fromForm(v url.Values) {
	r.Email, r.Code = v.Get("email"), v.Get("code")
}

func (r verifyCodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(4, 10), is.Digit),
	)
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

func (r *resetPasswordRequest) fromForm(v url.Values) {
	r.Email, r.Code, r.NewPassword = v.Get("email"), v.Get("code"), v.Get("newPassword")
}

func (r resetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required, validation.Length(4, 10), is.Digit),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 128)),
	)
}
