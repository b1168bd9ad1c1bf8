package handler

import (
	"regexp"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 30
	minPasswordLength = 8
	maxPasswordLength = 100
)

// Регулярное выражение для проверки допустимых символов в имени пользователя
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type registerRequest struct {
	Username string `json:"username" binding:"required,username"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,password"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// refreshRequest is optional: the token may also arrive as a cookie or header.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type updatePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,password,nefield=OldPassword"`
}

var registerValidatorsOnce sync.Once

// registerValidators adds the custom binding rules to gin's validator engine.
func registerValidators() {
	registerValidatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("password", validatePassword)
		_ = v.RegisterValidation("username", validateUsername)
	})
}

// validatePassword: длина 8..100, минимум одна буква и одна цифра.
func validatePassword(fl validator.FieldLevel) bool {
	pw := fl.Field().String()
	if len(pw) < minPasswordLength || len(pw) > maxPasswordLength {
		return false
	}
	var hasLetter, hasDigit bool
	for _, r := range pw {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

func validateUsername(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return len(name) >= minUsernameLength && len(name) <= maxUsernameLength && usernameRegex.MatchString(name)
}
