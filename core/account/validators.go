package account

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/classboard/core"
)

var (
	roleTag  = "role"
	roleText = "unknown role"

	loginTag   = "login"
	loginText  = "login may only contain letters, digits and . _ - @"
	loginRegex = regexp.MustCompile(`^[A-Za-z0-9._@-]+$`)

	classRequiredTag  = "classrequired"
	classRequiredText = "class group is required for this role"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdMaxLen     = 72 // bcrypt input limit
	pwdMaxLenTag  = "pwdmaxlen"
	pwdMaxLenText = fmt.Sprintf("password must contain at most %d characters", pwdMaxLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to account attributes"
)

// RegisterValidators registers the account tags and struct validations on validate.
func RegisterValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)

	_ = validate.RegisterValidation(loginTag, loginValidation)
	core.RegisterCustomTranslation(validate, translator, loginTag, loginText)

	validate.RegisterStructValidation(accountStructValidation, NewAccount{}, resetPassword{})
	core.RegisterCustomTranslation(validate, translator, classRequiredTag, classRequiredText)
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdMaxLenTag, pwdMaxLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
}

// Custom Validators

// roleValidation only accepts the four known roles; anything else (e.g. "secret-user") is rejected.
func roleValidation(fl validator.FieldLevel) bool {
	return Role(fl.Field().String()).Valid()
}

// loginValidation rejects whitespace and exotic characters. Logins are matched exactly, so no case folding happens.
func loginValidation(fl validator.FieldLevel) bool {
	return loginRegex.MatchString(fl.Field().String())
}

// resetPassword is validated with the same password policy as NewAccount.
type resetPassword struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"-"`
}

// accountStructValidation does struct level validation on NewAccount and password resets.
func accountStructValidation(sl validator.StructLevel) {
	switch acc := sl.Current().Interface().(type) {
	case NewAccount:
		if acc.Role != RoleOwner && acc.ClassGroup == "" {
			sl.ReportError(acc.ClassGroup, "class_group", "ClassGroup", classRequiredTag, "")
		}
		validatePassword(acc.Password, acc.Login, acc.FullName, sl)
	case resetPassword:
		validatePassword(acc.Password, acc.Login, acc.FullName, sl)
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8, maxLen: 72
// - no whitespace
// - no all numeric
// - no account attrs similarity
func validatePassword(pwd, login, fullName string, sl validator.StructLevel) {
	if pwd == "" {
		return // reported by `required`
	}
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	pwdLen := len(pwd)
	if pwdLen < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	if pwdLen > pwdMaxLen {
		reportErr(pwdMaxLenTag)
		return
	}

	var digitCount int
	for _, char := range pwd {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
	}
	if digitCount == pwdLen {
		reportErr(pwdNotAllNumTag)
		return
	}

	getRatio := func(pass, attr string) float64 {
		if attr == "" {
			return 0
		}
		pass, attr = strings.ToLower(pass), strings.ToLower(attr)
		return difflib.NewMatcher(strings.Split(pass, ""), strings.Split(attr, "")).QuickRatio()
	}
	if getRatio(pwd, login) >= pwdMaxSim || getRatio(pwd, fullName) >= pwdMaxSim {
		reportErr(pwdAttrSimTag)
	}
}
