package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wrapper para go-playground/validator com validações customizadas
type Validator struct {
	validate *validator.Validate
}

// New cria nova instância do validador
func New() *Validator {
	validate := validator.New()

	registerCustomValidations(validate)

	// Mensagens de erro usam os nomes das tags JSON
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{
		validate: validate,
	}
}

// ValidateStruct valida uma struct
func (v *Validator) ValidateStruct(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return v.formatValidationError(err)
	}
	return nil
}

// ValidateVar valida uma variável individual
func (v *Validator) ValidateVar(field interface{}, tag string) error {
	if err := v.validate.Var(field, tag); err != nil {
		return v.formatValidationError(err)
	}
	return nil
}

// formatValidationError formata erros de validação para serem mais legíveis
func (v *Validator) formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var messages []string

		for _, fieldError := range validationErrors {
			messages = append(messages, v.getErrorMessage(fieldError))
		}

		return fmt.Errorf("validation failed: %s", strings.Join(messages, "; "))
	}

	return err
}

// getErrorMessage retorna mensagem personalizada para cada tipo de validação
func (v *Validator) getErrorMessage(fieldError validator.FieldError) string {
	field := fieldError.Field()
	tag := fieldError.Tag()
	param := fieldError.Param()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, param)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "account_id":
		return fmt.Sprintf("%s contains invalid characters (only alphanumeric, dash and underscore allowed)", field)
	case "phone_number":
		return fmt.Sprintf("%s must be a phone number with 8 to 15 digits", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// registerCustomValidations registra validações customizadas
func registerCustomValidations(validate *validator.Validate) {
	_ = validate.RegisterValidation("account_id", validateAccountID)
	_ = validate.RegisterValidation("phone_number", validatePhoneNumber)
}

var accountIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateAccountID valida identificador de conta
func validateAccountID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" || len(id) > 100 {
		return false
	}
	return accountIDPattern.MatchString(id)
}

var phoneDigits = regexp.MustCompile(`\D`)

// validatePhoneNumber valida telefone após limpeza de formatação
func validatePhoneNumber(fl validator.FieldLevel) bool {
	digits := phoneDigits.ReplaceAllString(fl.Field().String(), "")
	return len(digits) >= 8 && len(digits) <= 15
}
