package businessflow

import (
	"errors"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/coracaovalente/instituto-integration/app/dto"
	"github.com/coracaovalente/instituto-integration/models"
	"github.com/coracaovalente/instituto-integration/utils"
	"github.com/go-playground/validator/v10"
)

// UserDataValidator checks partner payloads and configurations against the partner's schema
type UserDataValidator struct {
	validate *validator.Validate
}

func NewUserDataValidator() *UserDataValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	RegisterIntegrationValidations(v)
	return &UserDataValidator{validate: v}
}

// RegisterIntegrationValidations adds the partner specific tags to v
func RegisterIntegrationValidations(v *validator.Validate) {
	// Letters (accents included) and spaces only
	_ = v.RegisterValidation("alpha_space", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if !unicode.IsLetter(r) && r != ' ' {
				return false
			}
		}
		return true
	})

	// Brazilian landline (10 digits) or mobile (11 digits)
	_ = v.RegisterValidation("br_phone", func(fl validator.FieldLevel) bool {
		n := len(utils.OnlyDigits(fl.Field().String()))
		return n == 10 || n == 11
	})

	_ = v.RegisterValidation("cpf", func(fl validator.FieldLevel) bool {
		return IsValidCPF(fl.Field().String())
	})

	_ = v.RegisterValidation("rfc3339", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.RFC3339, fl.Field().String())
		return err == nil
	})
}

// IsValidCPF verifies length, repeated digits and both check digits
func IsValidCPF(cpf string) bool {
	d := utils.OnlyDigits(cpf)
	if len(d) != 11 {
		return false
	}
	if strings.Count(d, d[:1]) == 11 {
		return false
	}
	check := func(n int) bool {
		sum := 0
		for i := 0; i < n; i++ {
			sum += int(d[i]-'0') * (n + 1 - i)
		}
		rem := (sum * 10) % 11
		if rem == 10 {
			rem = 0
		}
		return rem == int(d[n]-'0')
	}
	return check(9) && check(10)
}

// ValidateUserData returns a non-retryable integration error describing every violation.
// A missing consent is reported as a consent error.
func (v *UserDataValidator) ValidateUserData(data *models.InstitutoUserData) error {
	if data == nil {
		return NewIntegrationError(KindValidationError, "Dados inválidos: payload vazio", false, ErrInvalidUserData)
	}
	if !data.ConsentimentoDataSharing {
		return NewIntegrationError(KindConsentError, "Consentimento é obrigatório para envio dos dados", false, ErrConsentRequired)
	}
	err := v.validate.Struct(data)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return NewIntegrationError(KindValidationError, "Dados inválidos: erro de validação", false, errors.Join(ErrInvalidUserData, err))
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, userDataMessage(fe))
	}
	return NewIntegrationError(KindValidationError, "Dados inválidos: "+strings.Join(msgs, ", "), false, errors.Join(ErrInvalidUserData, err))
}

// ValidateConfig returns every violation of the candidate configuration, empty when valid
func (v *UserDataValidator) ValidateConfig(req *dto.ValidateConfigRequest) []string {
	var out []string
	if err := v.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				out = append(out, configMessage(fe))
			}
		} else {
			out = append(out, err.Error())
		}
	}

	switch models.AuthType(req.AuthType) {
	case models.AuthTypeAPIKey:
		if req.APIKey == "" {
			out = append(out, "API key é obrigatória para auth_type api_key")
		}
	case models.AuthTypeBearer:
		if req.BearerToken == "" {
			out = append(out, "Bearer token é obrigatório para auth_type bearer")
		}
	case models.AuthTypeBasic:
		if req.BasicUsername == "" || req.BasicPassword == "" {
			out = append(out, "Usuário e senha são obrigatórios para auth_type basic")
		}
	}
	return out
}

func userDataMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "nome":
		switch fe.Tag() {
		case "min":
			return "Nome deve ter pelo menos 2 caracteres"
		case "max":
			return "Nome deve ter no máximo 100 caracteres"
		case "alpha_space":
			return "Nome deve conter apenas letras e espaços"
		}
		return "Nome é obrigatório"
	case "email":
		if fe.Tag() == "max" {
			return "Email deve ter no máximo 255 caracteres"
		}
		return "Email deve ter um formato válido"
	case "telefone":
		return "Telefone deve ter 10 ou 11 dígitos"
	case "cpf":
		return "CPF deve ser válido"
	case "origem_cadastro":
		return "Origem do cadastro deve ser " + models.OrigemVisaoItinerante
	case "created_at":
		return "Data de criação deve estar no formato ISO 8601"
	}
	return fe.Field() + " é inválido"
}

func configMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "endpoint":
		return "Endpoint deve ser uma URL válida"
	case "sandbox_endpoint":
		return "Endpoint de sandbox deve ser uma URL válida"
	case "method":
		return "Método deve ser POST ou PUT"
	case "auth_type":
		return "Tipo de autenticação deve ser api_key, bearer ou basic"
	case "retry_attempts":
		return "Tentativas de retry devem estar entre " + retryAttemptsRange
	case "retry_delay":
		return "Delay de retry deve estar entre " + retryDelayRange
	}
	return fe.Field() + " é inválido"
}

const (
	retryAttemptsRange = "1 e 10"
	retryDelayRange    = "1000 e 300000 ms"
)
