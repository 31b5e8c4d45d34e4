package businessflow

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coracaovalente/instituto-integration/models"
	"github.com/coracaovalente/instituto-integration/utils"
)

var (
	htmlEscaper     = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#x27;", "/", "&#x2F;")
	emailStripper   = strings.NewReplacer("<", "", ">", "", "'", "", `"`, "", "&", "")
	simpleEmailExpr = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

type fieldKind int

const (
	fieldText fieldKind = iota
	fieldName
	fieldEmail
	fieldPhone
	fieldCPF
)

type fieldRule struct {
	name      string
	kind      fieldKind
	maxLength int
}

// SanitizeUserData cleans every text field of data before schema validation.
// Missing required fields and malformed emails are reported together as one validation error.
func SanitizeUserData(data models.InstitutoUserData) (models.InstitutoUserData, error) {
	fields := []struct {
		rule  fieldRule
		value *string
	}{
		{fieldRule{"nome", fieldName, 100}, &data.Nome},
		{fieldRule{"email", fieldEmail, 255}, &data.Email},
		{fieldRule{"telefone", fieldPhone, 20}, &data.Telefone},
		{fieldRule{"cpf", fieldCPF, 14}, &data.CPF},
		{fieldRule{"origem_cadastro", fieldText, 50}, &data.OrigemCadastro},
		{fieldRule{"created_at", fieldText, 30}, &data.CreatedAt},
	}

	var errs []string
	for _, f := range fields {
		if strings.TrimSpace(*f.value) == "" {
			errs = append(errs, f.rule.name+" é obrigatório")
			continue
		}
		clean := sanitizeField(*f.value, f.rule)
		if f.rule.kind == fieldEmail && clean != "" && !simpleEmailExpr.MatchString(clean) {
			errs = append(errs, f.rule.name+" deve ter um formato válido")
			continue
		}
		*f.value = clean
	}

	if len(errs) > 0 {
		return data, NewIntegrationError(KindValidationError, "Dados inválidos após sanitização: "+strings.Join(errs, ", "), false, ErrInvalidUserData)
	}
	return data, nil
}

func sanitizeField(value string, rule fieldRule) string {
	switch rule.kind {
	case fieldName:
		value = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsSpace(r) || r == '-' || r == '\'' {
				return r
			}
			return -1
		}, value)
	case fieldEmail:
		value = emailStripper.Replace(strings.ToLower(value))
	case fieldPhone:
		value = strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || unicode.IsSpace(r) || strings.ContainsRune("()-+", r) {
				return r
			}
			return -1
		}, value)
	case fieldCPF:
		value = strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				return r
			}
			return -1
		}, value)
	}

	value = truncateRunes(strings.TrimSpace(value), rule.maxLength)
	if rule.kind == fieldText {
		value = htmlEscaper.Replace(value)
	}
	return value
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// MaskUserData returns log-safe fields of data
func MaskUserData(data *models.InstitutoUserData) map[string]string {
	if data == nil {
		return nil
	}
	return map[string]string{
		"email":    utils.MaskEmail(data.Email),
		"telefone": utils.MaskPhone(data.Telefone),
		"cpf":      utils.MaskCPF(data.CPF),
	}
}
