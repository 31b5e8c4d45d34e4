package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// PayloadKind tags the shape carried by a Payload
type PayloadKind string

const (
	PayloadKindInstitutoUserData PayloadKind = "instituto_user_data"
)

// OrigemVisaoItinerante is the only registration origin accepted by the partner
const OrigemVisaoItinerante = "visao_itinerante"

var (
	ErrPayloadEmpty       = errors.New("payload is empty")
	ErrPayloadUnknownKind = errors.New("payload kind is unknown")
)

// InstitutoUserData is the user record forwarded to the partner API
type InstitutoUserData struct {
	Nome                     string `json:"nome" validate:"required,min=2,max=100,alpha_space"`
	Email                    string `json:"email" validate:"required,email,max=255"`
	Telefone                 string `json:"telefone" validate:"required,br_phone"`
	CPF                      string `json:"cpf" validate:"required,cpf"`
	OrigemCadastro           string `json:"origem_cadastro" validate:"required,eq=visao_itinerante"`
	ConsentimentoDataSharing bool   `json:"consentimento_data_sharing" validate:"required"`
	CreatedAt                string `json:"created_at" validate:"required,rfc3339"`
}

// Payload is a tagged union of the payload shapes the integration can deliver.
// Exactly one variant field is set and it must match Kind.
type Payload struct {
	Kind     PayloadKind        `json:"kind"`
	UserData *InstitutoUserData `json:"user_data,omitempty"`
}

// NewUserDataPayload wraps user data into a Payload
func NewUserDataPayload(data InstitutoUserData) Payload {
	return Payload{Kind: PayloadKindInstitutoUserData, UserData: &data}
}

// IsZero reports whether no variant is set
func (p Payload) IsZero() bool {
	return p.Kind == "" && p.UserData == nil
}

// Validate checks that the tag and the variant agree
func (p Payload) Validate() error {
	switch p.Kind {
	case PayloadKindInstitutoUserData:
		if p.UserData == nil {
			return fmt.Errorf("%w: %s without user data", ErrPayloadEmpty, p.Kind)
		}
		return nil
	case "":
		return ErrPayloadEmpty
	default:
		return fmt.Errorf("%w: %q", ErrPayloadUnknownKind, p.Kind)
	}
}

// Body returns the value sent on the wire for this payload
func (p Payload) Body() (any, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p.UserData, nil
}

// Value implements driver.Valuer
func (p Payload) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (p *Payload) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*p = Payload{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported payload source type %T", src)
	}
	var decoded Payload
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	*p = decoded
	return nil
}
