// Package adapters bridges request DTOs and domain models
package adapters

import (
	"github.com/coracaovalente/instituto-integration/app/dto"
	"github.com/coracaovalente/instituto-integration/models"
)

// UserDataFromRequest converts the wire registration into the partner payload
func UserDataFromRequest(req dto.UserDataRequest) models.InstitutoUserData {
	return models.InstitutoUserData{
		Nome:                     req.Nome,
		Email:                    req.Email,
		Telefone:                 req.Telefone,
		CPF:                      req.CPF,
		OrigemCadastro:           req.OrigemCadastro,
		ConsentimentoDataSharing: req.ConsentimentoDataSharing,
		CreatedAt:                req.CreatedAt,
	}
}
