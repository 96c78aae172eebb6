package dto

import "github.com/noah-isme/lesson-engine/internal/models"

// SignContractRequest carries the identity captured at student signature.
type SignContractRequest struct {
	FullName  string `json:"fullName" binding:"required"`
	TaxID     string `json:"taxId" binding:"required"`
	BirthDate string `json:"birthDate" binding:"required"`
	Address   string `json:"address" binding:"required"`
}

// Identity attaches the request origin to the signed identity.
func (r SignContractRequest) Identity(ip, browser string) models.ContractIdentity {
	return models.ContractIdentity{
		FullName:       r.FullName,
		TaxID:          r.TaxID,
		BirthDate:      r.BirthDate,
		Address:        r.Address,
		SigningIP:      ip,
		SigningBrowser: browser,
	}
}

// AdminSignRequest countersigns a contract.
type AdminSignRequest struct {
	AutoRenewal bool `json:"autoRenewal"`
}

// CancelContractRequest cancels a contract.
type CancelContractRequest struct {
	Reason              string `json:"reason"`
	IsAdminCancellation bool   `json:"isAdminCancellation"`
}
