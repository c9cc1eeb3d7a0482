package services

import (
	"encoding/json"
	"net/http"

	"github.com/songsmith/backend/internal/models"
)

var creditPackages = []models.CreditPackage{
	{ID: "starter", Name: "Starter", Credits: 100, AmountMinor: 4900, Currency: "NOK", Description: "10 songs"},
	{ID: "creator", Name: "Creator", Credits: 500, AmountMinor: 19900, Currency: "NOK", Description: "50 songs"},
	{ID: "studio", Name: "Studio", Credits: 1000, AmountMinor: 34900, Currency: "NOK", Description: "100 songs"},
}

type PackageService struct{}

func NewPackageService() *PackageService {
	return &PackageService{}
}

// Find returns the package with the given id, or nil.
func (ps *PackageService) Find(id string) *models.CreditPackage {
	for i := range creditPackages {
		if creditPackages[i].ID == id {
			return &creditPackages[i]
		}
	}
	return nil
}

// GetAllPackages lists the purchasable credit packages
// @Summary List credit packages
// @Description All purchasable credit packages
// @Tags packages
// @Produce json
// @Success 200 {array} models.CreditPackage
// @Router /packages [get]
func (ps *PackageService) GetAllPackages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	json.NewEncoder(w).Encode(creditPackages)
}
