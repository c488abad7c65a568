package models

// Vendor is a supplier the owner orders replenishment stock from.
type Vendor struct {
	ID            string   `json:"_id,omitempty"`
	Name          string   `json:"name" binding:"required"`
	ContactPerson string   `json:"contactPerson,omitempty"`
	Phone         string   `json:"phone" binding:"required"`
	Email         string   `json:"email,omitempty" binding:"omitempty,email"`
	Address       string   `json:"address,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	IsActive      bool     `json:"isActive"`
}

type VendorList struct {
	Vendors []Vendor `json:"vendors"`
}

type VendorResult struct {
	Message string  `json:"message,omitempty"`
	Vendor  *Vendor `json:"vendor,omitempty"`
}
