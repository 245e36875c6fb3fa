package models

// Admin is an administrative account. Every Admin may act as an Editor;
// an Admin flagged Editor is limited to editing and cannot administer.
type Admin struct {
	ID     string `json:"id"`
	Email  string `json:"email,omitempty"`
	Supers bool   `json:"supers"`
	Editor bool   `json:"editor"`
}

// Customer is an API client acting on its own behalf.
type Customer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
