package models

// Registration carries what a caller declared when starting registration,
// held in the session until it is promoted to a Person.
type Registration struct {
	Phone        string `json:"phone"`
	BeenTested   bool   `json:"beenTested"`
	HaveSymptoms bool   `json:"haveSymptoms"`
}
