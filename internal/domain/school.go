package domain

// School is a directory entry describing one school's service endpoint.
type School struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	ServiceURL string  `json:"serviceUrl"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}
