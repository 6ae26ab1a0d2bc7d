package mystopapi

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// flexString accepts a JSON string, number or boolean and keeps its text.
// The upstream API is inconsistent about quoting identifiers and headings.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(data)
	return nil
}

// flexFloat accepts a JSON number or a numeric string. A missing, null,
// empty or non-finite value leaves it unset.
type flexFloat struct {
	Value float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = flexFloat{}
		return nil
	}
	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		if raw == "" {
			*f = flexFloat{}
			return nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		*f = flexFloat{}
		return nil
	}
	*f = flexFloat{Value: v, Valid: true}
	return nil
}

func (f flexFloat) ptr() *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}
