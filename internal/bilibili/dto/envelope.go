package dto

import "fmt"

// Envelope is the common wrapper of every JSON API response:
//
//	{"code": 0, "message": "0", "data": {...}}
//
// A non-zero code means the request was rejected; data may be absent.
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *T     `json:"data"`
}

// Unwrap returns the payload, or an error naming the API code when the call
// was rejected or carried no data.
func (e *Envelope[T]) Unwrap() (*T, error) {
	if e.Code != 0 {
		return nil, fmt.Errorf("api code %d: %s", e.Code, e.Message)
	}
	if e.Data == nil {
		return nil, fmt.Errorf("api response has no data")
	}
	return e.Data, nil
}
