// Package v1 defines the JSON:API-flavored wire types shared by all
// HTTP handlers.
package v1

// Resource is a single JSON:API resource object.
type Resource struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes any    `json:"attributes"`
}

// Document is a successful single-resource response envelope.
type Document struct {
	Data Resource `json:"data"`
	Meta any      `json:"meta,omitempty"`
}

// ListDocument is a successful collection response envelope.
type ListDocument struct {
	Data  []Resource `json:"data"`
	Meta  any        `json:"meta,omitempty"`
	Links *Links     `json:"links,omitempty"`
}

// Links carries pagination cursors for collection responses.
type Links struct {
	Next string `json:"next,omitempty"`
	Prev string `json:"prev,omitempty"`
}

// ErrorSource points at the request field that caused an error.
type ErrorSource struct {
	Pointer string `json:"pointer,omitempty"`
}

// ErrorObject is a single JSON:API error.
type ErrorObject struct {
	Status string       `json:"status"`
	Title  string       `json:"title"`
	Detail string       `json:"detail"`
	Source *ErrorSource `json:"source,omitempty"`
}

// ErrorDocument is the failure response envelope.
type ErrorDocument struct {
	Errors []ErrorObject `json:"errors"`
}

// NewResource builds a resource object.
func NewResource(resourceType, id string, attributes any) Resource {
	return Resource{Type: resourceType, ID: id, Attributes: attributes}
}
