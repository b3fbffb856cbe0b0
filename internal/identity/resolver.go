// Package identity resolves the caller-supplied identity that scopes all
// per-client state. The server never mints identities; clients choose a
// stable id and send it with every request.
package identity

import (
	"errors"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
)

const (
	// Field is the path parameter, form field and JSON field name.
	Field = "identity"
	// Header carries the identity when no other source does.
	Header = "X-Identity"
	// MaxLength bounds an identity.
	MaxLength = 128
)

var (
	// ErrMissing is returned when no source carries an identity.
	ErrMissing = errors.New("identity is required")
	// ErrMalformed is returned for identities that are too long or contain
	// control characters or '/', '?', '#'.
	ErrMalformed = errors.New("identity is malformed")
)

// Resolver finds the identity of a request. Sources are consulted in
// order: path parameter, form field, JSON body field, header.
type Resolver struct{}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the identity for c. bodyValue is the identity field of an
// already decoded JSON body, or empty.
func (r *Resolver) Resolve(c *gin.Context, bodyValue string) (string, error) {
	candidates := []func() string{
		func() string { return c.Param(Field) },
		func() string { return formValue(c) },
		func() string { return bodyValue },
		func() string { return c.GetHeader(Header) },
	}
	for _, get := range candidates {
		if v := strings.TrimSpace(get()); v != "" {
			return v, Validate(v)
		}
	}
	return "", ErrMissing
}

// reservedChars cannot appear in an identity.
const reservedChars = "/?#"

// Validate checks an identity's shape.
func Validate(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissing
	}
	if len(id) > MaxLength {
		return ErrMalformed
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return ErrMalformed
		}
	}
	// Read routes address the identity as a single path segment.
	if strings.ContainsAny(id, reservedChars) {
		return ErrMalformed
	}
	return nil
}

func formValue(c *gin.Context) string {
	ct := c.ContentType()
	if ct != "multipart/form-data" && ct != "application/x-www-form-urlencoded" {
		return ""
	}
	return c.PostForm(Field)
}
