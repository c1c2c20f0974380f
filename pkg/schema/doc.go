// Package schema reflects Go types into JSON schemas used as tool input schemas.
package schema
