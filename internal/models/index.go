package models

import (
	"fmt"
	"strings"
)

// IndexSpec describes an ascending index over one or more document fields.
type IndexSpec struct {
	Fields []string `json:"fields"`
	Unique bool     `json:"unique"`
}

// Name returns the index name the document store would generate by default,
// e.g. "username_1_email_1".
func (s IndexSpec) Name() string {
	parts := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		parts = append(parts, fmt.Sprintf("%s_1", f))
	}
	return strings.Join(parts, "_")
}

// IndexKey is one component of an existing index.
type IndexKey struct {
	Field     string `json:"field"`
	Direction int    `json:"direction"`
}

// IndexInfo describes an index as reported by the store.
type IndexInfo struct {
	Name   string     `json:"name"`
	Keys   []IndexKey `json:"keys"`
	Unique bool       `json:"unique"`
}

// UserIndexes is the index plan applied to the User collection.
var UserIndexes = []IndexSpec{
	{Fields: []string{"username"}, Unique: true},
	{Fields: []string{"email"}, Unique: true},
	{Fields: []string{"username", "email"}},
	{Fields: []string{"createdAt"}},
}
