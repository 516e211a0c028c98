package attributes

import (
	strcase "github.com/stoewer/go-strcase"
)

// Naming maps attribute keys between the storage and memory conventions
type Naming int

const (
	// NamingNone keeps column names as attribute keys
	NamingNone Naming = iota
	// NamingCamel exposes snake_case columns as camelCase keys
	NamingCamel
)

// ToMemory converts a storage column name to an attribute key
func (n Naming) ToMemory(column string) string {
	if n == NamingCamel {
		return strcase.LowerCamelCase(column)
	}
	return column
}

// ToStorage converts an attribute key to a storage column name
func (n Naming) ToStorage(key string) string {
	if n == NamingCamel {
		return strcase.SnakeCase(key)
	}
	return key
}
