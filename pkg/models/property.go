package models

// UserPropertyType declares how a property value should be compared.
type UserPropertyType string

const (
	UserPropertyTypeString     UserPropertyType = "STRING"
	UserPropertyTypeInteger    UserPropertyType = "INTEGER"
	UserPropertyTypeDouble     UserPropertyType = "DOUBLE"
	UserPropertyTypeSemver     UserPropertyType = "SEMVER"
	UserPropertyTypeTimestampz UserPropertyType = "TIMESTAMPZ"
)

// UserProperty is one named fact about the current user or device,
// derived at evaluation time.
type UserProperty struct {
	Name  string           `json:"name"`
	Value string           `json:"value"`
	Type  UserPropertyType `json:"type,omitempty"`
}
