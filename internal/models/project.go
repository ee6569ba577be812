// internal/models/project.go
package models

type Project struct {
	BaseModel
	Name               string `json:"name" gorm:"uniqueIndex;size:100;not null"`
	PayloadRef         string `json:"payload_ref" gorm:"type:text;not null"`
	MaintainerIdentity string `json:"maintainer_identity,omitempty" gorm:"size:100"`

	// Relationships
	Licenses []License `json:"licenses,omitempty" gorm:"foreignKey:ProjectID"`
}
