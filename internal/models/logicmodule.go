package models

import (
	"time"

	"github.com/google/uuid"
)

// LogicModule is a registry entry describing a downstream microservice owned
// by the gateway. The endpoint name is the routing key and must be unique.
type LogicModule struct {
	ModuleID     uuid.UUID
	Name         string
	EndpointName string // Unique routing key, e.g. "documents"
	Description  string
	Endpoint     string // Base URL, e.g. "http://documentservice:8080"
	GitHubRepo   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LogicModuleModel describes one resource type exposed by a logic module:
// the model name, its relative endpoint path, and the field used to look up
// single records.
type LogicModuleModel struct {
	ModelID                 uuid.UUID
	LogicModuleEndpointName string
	Model                   string // e.g. "Document"
	Endpoint                string // Relative path, e.g. "/documents/"
	LookupFieldName         string // e.g. "id" or "uuid"

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Relationship is a directed edge between two logic module models. The key
// names the embedded related resource in data-mesh annotated responses.
type Relationship struct {
	RelationshipID uuid.UUID
	OriginModelID  uuid.UUID
	RelatedModelID uuid.UUID
	Key            string

	CreatedAt time.Time
	UpdatedAt time.Time
}
