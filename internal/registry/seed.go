package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the declarative registry provisioning format:
//
//	modules:
//	  - name: Document Service
//	    endpoint_name: documents
//	    endpoint: http://documentservice:8080
//	models:
//	  - module: documents
//	    model: Document
//	    endpoint: /documents/
//	    lookup_field_name: id
//	relationships:
//	  - origin: documents/Document
//	    related: crm/Contact
//	    key: contact
type Seed struct {
	Modules       []SeedModule       `yaml:"modules"`
	Models        []SeedModel        `yaml:"models"`
	Relationships []SeedRelationship `yaml:"relationships"`
}

// SeedModule declares one logic module.
type SeedModule struct {
	Name         string `yaml:"name"`
	EndpointName string `yaml:"endpoint_name"`
	Description  string `yaml:"description"`
	Endpoint     string `yaml:"endpoint"`
	GitHubRepo   string `yaml:"github_repo"`
}

// SeedModel declares one resource type exposed by a module.
type SeedModel struct {
	Module          string `yaml:"module"`
	Model           string `yaml:"model"`
	Endpoint        string `yaml:"endpoint"`
	LookupFieldName string `yaml:"lookup_field_name"`
}

// SeedRelationship declares a directed edge between two models, each
// referenced as "module/Model".
type SeedRelationship struct {
	Origin  string `yaml:"origin"`
	Related string `yaml:"related"`
	Key     string `yaml:"key"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	return ParseSeed(data)
}

// ParseSeed parses seed YAML and validates required fields.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i, m := range seed.Modules {
		if m.EndpointName == "" {
			return nil, fmt.Errorf("module %d: endpoint_name is required", i)
		}
		if m.Endpoint == "" {
			return nil, fmt.Errorf("module %s: endpoint is required", m.EndpointName)
		}
		if m.Name == "" {
			seed.Modules[i].Name = m.EndpointName
		}
	}

	for i, m := range seed.Models {
		if m.Module == "" || m.Model == "" {
			return nil, fmt.Errorf("model %d: module and model are required", i)
		}
		if m.LookupFieldName == "" {
			seed.Models[i].LookupFieldName = "id"
		}
	}

	for i, r := range seed.Relationships {
		if r.Origin == "" || r.Related == "" || r.Key == "" {
			return nil, fmt.Errorf("relationship %d: origin, related and key are required", i)
		}
	}

	return &seed, nil
}
