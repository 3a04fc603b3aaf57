package domain

import "time"

// Project is read-only collaborator input: the mapping between a tenant
// subdomain and the repository it publishes. CRUD lives outside this core.
type Project struct {
	ID            string            `json:"id"`
	Subdomain     string            `json:"subdomain"`
	RootDirectory string            `json:"root_directory,omitempty"`
	EnvVariables  map[string]string `json:"env_variables,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
