package model

// Provider is a credentialed RBT that can deliver sessions.
type Provider struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Active bool   `json:"active" yaml:"active"`
}
