// Package harvest defines the domain types, collaborator interfaces and error
// taxonomy shared by the harvesting pipeline.
package harvest
