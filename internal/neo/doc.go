// Package neo defines the domain types, collaborator interfaces, and error
// taxonomy shared by the NeoWs fetcher, normalizer, archive, and crawl
// orchestrator.
package neo
