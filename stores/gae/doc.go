//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of the
// accounts store interfaces, for deployments on Google Cloud Platform.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - User: Activated accounts, keyed by lowercased username
//   - UnverifiedUser: Pending registrations, keyed by verification token
//
// Username and token uniqueness come from the name keys; conditional
// mutations run in Datastore transactions. Email uniqueness is a
// best-effort pre-check, since Datastore cannot enforce a second unique
// property on a kind.
//
// # Namespacing
//
// All stores accept a Datastore namespace for multi-tenant isolation:
//
//	users := gae.NewUserStore(client, "tenant-123")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	users := gae.NewUserStore(client, "")
//	pending := gae.NewUnverifiedUserStore(client, "")
package gae
