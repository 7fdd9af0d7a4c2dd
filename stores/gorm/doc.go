//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the accounts store
// interfaces. It supports any database that GORM supports (PostgreSQL,
// MySQL, SQLite, etc.) and is the backend intended for production use.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: Activated accounts, with unique username and email indexes
//   - unverified_users: Pending registrations, keyed by verification token
//
// Uniqueness is enforced by the database; a violated index surfaces as
// accounts.ErrConflict. The conditional mutations run in transactions so
// a token can only be redeemed once.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
//	gormstore.AutoMigrate(db)
//	users := gormstore.NewUserStore(db)
//	pending := gormstore.NewUnverifiedUserStore(db)
package gorm
