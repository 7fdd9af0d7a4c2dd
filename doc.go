// Package accounts implements the user-account subsystem of a Q&A
// community application: registration with email verification, login,
// password reset, Google account linking, and per-user display
// settings.
//
// The package is transport-agnostic. Route handlers call one operation
// on a Service with primitive inputs and receive either the requested
// entity or an *AuthError carrying a stable code and a human-readable
// message; no backend error ever crosses an operation's boundary.
//
// # Lifecycle
//
// A registration creates an UnverifiedUser keyed by a single-use
// verification token and emails a link. Clicking the link consumes the
// record atomically and creates the activated User; unclaimed records
// simply expire. Password resets follow the same shape with a
// short-lived token stored on the User itself.
//
// # Stores
//
// Persistence is pluggable behind UserStore and UnverifiedUserStore.
// Three backends ship with the package:
//
//	import "github.com/stackloop/accounts/stores"       // JSON files, for tests and small apps
//	import "github.com/stackloop/accounts/stores/gorm"  // any GORM-supported SQL database
//	import "github.com/stackloop/accounts/stores/gae"   // Google Cloud Datastore
//
// Conditional mutations (token redemption, reset issuance, settings
// writes) are single atomic find-and-update operations at the store, so
// two concurrent redemptions of one token cannot both succeed.
//
// # Basic usage
//
//	users := stores.NewFSUserStore(storagePath)
//	pending := stores.NewFSUnverifiedUserStore(storagePath)
//	svc := accounts.NewService(users, pending, mailer, "https://example.com")
//
//	recipient, err := svc.RequestVerification(&accounts.SignupRequest{
//	    Username: "alice",
//	    Email:    "alice@example.com",
//	    Password: "correct horse battery",
//	})
//
// After the user follows the emailed link:
//
//	user, err := svc.ActivateUser(token)
//
// Google sign-in callbacks resolve their profile to an account with
// FindOrCreateGoogleUser, which is idempotent per Google identity.
package accounts
