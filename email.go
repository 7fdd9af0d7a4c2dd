package accounts

import "log"

// EmailSender is the mail-dispatch collaborator. Applications provide
// their own implementation (SMTP, SES, a queue); the service only
// awaits success or failure.
type EmailSender interface {
	SendVerificationEmail(to string, verificationLink string) error
	SendPasswordResetEmail(to string, resetLink string) error
}

// ConsoleEmailSender logs emails instead of sending them. Development
// and test use only.
type ConsoleEmailSender struct{}

func (c *ConsoleEmailSender) SendVerificationEmail(to string, verificationLink string) error {
	log.Printf("verification email for %s: %s", to, verificationLink)
	return nil
}

func (c *ConsoleEmailSender) SendPasswordResetEmail(to string, resetLink string) error {
	log.Printf("password reset email for %s: %s", to, resetLink)
	return nil
}
