// Package notify contains tokenauth.Notifier implementations that deliver password reset
// codes: an SMTP mailer for production and a writer-backed outbox for local development.
package notify
