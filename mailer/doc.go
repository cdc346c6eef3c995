// Package mailer delivers authcore security notifications over SMTP with
// gomail. Each notification kind renders a subject and a plain-text body
// from text/template; unknown kinds are rejected rather than sent blank.
package mailer
