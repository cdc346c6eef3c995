// Package netpolicy implements authcore.NetworkPolicy from static CIDR and
// email-domain lists. Deny entries always win over allow entries; an empty
// allow list admits everything not denied.
package netpolicy
