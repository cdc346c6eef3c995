// Package geo resolves client IPs to coarse locations from a MaxMind
// GeoIP2/GeoLite2 City or Country database. [Resolver] implements
// authcore.GeoResolver.
package geo
