// Package configfile loads service configuration from YAML and AUTHCORE_*
// environment variables with viper.
//
// Keys are the lower-cased Go field names, nested by section:
//
//	engine:
//	  session:
//	    defaultttl: 12h
//	  twofactor:
//	    maxchallengeattempts: 3
//	policy:
//	  allowedproviders: password,totp
//
// Every key can be overridden from the environment by upper-casing it and
// joining the path with underscores, e.g. AUTHCORE_ENGINE_SESSION_DEFAULTTTL.
// Durations accept time.ParseDuration syntax and lists accept commas.
package configfile
