// Package secrets resolves secret references in the TLS configuration.
//
// A key store or trust store password may be written as a reference
// instead of a literal:
//
//	security:
//	  secrets_dir: /var/run/secrets/conduit
//	  tls:
//	    key_store_password: ${secret:keystore-password}
//
// The reference is looked up in the secrets directory first (file
// /var/run/secrets/conduit/keystore-password) and then in the environment
// (CONDUIT_SECRET_KEYSTORE_PASSWORD). Nothing is cached: references are
// resolved again on every TLS context refresh, so a rotated password is
// used together with the rotated store.
package secrets
