package tls

import (
	"crypto/tls"
	"crypto/x509"
)

// Identity sources understood by ExtractClientIdentity.
const (
	IdentityCommonName = "subject.CN"
	IdentityOrgUnit    = "subject.OU"
	IdentityOrg        = "subject.O"
	IdentitySAN        = "SAN"
)

// ExtractClientIdentity extracts an identity string from a client
// certificate. An empty source means IdentityCommonName. Returns "" when the
// certificate carries no such field.
func ExtractClientIdentity(cert *x509.Certificate, source string) string {
	if cert == nil {
		return ""
	}

	switch source {
	case IdentityCommonName, "":
		return cert.Subject.CommonName
	case IdentityOrgUnit:
		if len(cert.Subject.OrganizationalUnit) > 0 {
			return cert.Subject.OrganizationalUnit[0]
		}
	case IdentityOrg:
		if len(cert.Subject.Organization) > 0 {
			return cert.Subject.Organization[0]
		}
	case IdentitySAN:
		if len(cert.DNSNames) > 0 {
			return cert.DNSNames[0]
		}
	}
	return ""
}

// PeerCertificate returns the client's leaf certificate from a completed
// handshake, or nil if the client sent none.
func PeerCertificate(state tls.ConnectionState) *x509.Certificate {
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	return state.PeerCertificates[0]
}

// PeerIdentity returns the identity of the client of a completed handshake.
func PeerIdentity(state tls.ConnectionState, source string) string {
	return ExtractClientIdentity(PeerCertificate(state), source)
}
