package tls

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

// loadKeyStore reads the server key and certificate chain from a key store.
// Stores written with modern (PBES2/AES, SHA-256 MAC) and legacy (RC2/3DES,
// SHA-1) algorithms are both accepted.
func loadKeyStore(storeType, path, password string) (tls.Certificate, error) {
	data, err := readStore(storeType, path)
	if err != nil {
		return tls.Certificate{}, loadError("decode key store", path, err)
	}

	key, leaf, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return tls.Certificate{}, loadError("decode key store", path, err)
	}
	if key == nil {
		return tls.Certificate{}, loadError("decode key store", path, fmt.Errorf("no private key in store"))
	}
	if leaf == nil {
		return tls.Certificate{}, loadError("decode key store", path, fmt.Errorf("no certificate in store"))
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return tls.Certificate{}, loadError("decode key store", path, fmt.Errorf("unsupported private key type %T", key))
	}
	pub, ok := signer.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(leaf.PublicKey) {
		return tls.Certificate{}, loadError("load key store", path, fmt.Errorf("private key does not match certificate"))
	}

	cert := tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	for _, c := range chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}
	return cert, nil
}

// loadTrustStore reads trusted CA certificates from a trust store.
func loadTrustStore(storeType, path, password string) (*x509.CertPool, error) {
	data, err := readStore(storeType, path)
	if err != nil {
		return nil, loadError("decode trust store", path, err)
	}

	certs, err := pkcs12.DecodeTrustStore(data, password)
	if err != nil {
		return nil, loadError("decode trust store", path, err)
	}
	if len(certs) == 0 {
		return nil, loadError("decode trust store", path, fmt.Errorf("no certificates in store"))
	}

	pool := x509.NewCertPool()
	for _, c := range certs {
		pool.AddCert(c)
	}
	return pool, nil
}

func readStore(storeType, path string) ([]byte, error) {
	if t := strings.ToUpper(storeType); t != "" && t != "PKCS12" {
		return nil, fmt.Errorf("unsupported store type %q", storeType)
	}
	return os.ReadFile(path)
}
