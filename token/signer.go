package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Signer signs tokens and supplies the key to verify them.
type Signer interface {
	Sign(claims jwt.Claims) (string, error)
	// VerificationKey is a jwt.Keyfunc. It rejects tokens whose alg does not
	// belong to the signer's family.
	VerificationKey(token *jwt.Token) (any, error)
	SigningMethod() jwt.SigningMethod
}

// HMACSigner signs with a shared HS256 secret.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{
		secret: []byte(secret),
	}
}

func (h *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "[HMACSigner.Sign] SignedString")
	}
	return signed, nil
}

func (h *HMACSigner) VerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) SigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// KeyPairSigner signs with an RSA or ECDSA private key.
type KeyPairSigner struct {
	keyPair *KeyPair
}

func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{
		keyPair: keyPair,
	}
}

func (a *KeyPairSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(a.keyPair.SigningMethod(), claims)
	if a.keyPair.KeyID != "" {
		token.Header["kid"] = a.keyPair.KeyID
	}
	signed, err := token.SignedString(a.keyPair.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "[KeyPairSigner.Sign] SignedString")
	}
	return signed, nil
}

func (a *KeyPairSigner) VerificationKey(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodRSA, *jwt.SigningMethodECDSA:
		return a.keyPair.PublicKey, nil
	default:
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

func (a *KeyPairSigner) SigningMethod() jwt.SigningMethod {
	return a.keyPair.SigningMethod()
}

// NewSigner picks the signer for algorithm. HS256 needs secret; the RSA and
// ECDSA algorithms need a PEM encoded private key.
func NewSigner(algorithm, secret, privateKeyPEM string) (Signer, error) {
	switch algorithm {
	case "", HS256:
		if secret == "" {
			return nil, errors.New("[NewSigner] HS256 requires a secret")
		}
		return NewHMACSigner(secret), nil
	case RS256, RS384, RS512, ES256, ES384, ES512:
		if privateKeyPEM == "" {
			return nil, errors.Errorf("[NewSigner] %s requires a private key", algorithm)
		}
		keyPair, err := LoadKeyPairFromPEM("", privateKeyPEM, algorithm)
		if err != nil {
			return nil, errors.Wrap(err, "[NewSigner] LoadKeyPairFromPEM")
		}
		return NewKeyPairSigner(keyPair), nil
	default:
		return nil, errors.Errorf("[NewSigner] unsupported algorithm %q", algorithm)
	}
}
