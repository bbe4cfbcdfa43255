package account

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/rs/zerolog"
)

// ErrBadCredential is returned when an obfuscated credential cannot be decoded.
var ErrBadCredential = errors.New("malformed obfuscated credential")

// obfuscationKey is mixed into stored credentials so they are never written in clear text.
// It is not encryption.
var obfuscationKey = []byte("gridq-transfer-queue")

// Account describes a session on the remote grid. The credential is always held
// in obfuscated form; only a session factory reveals it.
type Account struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Zone            string `json:"zone"`
	User            string `json:"user"`
	Credential      string `json:"credential"`
	DefaultResource string `json:"default_resource,omitempty"`
}

// New builds an Account, obfuscating the clear text password.
func New(host string, port int, zone, user, password, defaultResource string) Account {
	return Account{
		Host:            host,
		Port:            port,
		Zone:            zone,
		User:            user,
		Credential:      Obfuscate(password),
		DefaultResource: defaultResource,
	}
}

// Endpoint returns host:port.
func (a Account) Endpoint() string {
	if a.Port == 0 {
		return a.Host
	}
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// String renders the account without its credential.
func (a Account) String() string {
	return fmt.Sprintf("%s#%s@%s", a.User, a.Zone, a.Endpoint())
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (a Account) MarshalZerologObject(e *zerolog.Event) {
	e.Str("host", a.Host).
		Int("port", a.Port).
		Str("zone", a.Zone).
		Str("user", a.User).
		Str("default_resource", a.DefaultResource)
}

// Obfuscate scrambles a clear text credential for storage.
func Obfuscate(clear string) string {
	if clear == "" {
		return ""
	}
	return base64.StdEncoding.EncodeToString(xor([]byte(clear)))
}

// Reveal reverses Obfuscate.
func Reveal(obfuscated string) (string, error) {
	if obfuscated == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(obfuscated)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCredential, err)
	}
	return string(xor(raw)), nil
}

func xor(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ obfuscationKey[i%len(obfuscationKey)]
	}
	return out
}
