package bridge

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/obsidionlabs/bridge-go/bridgecrypto"
	"github.com/obsidionlabs/bridge-go/bridgeerr"
)

// connectionScheme is the URI scheme for a bridge connection string
// (spec §6): "obsidion:<hex-public-key>?d=<origin>".
const connectionScheme = "obsidion"

// buildConnectionString renders the Creator's rendezvous URI.
func buildConnectionString(pub [bridgecrypto.PublicKeyLen]byte, origin string) string {
	v := url.Values{}
	v.Set("d", origin)
	return fmt.Sprintf("%s:%s?%s", connectionScheme, hex.EncodeToString(pub[:]), v.Encode())
}

// parsedConnectionString is the Joiner's view of a scanned connection
// string: the Creator's bridge id (== its public key hex) and declared
// origin, with the "https://" scheme filled in when absent (spec §4.6).
type parsedConnectionString struct {
	bridgeID  string
	publicKey *bridgecrypto.PublicKey
	domain    string
}

// parseConnectionString implements the uri parse step of join() (spec §4.6):
// extract the remote pubkey and domain, raising ConfigurationError on any
// missing or malformed component.
func parseConnectionString(uri string) (parsedConnectionString, *bridgeerr.Error) {
	uri = strings.TrimSpace(uri)
	prefix := connectionScheme + ":"
	if !strings.HasPrefix(uri, prefix) {
		return parsedConnectionString{}, bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeInvalidConnectionURI,
			fmt.Errorf("connection string missing %q scheme", connectionScheme))
	}
	rest := uri[len(prefix):]

	bridgeID := rest
	query := ""
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		bridgeID = rest[:i]
		query = rest[i+1:]
	}
	bridgeID = strings.ToLower(strings.TrimSpace(bridgeID))
	if bridgeID == "" {
		return parsedConnectionString{}, bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeInvalidConnectionURI,
			fmt.Errorf("connection string missing public key"))
	}

	pubBytes, err := hex.DecodeString(bridgeID)
	if err != nil {
		return parsedConnectionString{}, bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeInvalidConnectionURI, err)
	}
	pub, err := bridgecrypto.ParsePublicKey(pubBytes)
	if err != nil {
		return parsedConnectionString{}, bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeInvalidPublicKey, err)
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return parsedConnectionString{}, bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeInvalidConnectionURI, err)
	}
	domain := strings.TrimSpace(values.Get("d"))
	if domain == "" {
		return parsedConnectionString{}, bridgeerr.Configuration(bridgeerr.StageConfig, bridgeerr.CodeMissingOrigin,
			fmt.Errorf("connection string missing d= origin"))
	}
	if domain != "nodejs" && !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}

	return parsedConnectionString{bridgeID: bridgeID, publicKey: pub, domain: domain}, nil
}
